// Package app wires the VoiceBridge subsystems into a running gateway.
//
// The App struct owns the full lifecycle: New validates the wiring, ServeMedia
// accepts one telephony WebSocket leg and runs its transport stream and
// conversation session until the call ends, and Shutdown tears everything
// down in order.
//
// For testing, inject fake providers via the Providers struct; every slot is
// an interface.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kenpath-ai/voicebridge/internal/config"
	"github.com/kenpath-ai/voicebridge/internal/observe"
	"github.com/kenpath-ai/voicebridge/internal/transport"
	"github.com/kenpath-ai/voicebridge/pkg/frames"
	"github.com/kenpath-ai/voicebridge/pkg/provider/llm"
	"github.com/kenpath-ai/voicebridge/pkg/provider/stt"
	"github.com/kenpath-ai/voicebridge/pkg/provider/tts"
	"github.com/kenpath-ai/voicebridge/pkg/serializer"
	"github.com/kenpath-ai/voicebridge/pkg/serializer/ubona"
	"github.com/kenpath-ai/voicebridge/pkg/serializer/vobiz"
)

// handshakeTimeout bounds how long a freshly accepted connection may take to
// deliver its start event.
const handshakeTimeout = 10 * time.Second

// handshakeMessageLimit caps how many pre-start messages (connected events,
// keepalives) are tolerated before the leg is rejected.
const handshakeMessageLimit = 5

// Providers holds one interface value per pipeline stage. Nil means the stage
// is not configured; the session degrades gracefully. Populated by main via
// the config registry.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
}

// App owns all per-gateway state and hands out per-call sessions.
// All exported methods are safe for concurrent use.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	// holdMu guards the current hold settings, which hot-reload may swap
	// while calls are in flight.
	holdMu       sync.Mutex
	holdMessages []string
	holdTimeout  time.Duration

	// sessionMu guards the live session set.
	sessionMu sync.Mutex
	sessions  map[*Session]struct{}

	// closers are called in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for [New].
type Option func(*App)

// WithMetrics injects an instrument set. Defaults to the process-wide one.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App from its configuration and providers.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	if providers == nil {
		providers = &Providers{}
	}
	if !cfg.Telephony.Provider.IsValid() {
		return nil, fmt.Errorf("app: unknown telephony provider %q", cfg.Telephony.Provider)
	}

	a := &App{
		cfg:          cfg,
		providers:    providers,
		holdMessages: cfg.Hold.Messages,
		holdTimeout:  cfg.Hold.Timeout,
		sessions:     make(map[*Session]struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a, nil
}

// AddCloser registers a teardown hook run during Shutdown, after all live
// calls have been told to stop.
func (a *App) AddCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

// ActiveSessions reports the number of calls currently in flight.
func (a *App) ActiveSessions() int {
	a.sessionMu.Lock()
	defer a.sessionMu.Unlock()
	return len(a.sessions)
}

// ReconfigureHold swaps the filler rotation and first-chunk timeout on every
// live session and on all sessions created afterwards. Called by the config
// watcher on hot reload.
func (a *App) ReconfigureHold(messages []string, timeout time.Duration) {
	a.holdMu.Lock()
	a.holdMessages = messages
	a.holdTimeout = timeout
	a.holdMu.Unlock()

	a.sessionMu.Lock()
	live := make([]*Session, 0, len(a.sessions))
	for s := range a.sessions {
		live = append(live, s)
	}
	a.sessionMu.Unlock()

	for _, s := range live {
		s.Reconfigure(messages, timeout)
	}
	slog.Info("hold settings reconfigured", "messages", len(messages), "timeout", timeout, "sessions", len(live))
}

// ─── Media endpoint ──────────────────────────────────────────────────────────

// ServeMedia is the WebSocket media-stream endpoint. It accepts the
// connection, performs the start handshake, and runs one transport stream
// plus one conversation session until the call ends or ctx is cancelled.
func (a *App) ServeMedia(w http.ResponseWriter, r *http.Request) {
	// Telephony peers are machines, not browsers; origin checking does not
	// apply to them.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Warn("media: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	ctx := r.Context()
	if err := a.runCall(ctx, conn); err != nil && ctx.Err() == nil {
		slog.Error("media: call leg ended with error", "remote", r.RemoteAddr, "err", err)
		conn.Close(websocket.StatusInternalError, "stream failure")
		return
	}
}

// runCall drives one accepted connection from handshake to hangup.
func (a *App) runCall(ctx context.Context, conn *websocket.Conn) error {
	start, err := readStart(ctx, conn)
	if err != nil {
		return fmt.Errorf("start handshake: %w", err)
	}

	ser, err := a.newSerializer(start)
	if err != nil {
		return err
	}
	if err := ser.Setup(start); err != nil {
		return fmt.Errorf("serializer setup: %w", err)
	}

	log := slog.With("stream_id", start.StreamID, "call_id", start.CallID,
		"provider", string(a.cfg.Telephony.Provider))
	log.Info("media: call leg started", "sample_rate", start.InputSampleRate)

	a.metrics.ActiveStreams.Add(ctx, 1)
	defer a.metrics.ActiveStreams.Add(ctx, -1)

	out := &sinkRef{}
	sess := a.newSession(out)
	stream := transport.New(conn, ser, sess,
		transport.WithMetrics(a.metrics, string(a.cfg.Telephony.Provider)))
	out.set(stream)

	a.trackSession(sess)
	defer a.untrackSession(sess)

	// The stream owns the socket; when it ends, the session has nothing
	// left to talk to and is cancelled via the group context.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return stream.Run(gctx) })
	g.Go(func() error {
		err := sess.Run(gctx)
		if errors.Is(err, context.Canceled) || gctx.Err() != nil {
			return nil
		}
		return err
	})

	err = g.Wait()
	log.Info("media: call leg ended", "err", err)
	return err
}

func (a *App) trackSession(s *Session) {
	a.sessionMu.Lock()
	a.sessions[s] = struct{}{}
	a.sessionMu.Unlock()
}

func (a *App) untrackSession(s *Session) {
	a.sessionMu.Lock()
	delete(a.sessions, s)
	a.sessionMu.Unlock()
}

// newSession builds the conversation pipeline for one call leg.
func (a *App) newSession(out frames.Sink) *Session {
	a.holdMu.Lock()
	holdMessages := a.holdMessages
	holdTimeout := a.holdTimeout
	a.holdMu.Unlock()

	opts := []SessionOption{WithHold(holdMessages, holdTimeout)}
	if a.cfg.Session.SilenceGap > 0 {
		opts = append(opts, WithSilenceGap(a.cfg.Session.SilenceGap))
	}
	if a.cfg.Session.HistoryLimit > 0 {
		opts = append(opts, WithHistoryLimit(a.cfg.Session.HistoryLimit))
	}
	return NewSession(SessionDeps{
		STT:     a.providers.STT,
		LLM:     a.providers.LLM,
		TTS:     a.providers.TTS,
		Out:     out,
		Metrics: a.metrics,
	}, opts...)
}

// newSerializer constructs the configured wire dialect for one leg.
func (a *App) newSerializer(start frames.Start) (serializer.Serializer, error) {
	switch a.cfg.Telephony.Provider {
	case config.TelephonyUbona:
		var opts []ubona.Option
		if a.cfg.Telephony.SampleRate > 0 {
			opts = append(opts, ubona.WithSampleRate(a.cfg.Telephony.SampleRate))
		}
		return ubona.New(start.StreamID, start.CallID, opts...), nil

	case config.TelephonyVobiz:
		var opts []vobiz.Option
		if a.cfg.Telephony.SampleRate > 0 {
			opts = append(opts, vobiz.WithSampleRate(a.cfg.Telephony.SampleRate))
		}
		return vobiz.New(start.StreamID, start.CallID, opts...), nil

	default:
		return nil, fmt.Errorf("unknown telephony provider %q", a.cfg.Telephony.Provider)
	}
}

// ─── Start handshake ─────────────────────────────────────────────────────────

// startEnvelope is a permissive superset of both dialects' start events.
// Ubona puts the identifiers at the top level; the Plivo-compatible shape
// nests them under "start" together with the negotiated media format.
type startEnvelope struct {
	Event    string `json:"event"`
	StreamID string `json:"streamId"`
	CallID   string `json:"callId"`
	Start    struct {
		StreamID    string `json:"streamId"`
		CallID      string `json:"callId"`
		MediaFormat struct {
			SampleRate int `json:"sampleRate"`
		} `json:"mediaFormat"`
	} `json:"start"`
}

// readStart consumes inbound messages until the dialect's start event
// arrives, tolerating a handful of pre-start control messages. Identifiers
// missing from the wire are minted locally so every leg stays addressable.
func readStart(ctx context.Context, conn *websocket.Conn) (frames.Start, error) {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	for i := 0; i < handshakeMessageLimit; i++ {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return frames.Start{}, fmt.Errorf("read: %w", err)
		}
		if typ != websocket.MessageText {
			continue
		}

		var env startEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if env.Event != "start" {
			continue
		}

		start := frames.Start{
			StreamID:         firstNonEmpty(env.Start.StreamID, env.StreamID),
			CallID:           firstNonEmpty(env.Start.CallID, env.CallID),
			InputSampleRate:  env.Start.MediaFormat.SampleRate,
			OutputSampleRate: env.Start.MediaFormat.SampleRate,
		}
		if start.StreamID == "" {
			start.StreamID = uuid.NewString()
		}
		if start.CallID == "" {
			start.CallID = uuid.NewString()
		}
		return start, nil
	}
	return frames.Start{}, fmt.Errorf("no start event within %d messages", handshakeMessageLimit)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// sinkRef breaks the construction cycle between the session (which needs the
// outbound sink) and the transport stream (which needs the session as its
// inbound sink). It is set exactly once, before either loop starts.
type sinkRef struct {
	mu   sync.RWMutex
	sink frames.Sink
}

func (r *sinkRef) set(s frames.Sink) {
	r.mu.Lock()
	r.sink = s
	r.mu.Unlock()
}

func (r *sinkRef) Push(ctx context.Context, f frames.Frame) error {
	r.mu.RLock()
	s := r.sink
	r.mu.RUnlock()
	if s == nil {
		return fmt.Errorf("app: outbound sink not wired")
	}
	return s.Push(ctx, f)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown runs registered closers in reverse order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers), "active_sessions", a.ActiveSessions())
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
