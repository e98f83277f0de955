package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kenpath-ai/voicebridge/internal/holdmsg"
	"github.com/kenpath-ai/voicebridge/internal/observe"
	"github.com/kenpath-ai/voicebridge/pkg/frames"
	"github.com/kenpath-ai/voicebridge/pkg/provider/llm"
	"github.com/kenpath-ai/voicebridge/pkg/provider/stt"
	"github.com/kenpath-ai/voicebridge/pkg/provider/tts"
)

const (
	// defaultSilenceGap is the inbound quiet period that ends an utterance.
	defaultSilenceGap = 600 * time.Millisecond

	// defaultInboundBuffer is the inbound frame queue capacity. Media keeps
	// arriving while a turn is being answered; the queue absorbs it.
	defaultInboundBuffer = 256
)

// SessionDeps bundles the collaborators one call session talks to. STT, LLM,
// and TTS may each be nil; the session degrades to the stages it has.
type SessionDeps struct {
	STT     stt.Provider
	LLM     llm.Provider
	TTS     tts.Provider
	Out     frames.Sink
	Metrics *observe.Metrics
}

// SessionOption is a functional option for [NewSession].
type SessionOption func(*Session)

// WithSilenceGap sets the quiet period that ends an utterance.
func WithSilenceGap(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.silenceGap = d
		}
	}
}

// WithHistoryLimit caps the retained conversation turns.
func WithHistoryLimit(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithHold configures the filler rotation and first-chunk timeout passed to
// the hold-message scheduler. Zero values keep the scheduler defaults.
func WithHold(messages []string, timeout time.Duration) SessionOption {
	return func(s *Session) {
		s.holdMessages = messages
		s.holdTimeout = timeout
	}
}

// Session runs one call leg's conversation pipeline: inbound audio is
// assembled into utterances by silence-gap detection, transcribed, answered
// through the hold-message scheduler, and spoken back sentence by sentence.
//
// The session is the transport's inbound sink. Create with [NewSession],
// then run [Session.Run] once; Push may be called concurrently while Run is
// active.
type Session struct {
	stt     stt.Provider
	tts     tts.Provider
	out     frames.Sink
	metrics *observe.Metrics

	responder *holdmsg.Scheduler
	speech    *speechSink
	history   *History

	silenceGap   time.Duration
	historyLimit int
	holdMessages []string
	holdTimeout  time.Duration

	in chan frames.Frame

	// utterance accumulates caller PCM between silence gaps.
	utterance     []byte
	utteranceRate int
}

var _ frames.Sink = (*Session)(nil)

// NewSession wires a session from its collaborators.
func NewSession(deps SessionDeps, opts ...SessionOption) *Session {
	s := &Session{
		stt:        deps.STT,
		tts:        deps.TTS,
		out:        deps.Out,
		metrics:    deps.Metrics,
		silenceGap: defaultSilenceGap,
	}
	for _, o := range opts {
		o(s)
	}
	s.in = make(chan frames.Frame, defaultInboundBuffer)
	s.history = NewHistory(s.historyLimit)
	s.speech = &speechSink{sess: s}

	if deps.LLM != nil {
		var holdOpts []holdmsg.Option
		if s.holdTimeout > 0 {
			holdOpts = append(holdOpts, holdmsg.WithTimeout(s.holdTimeout))
		}
		if len(s.holdMessages) > 0 {
			holdOpts = append(holdOpts, holdmsg.WithMessages(s.holdMessages))
		}
		if s.metrics != nil {
			holdOpts = append(holdOpts, holdmsg.WithMetrics(s.metrics))
		}
		s.responder = holdmsg.New(deps.LLM, s.speech, holdOpts...)
	}
	return s
}

// Push queues an inbound frame for the session loop.
func (s *Session) Push(ctx context.Context, frame frames.Frame) error {
	select {
	case s.in <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reconfigure swaps the hold-message rotation and timeout at runtime.
func (s *Session) Reconfigure(messages []string, timeout time.Duration) {
	if s.responder != nil {
		s.responder.Reconfigure(messages, timeout)
	}
}

// History exposes the conversation log, primarily for tests and transcripts.
func (s *Session) History() *History {
	return s.history
}

// Run drives the session until ctx is cancelled. Collaborator failures are
// logged and counted but never tear the call down; the next utterance gets a
// fresh attempt.
func (s *Session) Run(ctx context.Context) error {
	gap := time.NewTimer(s.silenceGap)
	if !gap.Stop() {
		<-gap.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case frame := <-s.in:
			switch f := frame.(type) {
			case frames.Audio:
				s.utterance = append(s.utterance, f.PCM...)
				s.utteranceRate = f.SampleRate
				if !gap.Stop() {
					select {
					case <-gap.C:
					default:
					}
				}
				gap.Reset(s.silenceGap)

			case frames.DTMF:
				slog.Info("session: DTMF received", "key", string(f.Key))

			default:
				// Start and transport events carry no conversation content.
			}

		case <-gap.C:
			if len(s.utterance) == 0 {
				continue
			}
			pcm, rate := s.utterance, s.utteranceRate
			s.utterance = nil
			if err := s.handleUtterance(ctx, pcm, rate); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Error("session: turn failed", "err", err)
			}
		}
	}
}

// handleUtterance transcribes one finished utterance and, when it carries
// text, runs a full response turn through the scheduler.
func (s *Session) handleUtterance(ctx context.Context, pcm []byte, rate int) error {
	if s.stt == nil {
		return nil
	}

	start := time.Now()
	text, err := s.stt.Transcribe(ctx, pcm, rate)
	if s.metrics != nil {
		s.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordProviderError(ctx, "stt", "transcribe")
		}
		return fmt.Errorf("transcribe utterance: %w", err)
	}
	if text == "" {
		return nil
	}

	s.history.AddUser(text)
	if s.responder == nil {
		return nil
	}

	s.speech.reset()
	turnStart := time.Now()
	procErr := s.responder.Process(ctx, s.history.Messages())
	s.speech.flush(ctx)

	if reply := s.speech.replyText(); reply != "" {
		s.history.AddAssistant(reply)
	}
	if procErr != nil {
		if s.metrics != nil {
			s.metrics.RecordProviderError(ctx, "llm", "stream")
		}
		return fmt.Errorf("generate response: %w", procErr)
	}
	slog.Debug("session: turn completed",
		"user_chars", len(text), "duration", time.Since(turnStart))
	return nil
}

// synthesize speaks one piece of text, pushing the resulting audio frames to
// the outbound sink as they arrive.
func (s *Session) synthesize(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if s.tts == nil || text == "" {
		return nil
	}

	start := time.Now()
	chunks, err := s.tts.Synthesize(ctx, text)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordProviderError(ctx, "tts", "synthesize")
		}
		return fmt.Errorf("start synthesis: %w", err)
	}
	for chunk := range chunks {
		if chunk.Err != nil {
			if s.metrics != nil {
				s.metrics.RecordProviderError(ctx, "tts", "stream")
			}
			return fmt.Errorf("synthesis stream: %w", chunk.Err)
		}
		if err := s.out.Push(ctx, chunk.Audio); err != nil {
			return fmt.Errorf("push audio: %w", err)
		}
	}
	if s.metrics != nil {
		s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	}
	return nil
}

// ─── speech sink ─────────────────────────────────────────────────────────────

// speechSink receives the scheduler's output frames for one turn. Filler
// requests are synthesized immediately; content text is buffered and spoken
// sentence by sentence so synthesis never runs on single-word fragments.
//
// The scheduler guarantees a filler push completes before the first content
// push, so the sink needs no locking.
type speechSink struct {
	sess *Session

	pending strings.Builder // text awaiting a sentence boundary
	reply   strings.Builder // full assistant text for the history
}

func (ss *speechSink) Push(ctx context.Context, frame frames.Frame) error {
	switch f := frame.(type) {
	case frames.Speak:
		if ss.sess.metrics != nil {
			ss.sess.metrics.HoldMessages.Add(ctx, 1)
		}
		if err := ss.sess.synthesize(ctx, f.Text); err != nil {
			slog.Warn("session: filler synthesis failed", "err", err)
		}
		return nil

	case frames.Text:
		ss.pending.WriteString(f.Content)
		ss.reply.WriteString(f.Content)
		return ss.flushSentences(ctx)

	default:
		return nil
	}
}

// flushSentences speaks every complete sentence currently buffered.
func (ss *speechSink) flushSentences(ctx context.Context) error {
	for {
		text := ss.pending.String()
		idx := sentenceBoundary(text)
		if idx < 0 {
			return nil
		}
		sentence := text[:idx+1]
		rest := strings.TrimLeft(text[idx+1:], " \t\n\r")
		ss.pending.Reset()
		ss.pending.WriteString(rest)

		if err := ss.sess.synthesize(ctx, sentence); err != nil {
			return err
		}
	}
}

// flush speaks any trailing partial sentence at the end of a turn.
func (ss *speechSink) flush(ctx context.Context) {
	if ss.pending.Len() == 0 {
		return
	}
	text := ss.pending.String()
	ss.pending.Reset()
	if err := ss.sess.synthesize(ctx, text); err != nil {
		slog.Warn("session: trailing synthesis failed", "err", err)
	}
}

func (ss *speechSink) reset() {
	ss.pending.Reset()
	ss.reply.Reset()
}

func (ss *speechSink) replyText() string {
	return strings.TrimSpace(ss.reply.String())
}

// sentenceBoundary returns the index of the first '.', '!', '?', or Devanagari
// danda (।) followed by whitespace or ending the string. Returns -1 when no
// boundary exists in s.
func sentenceBoundary(s string) int {
	runes := []rune(s)
	byteIdx := 0
	for i, r := range runes {
		size := len(string(r))
		switch r {
		case '.', '!', '?', '।':
			if i == len(runes)-1 {
				return byteIdx + size - 1
			}
			next := runes[i+1]
			if next == ' ' || next == '\n' || next == '\r' || next == '\t' {
				return byteIdx + size - 1
			}
		}
		byteIdx += size
	}
	return -1
}
