// Package holdmsg implements the speculative filler-response scheduler that
// sits between a generation stream and the speech synthesizer.
//
// When a caller asks a question, the answer's first token may take longer
// than a caller is willing to sit in silence. The scheduler races a fixed
// timeout against the arrival of the first generated chunk: if the timeout
// wins, exactly one filler utterance — drawn from a rotating list — is pushed
// as an immediate speech request, which the synthesis stage queues ahead of
// the real answer. Real content is never reordered relative to itself, and
// the timer is cancelled and drained on every exit path so it can never fire
// against a stale turn.
package holdmsg

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kenpath-ai/voicebridge/internal/observe"
	"github.com/kenpath-ai/voicebridge/pkg/frames"
	"github.com/kenpath-ai/voicebridge/pkg/provider/llm"
)

// defaultTimeout is how long the scheduler waits for the first generated
// chunk before speaking a filler.
const defaultTimeout = time.Second

// defaultMessages is the stock filler rotation (Marathi hold phrases).
var defaultMessages = []string{
	"कृपया थांबा, मी माहिती शोधत आहे",
	"एक क्षण थांबा, मी तपासत आहे",
	"कृपया प्रतीक्षा करा, मी उत्तर शोधत आहे",
	"थोडा वेळ द्या, मी माहिती मिळवत आहे",
}

// Option is a functional option for configuring a Scheduler.
type Option func(*Scheduler)

// WithTimeout sets the first-chunk timeout. Default is 1s.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// WithMessages replaces the filler rotation. An empty slice keeps the
// defaults.
func WithMessages(messages []string) Option {
	return func(s *Scheduler) {
		if len(messages) > 0 {
			cp := make([]string, len(messages))
			copy(cp, messages)
			s.messages = cp
		}
	}
}

// WithMetrics injects an instrument set so the scheduler can record the
// first-chunk latency every turn races against.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// Scheduler wraps a generation provider with the hold-message race. It is
// safe for concurrent use; the rotation index is shared across turns.
type Scheduler struct {
	provider llm.Provider
	sink     frames.Sink
	metrics  *observe.Metrics

	mu       sync.Mutex
	timeout  time.Duration
	messages []string
	next     int
}

// New constructs a Scheduler that streams completions from provider and
// emits speech-text frames into sink.
func New(provider llm.Provider, sink frames.Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		provider: provider,
		sink:     sink,
		timeout:  defaultTimeout,
		messages: defaultMessages,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Process answers the most recent user turn in history.
//
// It starts the generation stream and a timer concurrently. If the timer
// elapses with zero chunks received, one filler utterance is pushed as a
// [frames.Speak]; the synthesis stage queues it ahead of the content that
// follows. Chunks are forwarded as [frames.Text] in arrival order, each
// exactly once. Before the first content frame is pushed, the timer
// goroutine is signalled and awaited, so a filler — when there is one —
// always precedes the first real chunk in emission order.
//
// A stream error force-completes the first-chunk signal (suppressing any
// late filler), drains the timer, and is then returned. When history holds
// no user message, Process does nothing and returns nil.
func (s *Scheduler) Process(ctx context.Context, history []llm.Message) error {
	userMsg := llm.LastUserMessage(history)
	if userMsg == "" {
		slog.Warn("holdmsg: no user message in history, skipping turn")
		return nil
	}

	chunks, err := s.provider.StreamCompletion(ctx, llm.CompletionRequest{Messages: history})
	if err != nil {
		return fmt.Errorf("holdmsg: start generation: %w", err)
	}

	s.mu.Lock()
	timeout := s.timeout
	s.mu.Unlock()

	// firstChunk fires once, either when content arrives or when an error
	// makes a filler pointless.
	var once sync.Once
	firstChunk := make(chan struct{})
	signalArrived := func() { once.Do(func() { close(firstChunk) }) }

	timerCtx, cancelTimer := context.WithCancel(ctx)
	defer cancelTimer()
	timerDone := make(chan struct{})

	start := time.Now()
	go func() {
		defer close(timerDone)
		t := time.NewTimer(timeout)
		defer t.Stop()

		select {
		case <-firstChunk:
			return
		case <-timerCtx.Done():
			return
		case <-t.C:
		}
		// The signal may have raced the timer; a completed turn or an error
		// must never be followed by a filler.
		select {
		case <-firstChunk:
			return
		default:
		}

		msg := s.nextMessage()
		slog.Info("holdmsg: generation exceeded timeout, speaking filler",
			"timeout", timeout, "message", msg)
		if err := s.sink.Push(timerCtx, frames.Speak{Text: msg}); err != nil {
			slog.Warn("holdmsg: failed to push filler", "err", err)
		}
	}()

	// drain cancels the timer and waits for its goroutine on every exit path.
	drain := func() {
		cancelTimer()
		<-timerDone
	}

	first := true
	for chunk := range chunks {
		if chunk.Err != nil {
			signalArrived()
			drain()
			return fmt.Errorf("holdmsg: generation stream: %w", chunk.Err)
		}
		if first {
			first = false
			signalArrived()
			// Wait out the timer goroutine so a filler that already won the
			// race is emitted before the first content frame.
			<-timerDone
			elapsed := time.Since(start)
			if s.metrics != nil {
				s.metrics.FirstChunkDuration.Record(ctx, elapsed.Seconds())
			}
			slog.Debug("holdmsg: first chunk received", "elapsed", elapsed)
		}
		if chunk.Text == "" {
			continue
		}
		if err := s.sink.Push(ctx, frames.Text{Content: chunk.Text}); err != nil {
			drain()
			return fmt.Errorf("holdmsg: push content: %w", err)
		}
	}

	drain()
	return nil
}

// Reconfigure swaps the filler rotation and timeout at runtime, used by the
// config hot-reload path. An empty messages slice keeps the current rotation;
// a zero timeout keeps the current one. Swapping the rotation resets the
// index to the start of the new list.
func (s *Scheduler) Reconfigure(messages []string, timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(messages) > 0 {
		cp := make([]string, len(messages))
		copy(cp, messages)
		s.messages = cp
		s.next = 0
	}
	if timeout > 0 {
		s.timeout = timeout
	}
}

// nextMessage returns the current filler and advances the rotation, wrapping
// modulo the list length.
func (s *Scheduler) nextMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.messages[s.next]
	s.next = (s.next + 1) % len(s.messages)
	return msg
}
