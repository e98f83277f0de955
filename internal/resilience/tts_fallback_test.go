package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/kenpath-ai/voicebridge/pkg/frames"
	"github.com/kenpath-ai/voicebridge/pkg/provider/tts"
)

// stubTTS fails to start or emits one fixed audio chunk, counting calls.
type stubTTS struct {
	pcm   []byte
	err   error
	calls int
}

func (s *stubTTS) Synthesize(context.Context, string) (<-chan tts.Chunk, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make(chan tts.Chunk, 1)
	out <- tts.Chunk{Audio: frames.Audio{PCM: s.pcm, SampleRate: 16000, Channels: 1}}
	close(out)
	return out, nil
}

func TestTTSFallback_Failover(t *testing.T) {
	primary := &stubTTS{err: errors.New("primary down")}
	secondary := &stubTTS{pcm: []byte{1, 2, 3, 4}}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	ch, err := fb.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunk, ok := <-ch
	if !ok || chunk.Err != nil {
		t.Fatalf("chunk = %+v ok=%v, want audio chunk", chunk, ok)
	}
	if len(chunk.Audio.PCM) != 4 {
		t.Fatalf("pcm len = %d, want 4", len(chunk.Audio.PCM))
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", primary.calls, secondary.calls)
	}
}

func TestTTSFallback_AllFailed(t *testing.T) {
	primary := &stubTTS{err: errors.New("primary down")}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	if _, err := fb.Synthesize(context.Background(), "hello"); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("error = %v, want ErrAllFailed", err)
	}
}
