package resilience

import (
	"context"

	"github.com/kenpath-ai/voicebridge/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across
// multiple synthesis backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional synthesis provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize speaks the utterance through the first healthy provider. Only
// the initial stream setup is covered by failover; mid-stream errors are the
// caller's responsibility.
func (f *TTSFallback) Synthesize(ctx context.Context, text string) (<-chan tts.Chunk, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (<-chan tts.Chunk, error) {
		return p.Synthesize(ctx, text)
	})
}
