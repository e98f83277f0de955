// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a remote synthesis service and streams audio chunks
// back as they are generated, so playback can begin before the full utterance
// is synthesised. Audio is delivered as canonical frames at the provider's
// native sample rate; the telephony serializer downstream converts to the
// wire rate.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/kenpath-ai/voicebridge/pkg/frames"
)

// Chunk is a single unit of synthesised audio, or the error that ended the
// stream.
type Chunk struct {
	// Audio is the synthesised PCM. Empty on a pure error chunk.
	Audio frames.Audio

	// Err is set on the final chunk when synthesis failed upstream. After a
	// chunk with a non-nil Err, the channel is closed.
	Err error
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize speaks one utterance. The returned channel emits audio
	// chunks in playback order and is closed when the utterance is complete,
	// synthesis fails, or ctx is cancelled. Callers must drain the channel.
	//
	// A non-nil error return means the request could not be started at all.
	Synthesize(ctx context.Context, text string) (<-chan Chunk, error)
}
