// Package stt defines the Provider interface for Speech-to-Text backends.
//
// Telephony turns are short, so recognition is a simple synchronous RPC: one
// buffered utterance in, one transcript out. Streaming partial results are
// deliberately out of scope for this interface.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts one utterance of 16-bit mono PCM at sampleRate into
	// text. An utterance too short to recognise yields "" without error.
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error)
}
