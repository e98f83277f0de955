// Package frames defines the canonical, provider-agnostic frame model shared
// by all VoiceBridge packages.
//
// Frames are the lingua franca between the telephony serializers, the
// generation/synthesis providers, and the session glue. The set of kinds is a
// closed tagged union: every type in this package that implements [Frame]
// embeds no others, and consumers are expected to match exhaustively with a
// type switch rather than probing for optional behaviour.
package frames

import (
	"context"

	"github.com/kenpath-ai/voicebridge/pkg/serializer/dtmf"
)

// Frame is the sealed interface implemented by every canonical frame kind.
// It cannot be implemented outside this package.
type Frame interface {
	isFrame()
}

// Audio carries raw PCM samples through the pipeline. Audio values are
// immutable once constructed; producers must not reuse the PCM buffer.
type Audio struct {
	// PCM is little-endian 16-bit linear PCM data.
	PCM []byte

	// SampleRate in Hz (e.g., 8000 for telephony μ-law, 16000 for L16).
	SampleRate int

	// Channels is the channel count. Telephony media is always mono (1).
	Channels int
}

// Interruption signals that buffered downstream audio must be flushed,
// typically because the caller started speaking over the bot.
type Interruption struct{}

// DTMF is a telephone keypad press decoded from the inbound media stream.
type DTMF struct {
	Key dtmf.Key
}

// TransportMessage is an opaque provider-specific control message emitted
// outbound. Serializers pass the payload through as JSON verbatim.
type TransportMessage struct {
	Payload map[string]any
}

// Start announces a new stream session. Serializers receive it exactly once,
// before any other frame, and use it to finalise their sample rates.
type Start struct {
	// StreamID is the provider-assigned stream identifier.
	StreamID string

	// CallID is the provider-assigned call identifier.
	CallID string

	// InputSampleRate is the negotiated inbound rate in Hz.
	InputSampleRate int

	// OutputSampleRate is the negotiated outbound rate in Hz.
	OutputSampleRate int
}

// Text is a chunk of generated answer text on its way to speech synthesis.
// Chunks are forwarded in generation order, each exactly once.
type Text struct {
	Content string
}

// Speak is an immediate speech request. The synthesis stage is contractually
// required to queue it ahead of any Text frames produced afterwards; the
// hold-message scheduler relies on this to keep its filler utterance before
// the real answer.
type Speak struct {
	Text string
}

func (Audio) isFrame()            {}
func (Interruption) isFrame()     {}
func (DTMF) isFrame()             {}
func (TransportMessage) isFrame() {}
func (Start) isFrame()            {}
func (Text) isFrame()             {}
func (Speak) isFrame()            {}

// Sink receives frames emitted by a pipeline stage. The pipeline engine that
// moves frames between stages is external to this module; Sink is the
// boundary it exposes to us.
//
// Implementations must be safe for concurrent use.
type Sink interface {
	// Push delivers a frame downstream. It may block until the frame is
	// accepted and must respect context cancellation.
	Push(ctx context.Context, f Frame) error
}
