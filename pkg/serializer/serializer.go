// Package serializer defines the contract between the frame pipeline and a
// telephony provider's wire protocol.
//
// A Serializer owns the protocol state of exactly one stream session: its
// sequence numbering, codec/resampler state, and any buffered control
// messages. Serializers are driven by that session's cooperative tasks only
// and are therefore not required to be safe for concurrent use.
package serializer

import "github.com/kenpath-ai/voicebridge/pkg/frames"

// Format indicates how a serializer's wire messages are framed on the
// underlying transport.
type Format int

const (
	// FormatText means messages are UTF-8 text frames (JSON protocols).
	FormatText Format = iota

	// FormatBinary means messages are binary frames.
	FormatBinary
)

// Serializer translates between canonical frames and one provider's wire
// protocol.
//
// Both Serialize and Deserialize may legitimately produce nothing: a nil
// result with a nil error means the input was consumed without output.
// Telephony protocols are keepalive-tolerant, so malformed or unknown wire
// input is dropped silently rather than surfaced as an error.
type Serializer interface {
	// Format reports the transport framing this serializer emits.
	Format() Format

	// Setup finalises session parameters from the start event. It is called
	// exactly once, before any Serialize or Deserialize call.
	Setup(start frames.Start) error

	// Serialize translates an outbound canonical frame into a wire message.
	// Frame kinds the protocol does not carry yield (nil, nil).
	Serialize(f frames.Frame) ([]byte, error)

	// Deserialize translates an inbound wire message into a canonical frame.
	// Keepalive noise, malformed input, and unknown events yield (nil, nil).
	Deserialize(data []byte) (frames.Frame, error)
}

// PongBuffer is implemented by serializers whose protocol answers pings with
// pongs. Pings are not pipeline frames, so the pong is parked in a single-slot
// mailbox: a new ping overwrites an unconsumed pong, and the transport must
// poll-and-clear the slot out-of-band from the frame pipeline.
type PongBuffer interface {
	// PendingPong returns the buffered pong message and clears the slot.
	// ok is false when no pong is pending.
	PendingPong() (msg []byte, ok bool)
}
