// Package ubona implements the Ubona media-stream WebSocket protocol: JSON
// text frames carrying base64 μ-law audio, with per-session sequence
// numbering, DTMF decoding, and ping/pong keepalive.
//
// The serializer owns all protocol state for one call leg. It is not safe for
// concurrent use; one session's inbound and outbound processing must drive it
// cooperatively.
package ubona

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kenpath-ai/voicebridge/pkg/audio"
	"github.com/kenpath-ai/voicebridge/pkg/frames"
	"github.com/kenpath-ai/voicebridge/pkg/serializer"
	"github.com/kenpath-ai/voicebridge/pkg/serializer/dtmf"
)

// defaultSampleRate is the Ubona wire rate: 8 kHz μ-law telephony audio.
const defaultSampleRate = 8000

// Option is a functional option for configuring the Serializer.
type Option func(*Serializer)

// WithSampleRate pins the session sample rate in Hz. A configured rate always
// wins over the rate negotiated in the start event.
func WithSampleRate(rate int) Option {
	return func(s *Serializer) { s.configuredRate = rate }
}

// Serializer translates canonical frames to and from the Ubona JSON protocol.
type Serializer struct {
	streamID string
	callID   string

	configuredRate int
	sampleRate     int

	// seqNum is incremented exactly once per outbound media/clear frame;
	// the first emitted value is 1.
	seqNum int

	// pendingPong is a single-slot mailbox. A new ping overwrites any
	// unconsumed pong; the transport polls and clears it out-of-band.
	pendingPong []byte

	// Resamplers are created on first use and live for the session.
	inResampler  *audio.Resampler
	outResampler *audio.Resampler

	now func() time.Time
}

var (
	_ serializer.Serializer = (*Serializer)(nil)
	_ serializer.PongBuffer = (*Serializer)(nil)
)

// New constructs a Serializer for one stream session. streamID and callID are
// the provider-assigned identifiers and are immutable for the session.
func New(streamID, callID string, opts ...Option) *Serializer {
	s := &Serializer{
		streamID:       streamID,
		callID:         callID,
		configuredRate: defaultSampleRate,
		sampleRate:     defaultSampleRate,
		now:            time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.sampleRate = s.configuredRate
	return s
}

// Format reports that Ubona messages are JSON text frames.
func (s *Serializer) Format() serializer.Format { return serializer.FormatText }

// Setup finalises the session sample rate: the configured rate if one was
// given, otherwise the negotiated pipeline input rate.
func (s *Serializer) Setup(start frames.Start) error {
	if s.configuredRate != 0 {
		s.sampleRate = s.configuredRate
	} else {
		s.sampleRate = start.InputSampleRate
	}
	return nil
}

// ─── Wire message types ───────────────────────────────────────────────────────

type mediaPayload struct {
	TS      int64  `json:"ts"`
	Payload string `json:"payload"`
}

type outboundMessage struct {
	Event    string        `json:"event"`
	SeqNum   int           `json:"seqNum"`
	StreamID string        `json:"streamId"`
	Media    *mediaPayload `json:"media,omitempty"`
}

type inboundMessage struct {
	Event string `json:"event"`
	TS    *int64 `json:"ts,omitempty"`
	Media struct {
		Payload string `json:"payload"`
	} `json:"media"`
	DTMF struct {
		Digit string `json:"digit"`
	} `json:"dtmf"`
}

type pongMessage struct {
	Event string `json:"event"`
	TS    int64  `json:"ts"`
}

// ─── Serializer interface ─────────────────────────────────────────────────────

// Serialize translates an outbound frame into an Ubona JSON message.
//
// Interruptions become "clear" events, audio becomes base64 μ-law "media"
// events, and transport messages pass through verbatim. Each media/clear
// event consumes one sequence number. Frame kinds the protocol does not
// carry, and audio that encodes to nothing, yield (nil, nil).
func (s *Serializer) Serialize(f frames.Frame) ([]byte, error) {
	switch f := f.(type) {
	case frames.Interruption:
		msg := outboundMessage{
			Event:    "clear",
			SeqNum:   s.nextSeq(),
			StreamID: s.streamID,
		}
		return marshal(msg)

	case frames.Audio:
		if s.outResampler == nil {
			s.outResampler = &audio.Resampler{}
		}
		ulaw := audio.PCMToUlaw(f.PCM, f.SampleRate, s.sampleRate, s.outResampler)
		if len(ulaw) == 0 {
			return nil, nil
		}
		msg := outboundMessage{
			Event:    "media",
			SeqNum:   s.nextSeq(),
			StreamID: s.streamID,
			Media: &mediaPayload{
				TS:      s.epochMillis(),
				Payload: base64.StdEncoding.EncodeToString(ulaw),
			},
		}
		return marshal(msg)

	case frames.TransportMessage:
		return marshal(f.Payload)

	default:
		return nil, nil
	}
}

// Deserialize translates an inbound Ubona JSON message into a canonical
// frame. Malformed JSON, missing payloads, invalid DTMF digits, and unknown
// events are dropped silently — the protocol tolerates keepalive noise.
//
// A "ping" event produces no frame; it buffers a pong echoing the ping's
// timestamp, retrievable through [Serializer.PendingPong].
func (s *Serializer) Deserialize(data []byte) (frames.Frame, error) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, nil
	}

	switch msg.Event {
	case "media":
		if msg.Media.Payload == "" {
			return nil, nil
		}
		ulaw, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
		if err != nil {
			return nil, nil
		}
		if s.inResampler == nil {
			s.inResampler = &audio.Resampler{}
		}
		pcm := audio.UlawToPCM(ulaw, s.sampleRate, s.sampleRate, s.inResampler)
		if len(pcm) == 0 {
			return nil, nil
		}
		return frames.Audio{PCM: pcm, SampleRate: s.sampleRate, Channels: 1}, nil

	case "dtmf":
		key, err := dtmf.ParseKey(msg.DTMF.Digit)
		if err != nil {
			slog.Warn("ubona: dropping invalid DTMF digit",
				"digit", msg.DTMF.Digit, "stream_id", s.streamID)
			return nil, nil
		}
		return frames.DTMF{Key: key}, nil

	case "ping":
		// The pong must echo the ping's timestamp for round-trip measurement;
		// only fall back to the local clock when the ping carries none.
		ts := s.epochMillis()
		if msg.TS != nil {
			ts = *msg.TS
		}
		pong, err := marshal(pongMessage{Event: "pong", TS: ts})
		if err != nil {
			return nil, nil
		}
		s.pendingPong = pong
		return nil, nil

	default:
		return nil, nil
	}
}

// PendingPong returns the buffered pong message and clears the slot.
func (s *Serializer) PendingPong() ([]byte, bool) {
	if s.pendingPong == nil {
		return nil, false
	}
	pong := s.pendingPong
	s.pendingPong = nil
	return pong, true
}

// ─── Internal helpers ─────────────────────────────────────────────────────────

func (s *Serializer) nextSeq() int {
	s.seqNum++
	return s.seqNum
}

func (s *Serializer) epochMillis() int64 {
	return s.now().UnixMilli()
}

func marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ubona: marshal wire message: %w", err)
	}
	return data, nil
}
