// Package plivo implements the Plivo-compatible media-stream WebSocket
// protocol: JSON text frames carrying base64 μ-law audio at 8 kHz, with
// playAudio/clearAudio control events and DTMF decoding.
//
// This is the vendor-native protocol that the Vobiz serializer builds on; the
// Vobiz 16 kHz L16 mode lives in the vobiz package and delegates everything
// else here unchanged.
package plivo

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kenpath-ai/voicebridge/pkg/audio"
	"github.com/kenpath-ai/voicebridge/pkg/frames"
	"github.com/kenpath-ai/voicebridge/pkg/serializer"
	"github.com/kenpath-ai/voicebridge/pkg/serializer/dtmf"
)

// defaultSampleRate is the vendor wire rate: 8 kHz μ-law telephony audio.
const defaultSampleRate = 8000

// contentTypeUlaw is the playAudio content type for μ-law payloads.
const contentTypeUlaw = "audio/x-mulaw"

// Option is a functional option for configuring the Serializer.
type Option func(*Serializer)

// WithSampleRate pins the session sample rate in Hz. A configured rate always
// wins over the rate negotiated in the start event.
func WithSampleRate(rate int) Option {
	return func(s *Serializer) { s.configuredRate = rate }
}

// Serializer translates canonical frames to and from the Plivo-compatible
// JSON protocol. It owns all protocol state for one call leg and is not safe
// for concurrent use.
type Serializer struct {
	streamID string
	callID   string

	configuredRate int
	sampleRate     int

	// Resamplers are created on first use and live for the session.
	inResampler  *audio.Resampler
	outResampler *audio.Resampler
}

var _ serializer.Serializer = (*Serializer)(nil)

// New constructs a Serializer for one stream session.
func New(streamID, callID string, opts ...Option) *Serializer {
	s := &Serializer{
		streamID:       streamID,
		callID:         callID,
		configuredRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(s)
	}
	s.sampleRate = s.configuredRate
	return s
}

// Format reports that Plivo messages are JSON text frames.
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

type playMedia struct {
	ContentType string `json:"contentType"`
	SampleRate  int    `json:"sampleRate"`
	Payload     string `json:"payload"`
}

type playAudioMessage struct {
	Event    string    `json:"event"`
	Media    playMedia `json:"media"`
	StreamID string    `json:"streamId"`
}

type clearAudioMessage struct {
	Event    string `json:"event"`
	StreamID string `json:"streamId"`
}

type inboundMessage struct {
	Event string `json:"event"`
	Media struct {
		Payload string `json:"payload"`
	} `json:"media"`
	DTMF struct {
		Digit string `json:"digit"`
	} `json:"dtmf"`
}

// ─── Serializer interface ─────────────────────────────────────────────────────

// Serialize translates an outbound frame into a Plivo JSON message:
// interruptions become "clearAudio", audio becomes a μ-law "playAudio", and
// transport messages pass through verbatim. Other frame kinds, and audio that
// encodes to nothing, yield (nil, nil).
func (s *Serializer) Serialize(f frames.Frame) ([]byte, error) {
	switch f := f.(type) {
	case frames.Interruption:
		return marshal(clearAudioMessage{Event: "clearAudio", StreamID: s.streamID})

	case frames.Audio:
		if s.outResampler == nil {
			s.outResampler = &audio.Resampler{}
		}
		ulaw := audio.PCMToUlaw(f.PCM, f.SampleRate, s.sampleRate, s.outResampler)
		if len(ulaw) == 0 {
			return nil, nil
		}
		return marshal(playAudioMessage{
			Event: "playAudio",
			Media: playMedia{
				ContentType: contentTypeUlaw,
				SampleRate:  s.sampleRate,
				Payload:     base64.StdEncoding.EncodeToString(ulaw),
			},
			StreamID: s.streamID,
		})

	case frames.TransportMessage:
		return marshal(f.Payload)

	default:
		return nil, nil
	}
}

// Deserialize translates an inbound Plivo JSON message into a canonical
// frame. Malformed JSON, missing payloads, invalid DTMF digits, and unknown
// events are dropped silently.
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
			slog.Warn("plivo: dropping invalid DTMF digit",
				"digit", msg.DTMF.Digit, "stream_id", s.streamID)
			return nil, nil
		}
		return frames.DTMF{Key: key}, nil

	default:
		return nil, nil
	}
}

func marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("plivo: marshal wire message: %w", err)
	}
	return data, nil
}
