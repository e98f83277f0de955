// Package vobiz implements the Vobiz media-stream protocol. Vobiz is
// Plivo-compatible on the wire, with one divergence: alongside the vendor's
// native 8 kHz μ-law mode it supports a 16 kHz uncompressed linear-PCM (L16)
// codec mode.
//
// The codec mode is decided once, at session construction, from the
// configured sample rate. Rather than subclass-style overriding, the
// Serializer composes the Plivo base serializer and routes around it only for
// the L16 audio paths; sequencing, interruption, DTMF, and pass-through
// behaviour stay with the base in both modes.
package vobiz

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/kenpath-ai/voicebridge/pkg/audio"
	"github.com/kenpath-ai/voicebridge/pkg/frames"
	"github.com/kenpath-ai/voicebridge/pkg/serializer"
	"github.com/kenpath-ai/voicebridge/pkg/serializer/plivo"
)

// linearSampleRate is the wire rate of the L16 codec mode.
const linearSampleRate = 16000

// contentTypeL16 is the playAudio content type for raw linear-PCM payloads.
const contentTypeL16 = "audio/x-l16"

// CodecMode selects the wire payload encoding for a session's lifetime.
type CodecMode int

const (
	// ULaw8k is the vendor-native mode: 8 kHz μ-law, handled entirely by the
	// Plivo base serializer.
	ULaw8k CodecMode = iota

	// Linear16k carries uncompressed 16 kHz 16-bit PCM.
	Linear16k
)

// String returns the human-readable codec mode name.
func (m CodecMode) String() string {
	switch m {
	case ULaw8k:
		return "ulaw-8k"
	case Linear16k:
		return "linear16-16k"
	default:
		return "unknown"
	}
}

// Option is a functional option for configuring the Serializer.
type Option func(*config)

type config struct {
	sampleRate int
}

// WithSampleRate sets the configured session sample rate in Hz. 16000 selects
// [Linear16k]; any other value keeps the vendor-native [ULaw8k] mode.
func WithSampleRate(rate int) Option {
	return func(c *config) { c.sampleRate = rate }
}

// Serializer translates canonical frames to and from the Vobiz protocol.
// It owns all protocol state for one call leg and is not safe for concurrent
// use.
type Serializer struct {
	streamID string
	mode     CodecMode
	base     *plivo.Serializer

	// outResampler converts odd-rate outbound audio to 16 kHz in L16 mode.
	// Created on first use, session-scoped.
	outResampler *audio.Resampler
}

var _ serializer.Serializer = (*Serializer)(nil)

// New constructs a Serializer for one stream session. The codec mode is fixed
// here, from the configured sample rate, and is never renegotiated per frame.
func New(streamID, callID string, opts ...Option) *Serializer {
	cfg := config{sampleRate: 8000}
	for _, o := range opts {
		o(&cfg)
	}

	mode := ULaw8k
	if cfg.sampleRate == linearSampleRate {
		mode = Linear16k
	}
	return &Serializer{
		streamID: streamID,
		mode:     mode,
		base:     plivo.New(streamID, callID, plivo.WithSampleRate(cfg.sampleRate)),
	}
}

// Mode reports the codec mode fixed at construction.
func (s *Serializer) Mode() CodecMode { return s.mode }

// Format reports that Vobiz messages are JSON text frames.
func (s *Serializer) Format() serializer.Format { return serializer.FormatText }

// Setup delegates session setup to the base serializer.
func (s *Serializer) Setup(start frames.Start) error {
	return s.base.Setup(start)
}

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

// Serialize translates an outbound frame into a Vobiz JSON message.
//
// In L16 mode, audio is resampled to 16 kHz only when the frame's native rate
// differs, base64-encoded raw (no codec transform), and emitted as a
// "playAudio" event with the L16 content type. Every other frame kind — and
// everything in μ-law mode — delegates verbatim to the Plivo base.
func (s *Serializer) Serialize(f frames.Frame) ([]byte, error) {
	af, ok := f.(frames.Audio)
	if s.mode != Linear16k || !ok {
		return s.base.Serialize(f)
	}

	pcm := af.PCM
	if af.SampleRate != linearSampleRate {
		if s.outResampler == nil {
			s.outResampler = &audio.Resampler{}
		}
		pcm = s.outResampler.Resample(pcm, af.SampleRate, linearSampleRate)
	}
	if len(pcm) == 0 {
		return nil, nil
	}

	msg := playAudioMessage{
		Event: "playAudio",
		Media: playMedia{
			ContentType: contentTypeL16,
			SampleRate:  linearSampleRate,
			Payload:     base64.StdEncoding.EncodeToString(pcm),
		},
		StreamID: s.streamID,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("vobiz: marshal playAudio: %w", err)
	}
	return data, nil
}

// Deserialize translates an inbound Vobiz JSON message into a canonical
// frame.
//
// In L16 mode, a "media" event's payload is raw 16 kHz PCM and is wrapped
// byte-identically (no codec decode). Any other event, and all of μ-law mode,
// delegates to the Plivo base, which also handles DTMF and control events.
func (s *Serializer) Deserialize(data []byte) (frames.Frame, error) {
	if s.mode != Linear16k {
		return s.base.Deserialize(data)
	}

	var msg struct {
		Event string `json:"event"`
		Media struct {
			Payload string `json:"payload"`
		} `json:"media"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, nil
	}
	if msg.Event != "media" {
		return s.base.Deserialize(data)
	}
	if msg.Media.Payload == "" {
		return nil, nil
	}
	pcm, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
	if err != nil {
		return nil, nil
	}
	if len(pcm) == 0 {
		return nil, nil
	}
	return frames.Audio{PCM: pcm, SampleRate: linearSampleRate, Channels: 1}, nil
}
