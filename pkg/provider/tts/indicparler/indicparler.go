// Package indicparler provides a TTS provider backed by an IndicParler
// streaming REST server. The server answers POST /tts/stream with an NDJSON
// body: one JSON object per line carrying a base64 audio chunk and its sample
// rate, a "done" marker at end of stream, or an "error" field on failure.
package indicparler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kenpath-ai/voicebridge/pkg/frames"
	"github.com/kenpath-ai/voicebridge/pkg/provider/tts"
)

const (
	streamPath = "/tts/stream"

	defaultSpeaker     = "Divya"
	defaultDescription = "A clear, natural voice with good audio quality."
	defaultSampleRate  = 44100
	defaultPlaySteps   = 0.15

	requestTimeout = 120 * time.Second
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithSpeaker selects the server-side speaker preset.
func WithSpeaker(speaker string) Option {
	return func(p *Provider) { p.speaker = speaker }
}

// WithDescription sets the free-text voice description sent with each request.
func WithDescription(desc string) Option {
	return func(p *Provider) { p.description = desc }
}

// WithSampleRate sets the sample rate assumed for chunks whose NDJSON line
// does not carry one (default 44100).
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithPlaySteps sets the server-side chunking interval in seconds; smaller
// values trade throughput for lower first-audio latency.
func WithPlaySteps(seconds float64) Option {
	return func(p *Provider) { p.playSteps = seconds }
}

// Provider implements tts.Provider against an IndicParler streaming server.
type Provider struct {
	url         string
	speaker     string
	description string
	sampleRate  int
	playSteps   float64

	// httpClient is long-lived so connections are reused across utterances.
	httpClient *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New constructs a Provider. serverURL must be non-empty; a missing endpoint
// is a configuration error and is fatal here rather than at first use.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("indicparler: serverURL must not be empty")
	}
	p := &Provider{
		url:         strings.TrimRight(serverURL, "/") + streamPath,
		speaker:     defaultSpeaker,
		description: defaultDescription,
		sampleRate:  defaultSampleRate,
		playSteps:   defaultPlaySteps,
		httpClient:  &http.Client{Timeout: requestTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ─── Wire message types ───────────────────────────────────────────────────────

type synthesisRequest struct {
	Text        string  `json:"text"`
	Description string  `json:"description"`
	Speaker     string  `json:"speaker"`
	PlaySteps   float64 `json:"play_steps_in_s"`
}

type synthesisLine struct {
	Audio      string `json:"audio,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Done       bool   `json:"done,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Synthesize implements tts.Provider. Empty or whitespace-only text completes
// immediately with no audio.
func (p *Provider) Synthesize(ctx context.Context, text string) (<-chan tts.Chunk, error) {
	ch := make(chan tts.Chunk, 16)

	if strings.TrimSpace(text) == "" {
		close(ch)
		return ch, nil
	}

	body, err := json.Marshal(synthesisRequest{
		Text:        text,
		Description: p.description,
		Speaker:     p.speaker,
		PlaySteps:   p.playSteps,
	})
	if err != nil {
		return nil, fmt.Errorf("indicparler: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("indicparler: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indicparler: request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("indicparler: server error %d", resp.StatusCode)
	}

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var msg synthesisLine
			if err := json.Unmarshal(line, &msg); err != nil {
				// Partial or garbled line; the stream remains usable.
				continue
			}

			if msg.Error != "" {
				send(ctx, ch, tts.Chunk{Err: fmt.Errorf("indicparler: %s", msg.Error)})
				return
			}
			if msg.Done {
				return
			}
			if msg.Audio == "" {
				continue
			}

			pcm, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil || len(pcm) == 0 {
				continue
			}
			rate := msg.SampleRate
			if rate == 0 {
				rate = p.sampleRate
			}
			if !send(ctx, ch, tts.Chunk{Audio: frames.Audio{PCM: pcm, SampleRate: rate, Channels: 1}}) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			send(ctx, ch, tts.Chunk{Err: fmt.Errorf("indicparler: read stream: %w", err)})
		}
	}()

	return ch, nil
}

func send(ctx context.Context, ch chan<- tts.Chunk, c tts.Chunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
