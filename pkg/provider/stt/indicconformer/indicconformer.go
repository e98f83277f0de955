// Package indicconformer provides an STT provider backed by an
// Indic-Conformer REST server: POST /transcribe with base64 16-bit PCM and a
// language ID, answered synchronously with the transcript.
package indicconformer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kenpath-ai/voicebridge/pkg/audio"
	"github.com/kenpath-ai/voicebridge/pkg/provider/stt"
)

const (
	transcribePath = "/transcribe"

	// serverSampleRate is the rate the recognition model was trained on;
	// all audio is converted to it before upload.
	serverSampleRate = 16000

	// minSamples mirrors the server's floor: utterances shorter than 100 ms
	// are not worth a round trip.
	minSamples = 1600

	defaultLanguage = "hi"
	requestTimeout  = 30 * time.Second
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithLanguage sets the recognition language ID (default "hi").
func WithLanguage(id string) Option {
	return func(p *Provider) { p.language = id }
}

// Provider implements stt.Provider against an Indic-Conformer REST server.
type Provider struct {
	url        string
	language   string
	httpClient *http.Client
}

var _ stt.Provider = (*Provider)(nil)

// New constructs a Provider. serverURL must be non-empty; a missing endpoint
// is a configuration error and is fatal here rather than at first use.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("indicconformer: serverURL must not be empty")
	}
	p := &Provider{
		url:        strings.TrimRight(serverURL, "/") + transcribePath,
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type transcribeRequest struct {
	AudioB64   string `json:"audio_b64"`
	LanguageID string `json:"language_id"`
}

type transcribeResponse struct {
	Text string `json:"text"`
}

// Transcribe implements stt.Provider. Audio is resampled to the model's
// 16 kHz rate before upload; utterances below the recognition floor yield ""
// without a round trip.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	if sampleRate != serverSampleRate {
		r := &audio.Resampler{}
		pcm = r.Resample(pcm, sampleRate, serverSampleRate)
	}
	if len(pcm)/2 < minSamples {
		return "", nil
	}

	body, err := json.Marshal(transcribeRequest{
		AudioB64:   base64.StdEncoding.EncodeToString(pcm),
		LanguageID: p.language,
	})
	if err != nil {
		return "", fmt.Errorf("indicconformer: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("indicconformer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("indicconformer: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("indicconformer: server error %d", resp.StatusCode)
	}

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("indicconformer: decode response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}
