// Package vistaar provides a generation provider backed by the Vistaar voice
// query API. The API streams an answer as plain text over a chunked HTTP
// response; this provider re-chunks it into whole words so downstream speech
// synthesis can start as early as possible.
package vistaar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kenpath-ai/voicebridge/pkg/provider/llm"
)

const (
	voicePath      = "/api/voice/"
	defaultLang    = "mr"
	defaultTimeout = 60 * time.Second
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithLanguages sets the source and target language codes sent with each
// query (default "mr" for both).
func WithLanguages(source, target string) Option {
	return func(p *Provider) {
		p.sourceLang = source
		p.targetLang = target
	}
}

// WithTimeout sets the total per-request timeout (default 60s).
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// Provider implements llm.Provider against the Vistaar voice API.
type Provider struct {
	baseURL    string
	sourceLang string
	targetLang string
	httpClient *http.Client

	// newSessionID is swappable for tests.
	newSessionID func() string
}

var _ llm.Provider = (*Provider)(nil)

// New constructs a Provider. baseURL must be non-empty; a missing endpoint is
// a configuration error and is fatal here rather than at first use.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("vistaar: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:      strings.TrimRight(baseURL, "/"),
		sourceLang:   defaultLang,
		targetLang:   defaultLang,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		newSessionID: uuid.NewString,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StreamCompletion sends the most recent user message as a Vistaar voice
// query and streams the answer back as word chunks, each carrying one word
// plus its trailing space. The channel is closed after the final chunk; an
// upstream failure mid-stream is delivered as a final chunk with Err set.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	query := llm.LastUserMessage(req.Messages)
	if query == "" {
		return nil, errors.New("vistaar: no user message in request")
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("source_lang", p.sourceLang)
	params.Set("target_lang", p.targetLang)
	params.Set("session_id", p.newSessionID())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+voicePath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("vistaar: build request: %w", err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("vistaar: request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("vistaar: API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := &wordScanner{}
		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				for _, word := range scanner.write(buf[:n]) {
					if !send(ctx, ch, llm.Chunk{Text: word}) {
						return
					}
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					if rest := scanner.flush(); rest != "" {
						if !send(ctx, ch, llm.Chunk{Text: rest}) {
							return
						}
					}
					send(ctx, ch, llm.Chunk{FinishReason: "stop"})
					return
				}
				send(ctx, ch, llm.Chunk{Err: fmt.Errorf("vistaar: read stream: %w", err)})
				return
			}
		}
	}()
	return ch, nil
}

// send delivers a chunk unless ctx is cancelled first.
func send(ctx context.Context, ch chan<- llm.Chunk, c llm.Chunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
