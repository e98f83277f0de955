package indicparler_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kenpath-ai/voicebridge/pkg/provider/tts"
	"github.com/kenpath-ai/voicebridge/pkg/provider/tts/indicparler"
)

func TestMissingServerURLIsFatal(t *testing.T) {
	if _, err := indicparler.New(""); err == nil {
		t.Fatal("expected a construction error for empty serverURL")
	}
}

func TestSynthesizeStreamsChunks(t *testing.T) {
	chunk1 := []byte{1, 2, 3, 4}
	chunk2 := []byte{5, 6, 7, 8}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts/stream" {
			t.Errorf("path: got %q, want /tts/stream", r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("request body: %v", err)
		}
		if req["text"] != "hello world" {
			t.Errorf("text: got %v", req["text"])
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintf(w, `{"audio":%q,"sample_rate":44100}`+"\n", base64.StdEncoding.EncodeToString(chunk1))
		fmt.Fprintf(w, `{"audio":%q}`+"\n", base64.StdEncoding.EncodeToString(chunk2))
		fmt.Fprintln(w, `{"done":true}`)
	}))
	defer srv.Close()

	p, err := indicparler.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, err := p.Synthesize(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	var got []tts.Chunk
	for c := range ch {
		if c.Err != nil {
			t.Fatalf("chunk error: %v", c.Err)
		}
		got = append(got, c)
	}
	if len(got) != 2 {
		t.Fatalf("chunk count: got %d, want 2", len(got))
	}
	if got[0].Audio.SampleRate != 44100 {
		t.Errorf("chunk 1 rate: got %d, want 44100", got[0].Audio.SampleRate)
	}
	// A line without sample_rate falls back to the provider default.
	if got[1].Audio.SampleRate != 44100 {
		t.Errorf("chunk 2 rate: got %d, want 44100 (default)", got[1].Audio.SampleRate)
	}
	if len(got[0].Audio.PCM) != len(chunk1) || len(got[1].Audio.PCM) != len(chunk2) {
		t.Error("PCM payloads were not decoded intact")
	}
}

func TestSynthesizeServerErrorLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"error":"model overloaded"}`)
	}))
	defer srv.Close()

	p, _ := indicparler.New(srv.URL)
	ch, err := p.Synthesize(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	var last tts.Chunk
	for c := range ch {
		last = c
	}
	if last.Err == nil {
		t.Fatal("expected the error line to surface as a chunk error")
	}
}

func TestSynthesizeNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := indicparler.New(srv.URL)
	if _, err := p.Synthesize(context.Background(), "hi"); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestSynthesizeEmptyTextCompletesImmediately(t *testing.T) {
	p, _ := indicparler.New("http://localhost:1")
	ch, err := p.Synthesize(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatal("expected no chunks for empty text")
	}
}
