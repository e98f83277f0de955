package indicconformer_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kenpath-ai/voicebridge/pkg/provider/stt/indicconformer"
)

func TestMissingServerURLIsFatal(t *testing.T) {
	if _, err := indicconformer.New(""); err == nil {
		t.Fatal("expected a construction error for empty serverURL")
	}
}

func TestTranscribe(t *testing.T) {
	pcm := make([]byte, 4000) // 2000 samples at 16 kHz, above the floor

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" {
			t.Errorf("path: got %q, want /transcribe", r.URL.Path)
		}
		var req struct {
			AudioB64   string `json:"audio_b64"`
			LanguageID string `json:"language_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.LanguageID != "mr" {
			t.Errorf("language_id: got %q, want mr", req.LanguageID)
		}
		decoded, err := base64.StdEncoding.DecodeString(req.AudioB64)
		if err != nil || len(decoded) != len(pcm) {
			t.Errorf("audio_b64: decoded %d bytes, want %d (err=%v)", len(decoded), len(pcm), err)
		}
		json.NewEncoder(w).Encode(map[string]string{"text": " नमस्कार "})
	}))
	defer srv.Close()

	p, err := indicconformer.New(srv.URL, indicconformer.WithLanguage("mr"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := p.Transcribe(context.Background(), pcm, 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "नमस्कार" {
		t.Errorf("text: got %q, want नमस्कार", text)
	}
}

func TestTranscribeShortUtteranceSkipsRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("server must not be called for a sub-floor utterance")
	}))
	defer srv.Close()

	p, _ := indicconformer.New(srv.URL)
	text, err := p.Transcribe(context.Background(), make([]byte, 100), 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "" {
		t.Errorf("text: got %q, want empty", text)
	}
}

func TestTranscribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := indicconformer.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), make([]byte, 4000), 16000); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}
