package app_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/kenpath-ai/voicebridge/internal/app"
	"github.com/kenpath-ai/voicebridge/internal/config"
	"github.com/kenpath-ai/voicebridge/pkg/frames"
	"github.com/kenpath-ai/voicebridge/pkg/provider/tts"
)

// pcmTTS emits one fixed PCM chunk per synthesis request. The session tests
// use a text-echoing fake; here the audio must survive the wire codec, so the
// payload is well-formed 16-bit PCM.
type pcmTTS struct {
	rate int
}

func (f *pcmTTS) Synthesize(_ context.Context, _ string) (<-chan tts.Chunk, error) {
	out := make(chan tts.Chunk, 1)
	out <- tts.Chunk{Audio: frames.Audio{PCM: make([]byte, 320), SampleRate: f.rate, Channels: 1}}
	close(out)
	return out, nil
}

func gatewayConfig(provider config.Telephony, sampleRate int) *config.Config {
	return &config.Config{
		Telephony: config.TelephonyConfig{Provider: provider, SampleRate: sampleRate},
		Hold:      config.HoldConfig{Timeout: time.Minute},
		Session:   config.SessionConfig{SilenceGap: 40 * time.Millisecond},
	}
}

// dialGateway starts the media endpoint around a and returns a connected
// client.
func dialGateway(t *testing.T, a *app.App) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(a.ServeMedia))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close(websocket.StatusNormalClosure, "") })
	return client
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("client write: %v", err)
	}
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return msg
}

func TestUbonaCallRoundTrip(t *testing.T) {
	a, err := app.New(gatewayConfig(config.TelephonyUbona, 0), &app.Providers{
		STT: &fakeSTT{text: "hello"},
		LLM: &fakeLLM{chunks: []string{"Answer."}},
		TTS: &pcmTTS{rate: 8000},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	client := dialGateway(t, a)

	writeJSON(t, client, map[string]any{
		"event":    "start",
		"streamId": "S1",
		"callId":   "C1",
	})
	writeJSON(t, client, map[string]any{
		"event": "media",
		"media": map[string]any{"payload": base64.StdEncoding.EncodeToString(make([]byte, 160))},
	})

	msg := readJSON(t, client)
	if msg["event"] != "media" {
		t.Fatalf("event = %v, want media", msg["event"])
	}
	if msg["streamId"] != "S1" {
		t.Errorf("streamId = %v, want S1", msg["streamId"])
	}
	if msg["seqNum"] != float64(1) {
		t.Errorf("seqNum = %v, want 1", msg["seqNum"])
	}
	media, ok := msg["media"].(map[string]any)
	if !ok || media["payload"] == "" {
		t.Errorf("missing media payload: %v", msg)
	}
}

func TestVobizLinearCallRoundTrip(t *testing.T) {
	a, err := app.New(gatewayConfig(config.TelephonyVobiz, 16000), &app.Providers{
		STT: &fakeSTT{text: "hello"},
		LLM: &fakeLLM{chunks: []string{"Answer."}},
		TTS: &pcmTTS{rate: 16000},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	client := dialGateway(t, a)

	writeJSON(t, client, map[string]any{
		"event": "start",
		"start": map[string]any{
			"streamId":    "V1",
			"callId":      "VC1",
			"mediaFormat": map[string]any{"sampleRate": 16000},
		},
	})
	writeJSON(t, client, map[string]any{
		"event": "media",
		"media": map[string]any{"payload": base64.StdEncoding.EncodeToString(make([]byte, 640))},
	})

	msg := readJSON(t, client)
	if msg["event"] != "playAudio" {
		t.Fatalf("event = %v, want playAudio", msg["event"])
	}
	media, ok := msg["media"].(map[string]any)
	if !ok {
		t.Fatalf("media field missing: %v", msg)
	}
	if media["contentType"] != "audio/x-l16" {
		t.Errorf("contentType = %v, want audio/x-l16", media["contentType"])
	}
	if media["sampleRate"] != float64(16000) {
		t.Errorf("sampleRate = %v, want 16000", media["sampleRate"])
	}
}

func TestHandshakeToleratesConnectedEvent(t *testing.T) {
	a, err := app.New(gatewayConfig(config.TelephonyUbona, 0), &app.Providers{
		STT: &fakeSTT{text: "hello"},
		LLM: &fakeLLM{chunks: []string{"Answer."}},
		TTS: &pcmTTS{rate: 8000},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	client := dialGateway(t, a)

	writeJSON(t, client, map[string]any{"event": "connected"})
	writeJSON(t, client, map[string]any{
		"event":    "start",
		"streamId": "S2",
		"callId":   "C2",
	})
	writeJSON(t, client, map[string]any{
		"event": "media",
		"media": map[string]any{"payload": base64.StdEncoding.EncodeToString(make([]byte, 160))},
	})

	msg := readJSON(t, client)
	if msg["event"] != "media" || msg["streamId"] != "S2" {
		t.Fatalf("unexpected first outbound message: %v", msg)
	}
}

func TestHandshakeRejectsChatterWithoutStart(t *testing.T) {
	a, err := app.New(gatewayConfig(config.TelephonyUbona, 0), &app.Providers{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	client := dialGateway(t, a)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Write errors are expected once the server abandons the handshake.
	for i := 0; i < 6; i++ {
		if err := client.Write(ctx, websocket.MessageText, []byte(`{"event":"connected"}`)); err != nil {
			return
		}
	}
	for {
		if _, _, err := client.Read(ctx); err != nil {
			return // server gave up on the leg
		}
	}
}

func TestNewRejectsUnknownTelephony(t *testing.T) {
	cfg := gatewayConfig("bananaphone", 0)
	if _, err := app.New(cfg, &app.Providers{}); err == nil {
		t.Fatal("New accepted an unknown telephony provider")
	}
}
