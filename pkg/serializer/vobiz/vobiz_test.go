package vobiz_test

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/kenpath-ai/voicebridge/pkg/frames"
	"github.com/kenpath-ai/voicebridge/pkg/serializer/vobiz"
)

func pcm(samples int) []byte {
	buf := make([]byte, samples*2)
	for i := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(i*37))
	}
	return buf
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, data)
	}
	return m
}

func TestModeSelection(t *testing.T) {
	if got := vobiz.New("s", "c").Mode(); got != vobiz.ULaw8k {
		t.Errorf("default mode: got %v, want ULaw8k", got)
	}
	if got := vobiz.New("s", "c", vobiz.WithSampleRate(16000)).Mode(); got != vobiz.Linear16k {
		t.Errorf("16 kHz mode: got %v, want Linear16k", got)
	}
	if got := vobiz.New("s", "c", vobiz.WithSampleRate(8000)).Mode(); got != vobiz.ULaw8k {
		t.Errorf("8 kHz mode: got %v, want ULaw8k", got)
	}
}

func TestSerializeLinear16PlayAudio(t *testing.T) {
	s := vobiz.New("stream-1", "call-1", vobiz.WithSampleRate(16000))

	in := pcm(320)
	data, err := s.Serialize(frames.Audio{PCM: in, SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	msg := decode(t, data)
	if msg["event"] != "playAudio" {
		t.Fatalf("event: got %v, want playAudio", msg["event"])
	}
	media := msg["media"].(map[string]any)
	if media["contentType"] != "audio/x-l16" {
		t.Errorf("contentType: got %v, want audio/x-l16", media["contentType"])
	}
	if media["sampleRate"] != float64(16000) {
		t.Errorf("sampleRate: got %v, want 16000", media["sampleRate"])
	}
	payload, err := base64.StdEncoding.DecodeString(media["payload"].(string))
	if err != nil {
		t.Fatalf("payload is not base64: %v", err)
	}
	// Native-rate audio passes through with no codec transform.
	if !bytes.Equal(payload, in) {
		t.Error("payload is not byte-identical to the input PCM")
	}
}

func TestSerializeLinear16ResamplesForeignRate(t *testing.T) {
	s := vobiz.New("stream-1", "call-1", vobiz.WithSampleRate(16000))

	data, err := s.Serialize(frames.Audio{PCM: pcm(160), SampleRate: 8000, Channels: 1})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	media := decode(t, data)["media"].(map[string]any)
	payload, _ := base64.StdEncoding.DecodeString(media["payload"].(string))
	// 160 samples at 8 kHz become ~320 at 16 kHz.
	if got := len(payload) / 2; got < 319 || got > 321 {
		t.Errorf("resampled sample count: got %d, want ~320", got)
	}
}

func TestSerializeULawModeDelegates(t *testing.T) {
	s := vobiz.New("stream-1", "call-1", vobiz.WithSampleRate(8000))

	data, err := s.Serialize(frames.Audio{PCM: pcm(160), SampleRate: 8000, Channels: 1})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	media := decode(t, data)["media"].(map[string]any)
	if media["contentType"] != "audio/x-mulaw" {
		t.Errorf("contentType: got %v, want audio/x-mulaw (base delegation)", media["contentType"])
	}
}

func TestSerializeInterruptionDelegatesInBothModes(t *testing.T) {
	for _, rate := range []int{8000, 16000} {
		s := vobiz.New("stream-1", "call-1", vobiz.WithSampleRate(rate))
		data, err := s.Serialize(frames.Interruption{})
		if err != nil {
			t.Fatalf("rate %d: Serialize: %v", rate, err)
		}
		if got := decode(t, data)["event"]; got != "clearAudio" {
			t.Errorf("rate %d: event: got %v, want clearAudio", rate, got)
		}
	}
}

func TestDeserializeLinear16ByteIdentical(t *testing.T) {
	s := vobiz.New("stream-1", "call-1", vobiz.WithSampleRate(16000))

	in := pcm(320)
	payload := base64.StdEncoding.EncodeToString(in)
	f, err := s.Deserialize([]byte(`{"event":"media","media":{"payload":"` + payload + `"}}`))
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	af, ok := f.(frames.Audio)
	if !ok {
		t.Fatalf("got %T, want frames.Audio", f)
	}
	if af.SampleRate != 16000 {
		t.Errorf("sample rate: got %d, want 16000", af.SampleRate)
	}
	if !bytes.Equal(af.PCM, in) {
		t.Error("PCM is not byte-identical (codec decode must not be applied)")
	}
}

func TestDeserializeLinear16DTMFDelegates(t *testing.T) {
	s := vobiz.New("stream-1", "call-1", vobiz.WithSampleRate(16000))
	f, err := s.Deserialize([]byte(`{"event":"dtmf","dtmf":{"digit":"4"}}`))
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if _, ok := f.(frames.DTMF); !ok {
		t.Fatalf("got %T, want frames.DTMF (base delegation)", f)
	}
}

func TestDeserializeLinear16DropsEmptyPayload(t *testing.T) {
	s := vobiz.New("stream-1", "call-1", vobiz.WithSampleRate(16000))
	f, err := s.Deserialize([]byte(`{"event":"media","media":{}}`))
	if err != nil || f != nil {
		t.Fatalf("missing payload: got frame %v, err %v", f, err)
	}
}

func TestDeserializeULawModeDelegates(t *testing.T) {
	s := vobiz.New("stream-1", "call-1", vobiz.WithSampleRate(8000))

	ulaw := make([]byte, 160)
	payload := base64.StdEncoding.EncodeToString(ulaw)
	f, err := s.Deserialize([]byte(`{"event":"media","media":{"payload":"` + payload + `"}}`))
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	af, ok := f.(frames.Audio)
	if !ok {
		t.Fatalf("got %T, want frames.Audio", f)
	}
	if af.SampleRate != 8000 {
		t.Errorf("sample rate: got %d, want 8000 (base μ-law decode)", af.SampleRate)
	}
}
