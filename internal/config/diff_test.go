package config_test

import (
	"testing"
	"time"

	"github.com/kenpath-ai/voicebridge/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false for identical configs")
	}
	if d.HoldChanged {
		t.Error("expected HoldChanged=false for identical configs")
	}
	if d.RestartRequired {
		t.Error("expected RestartRequired=false for identical configs")
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := validConfig()
	upd := validConfig()
	upd.Server.LogLevel = config.LogDebug

	d := config.Diff(old, upd)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.RestartRequired {
		t.Error("log level change must not require a restart")
	}
}

func TestDiff_HoldMessagesChanged(t *testing.T) {
	t.Parallel()
	old := validConfig()
	upd := validConfig()
	upd.Hold.Messages = []string{"bear with me"}

	d := config.Diff(old, upd)
	if !d.HoldChanged {
		t.Error("expected HoldChanged=true")
	}
	if len(d.NewHold.Messages) != 1 || d.NewHold.Messages[0] != "bear with me" {
		t.Errorf("NewHold.Messages = %v", d.NewHold.Messages)
	}
	if d.RestartRequired {
		t.Error("hold message change must not require a restart")
	}
}

func TestDiff_HoldTimeoutChanged(t *testing.T) {
	t.Parallel()
	old := validConfig()
	upd := validConfig()
	upd.Hold.Timeout = 2 * time.Second

	d := config.Diff(old, upd)
	if !d.HoldChanged {
		t.Error("expected HoldChanged=true")
	}
}

func TestDiff_TelephonyChangeRequiresRestart(t *testing.T) {
	t.Parallel()
	old := validConfig()
	upd := validConfig()
	upd.Telephony.Provider = config.TelephonyVobiz
	upd.Telephony.SampleRate = 16000

	d := config.Diff(old, upd)
	if !d.RestartRequired {
		t.Error("expected RestartRequired=true for telephony change")
	}
}

func TestDiff_ProviderEndpointChangeRequiresRestart(t *testing.T) {
	t.Parallel()
	old := validConfig()
	upd := validConfig()
	upd.Providers.TTS.BaseURL = "http://tts-canary:9002"

	d := config.Diff(old, upd)
	if !d.RestartRequired {
		t.Error("expected RestartRequired=true for provider endpoint change")
	}
}

func TestDiff_NestedProviderOptions(t *testing.T) {
	t.Parallel()

	// The free-form options block may carry YAML lists and nested maps; they
	// must compare by value, not by ==.
	old := validConfig()
	old.Providers.TTS.Options = map[string]any{
		"speakers": []any{"anjali", "arjun"},
		"tuning":   map[string]any{"play_steps_in_s": 0.5},
	}
	upd := validConfig()
	upd.Providers.TTS.Options = map[string]any{
		"speakers": []any{"anjali", "arjun"},
		"tuning":   map[string]any{"play_steps_in_s": 0.5},
	}

	d := config.Diff(old, upd)
	if d.RestartRequired {
		t.Error("expected RestartRequired=false for deep-equal nested options")
	}

	upd.Providers.TTS.Options["speakers"] = []any{"anjali"}
	d = config.Diff(old, upd)
	if !d.RestartRequired {
		t.Error("expected RestartRequired=true when a nested option list changes")
	}
}

func TestDiff_FallbackChangeRequiresRestart(t *testing.T) {
	t.Parallel()
	old := validConfig()
	upd := validConfig()
	upd.Providers.LLM.Fallback = &config.ProviderEntry{
		Name:    "openai",
		BaseURL: "http://openai-proxy:8080",
	}

	d := config.Diff(old, upd)
	if !d.RestartRequired {
		t.Error("expected RestartRequired=true when a fallback provider is added")
	}
}

func TestDiff_ProviderOptionsCompared(t *testing.T) {
	t.Parallel()
	old := validConfig()
	old.Providers.STT.Options = map[string]any{"language_id": "hi"}
	upd := validConfig()
	upd.Providers.STT.Options = map[string]any{"language_id": "mr"}

	d := config.Diff(old, upd)
	if !d.RestartRequired {
		t.Error("expected RestartRequired=true for provider option change")
	}
}
