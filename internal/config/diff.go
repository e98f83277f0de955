package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. Only fields that
// can be safely hot-reloaded are tracked; telephony and provider changes
// require a restart and are reported as such.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// HoldChanged is true when the filler rotation or timeout changed.
	// Running calls pick the new rotation up on their next turn.
	HoldChanged bool
	NewHold     HoldConfig

	// RestartRequired is true when a field that cannot be hot-swapped
	// (telephony dialect, provider endpoints, listen address) changed.
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Hold.Timeout != new.Hold.Timeout || !slices.Equal(old.Hold.Messages, new.Hold.Messages) {
		d.HoldChanged = true
		d.NewHold = new.Hold
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Telephony != new.Telephony ||
		!providerEntryEqual(old.Providers.LLM, new.Providers.LLM) ||
		!providerEntryEqual(old.Providers.STT, new.Providers.STT) ||
		!providerEntryEqual(old.Providers.TTS, new.Providers.TTS) {
		d.RestartRequired = true
	}

	return d
}

// providerEntryEqual compares the static fields of two provider entries.
// The free-form Options map may hold lists and nested maps from YAML, so it
// is compared with reflect.DeepEqual rather than ==.
func providerEntryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	if len(a.Options) > 0 && !reflect.DeepEqual(a.Options, b.Options) {
		return false
	}
	if (a.Fallback == nil) != (b.Fallback == nil) {
		return false
	}
	if a.Fallback != nil && !providerEntryEqual(*a.Fallback, *b.Fallback) {
		return false
	}
	return true
}
