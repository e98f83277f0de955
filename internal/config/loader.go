package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"vistaar", "openai"},
	"stt": {"indic-conformer"},
	"tts": {"indic-parler"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Telephony
	if cfg.Telephony.Provider == "" {
		errs = append(errs, errors.New("telephony.provider is required; valid values: ubona, vobiz"))
	} else if !cfg.Telephony.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("telephony.provider %q is invalid; valid values: ubona, vobiz", cfg.Telephony.Provider))
	}
	switch cfg.Telephony.SampleRate {
	case 0, 8000:
	case 16000:
		if cfg.Telephony.Provider == TelephonyUbona {
			errs = append(errs, errors.New("telephony.sample_rate 16000 is only supported by the vobiz dialect"))
		}
	default:
		errs = append(errs, fmt.Errorf("telephony.sample_rate %d is invalid; valid values: 8000, 16000", cfg.Telephony.SampleRate))
	}

	// Hold
	if cfg.Hold.Timeout < 0 {
		errs = append(errs, fmt.Errorf("hold.timeout %s must not be negative", cfg.Hold.Timeout))
	}

	// Session
	if cfg.Session.SilenceGap < 0 {
		errs = append(errs, fmt.Errorf("session.silence_gap %s must not be negative", cfg.Session.SilenceGap))
	}
	if cfg.Session.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("session.history_limit %d must not be negative", cfg.Session.HistoryLimit))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	// Pipeline availability warnings. A gateway with no generation or
	// synthesis stage still bridges media but answers nothing.
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; calls will not receive generated responses")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("no TTS provider configured; generated text will not be spoken")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; caller audio will not be transcribed")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
