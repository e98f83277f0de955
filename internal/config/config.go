// Package config provides the configuration schema, loader, provider
// registry, and hot-reload watcher for the Voicebridge gateway.
package config

import "time"

// LogLevel controls log verbosity for the Voicebridge server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Telephony selects the media-stream dialect spoken on the WebSocket endpoint.
type Telephony string

const (
	// TelephonyUbona speaks the Ubona JSON protocol with sequence numbering
	// and ping/pong keepalive.
	TelephonyUbona Telephony = "ubona"

	// TelephonyVobiz speaks the Plivo-compatible Vobiz protocol, optionally
	// in 16 kHz linear PCM mode.
	TelephonyVobiz Telephony = "vobiz"
)

// IsValid reports whether t is a recognised telephony dialect.
func (t Telephony) IsValid() bool {
	return t == TelephonyUbona || t == TelephonyVobiz
}

// Config is the root configuration structure for Voicebridge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Telephony TelephonyConfig `yaml:"telephony"`
	Hold      HoldConfig      `yaml:"hold"`
	Providers ProvidersConfig `yaml:"providers"`
	Session   SessionConfig   `yaml:"session"`
}

// ServerConfig holds network and logging settings for the Voicebridge server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// TelephonyConfig selects the wire dialect and session audio rate.
type TelephonyConfig struct {
	// Provider selects the media-stream dialect: "ubona" or "vobiz".
	Provider Telephony `yaml:"provider"`

	// SampleRate pins the session sample rate in Hz. For vobiz, 16000
	// switches the leg into linear 16-bit PCM mode. 0 keeps the dialect's
	// default of 8000 Hz μ-law.
	SampleRate int `yaml:"sample_rate"`
}

// HoldConfig tunes the speculative filler response spoken while generation
// is still working on the real answer.
type HoldConfig struct {
	// Timeout is how long to wait for the first generated chunk before a
	// filler is spoken. 0 keeps the built-in 1s default.
	Timeout time.Duration `yaml:"timeout"`

	// Messages is the filler rotation. Empty keeps the built-in list.
	Messages []string `yaml:"messages"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "vistaar", "openai", "indic-parler").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. Self-hosted
	// collaborators (vistaar, indic-parler, indic-conformer) require it.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above (e.g., stt language_id, tts speaker).
	Options map[string]any `yaml:"options"`

	// Fallback optionally names a second provider to fail over to when this
	// one is down. Fallbacks chain: a fallback may declare its own.
	Fallback *ProviderEntry `yaml:"fallback"`
}

// SessionConfig tunes per-call conversation behaviour.
type SessionConfig struct {
	// SilenceGap is the inbound-audio quiet period that ends an utterance
	// and triggers transcription. 0 keeps the built-in 600ms default.
	SilenceGap time.Duration `yaml:"silence_gap"`

	// HistoryLimit caps the number of conversation turns kept per call.
	// 0 keeps the built-in default of 20.
	HistoryLimit int `yaml:"history_limit"`
}
