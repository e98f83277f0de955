// Command voicebridge is the telephony voice gateway server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kenpath-ai/voicebridge/internal/app"
	"github.com/kenpath-ai/voicebridge/internal/config"
	"github.com/kenpath-ai/voicebridge/internal/health"
	"github.com/kenpath-ai/voicebridge/internal/observe"
	"github.com/kenpath-ai/voicebridge/internal/resilience"
	"github.com/kenpath-ai/voicebridge/pkg/provider/llm"
	openaillm "github.com/kenpath-ai/voicebridge/pkg/provider/llm/openai"
	"github.com/kenpath-ai/voicebridge/pkg/provider/llm/vistaar"
	"github.com/kenpath-ai/voicebridge/pkg/provider/stt"
	"github.com/kenpath-ai/voicebridge/pkg/provider/stt/indicconformer"
	"github.com/kenpath-ai/voicebridge/pkg/provider/tts"
	"github.com/kenpath-ai/voicebridge/pkg/provider/tts/indicparler"
)

// version is stamped by the build; "dev" for local builds.
var version = "dev"

const defaultListenAddr = ":7860"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicebridge: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicebridge: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}

	slog.Info("voicebridge starting",
		"version", version,
		"config", *configPath,
		"listen_addr", listenAddr,
		"telephony", cfg.Telephony.Provider,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voicebridge",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(cfg, providers, app.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	application.AddCloser(func() error { return otelShutdown(context.Background()) })

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level reloaded", "level", d.NewLogLevel)
		}
		if d.HoldChanged {
			application.ReconfigureHold(d.NewHold.Messages, d.NewHold.Timeout)
		}
		if d.RestartRequired {
			slog.Warn("config change requires a restart to take effect")
		}
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	printStartupSummary(cfg, listenAddr)

	// ── HTTP server ───────────────────────────────────────────────────────────
	// The media endpoint stays outside the HTTP middleware: WebSocket upgrades
	// need the raw ResponseWriter, and a per-call span covers the whole stream
	// anyway.
	ops := http.NewServeMux()
	health.New(healthCheckers(cfg)...).Register(ops)
	ops.Handle("/metrics", promhttp.Handler())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/media", application.ServeMedia)
	mux.Handle("/", observe.Middleware(metrics)(ops))

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.Server.TLS != nil {
			errCh <- srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		slog.Error("server error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Generation ────────────────────────────────────────────────────────────

	reg.RegisterLLM("vistaar", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []vistaar.Option
		src := optString(entry.Options, "source_language")
		dst := optString(entry.Options, "target_language")
		if src != "" || dst != "" {
			if src == "" {
				src = dst
			}
			if dst == "" {
				dst = src
			}
			opts = append(opts, vistaar.WithLanguages(src, dst))
		}
		return vistaar.New(entry.BaseURL, opts...)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaillm.WithBaseURL(entry.BaseURL))
		}
		return openaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("indic-conformer", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []indicconformer.Option
		if lang := optString(entry.Options, "language_id"); lang != "" {
			opts = append(opts, indicconformer.WithLanguage(lang))
		}
		return indicconformer.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("indic-parler", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []indicparler.Option
		if speaker := optString(entry.Options, "speaker"); speaker != "" {
			opts = append(opts, indicparler.WithSpeaker(speaker))
		}
		if desc := optString(entry.Options, "description"); desc != "" {
			opts = append(opts, indicparler.WithDescription(desc))
		}
		return indicparler.New(entry.BaseURL, opts...)
	})
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct. Entries with a fallback
// chain are wrapped in circuit-breaking failover groups.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		if fb := cfg.Providers.LLM.Fallback; fb != nil {
			group := resilience.NewLLMFallback(p, name, resilience.FallbackConfig{})
			for cur := fb; cur != nil; cur = cur.Fallback {
				fp, err := reg.CreateLLM(*cur)
				if err != nil {
					return nil, fmt.Errorf("create llm fallback %q: %w", cur.Name, err)
				}
				group.AddFallback(cur.Name, fp)
				slog.Info("fallback registered", "kind", "llm", "name", cur.Name)
			}
			p = group
		}
		ps.LLM = p
		slog.Info("provider created", "kind", "llm", "name", name)
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		if fb := cfg.Providers.STT.Fallback; fb != nil {
			group := resilience.NewSTTFallback(p, name, resilience.FallbackConfig{})
			for cur := fb; cur != nil; cur = cur.Fallback {
				fp, err := reg.CreateSTT(*cur)
				if err != nil {
					return nil, fmt.Errorf("create stt fallback %q: %w", cur.Name, err)
				}
				group.AddFallback(cur.Name, fp)
				slog.Info("fallback registered", "kind", "stt", "name", cur.Name)
			}
			p = group
		}
		ps.STT = p
		slog.Info("provider created", "kind", "stt", "name", name)
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		if fb := cfg.Providers.TTS.Fallback; fb != nil {
			group := resilience.NewTTSFallback(p, name, resilience.FallbackConfig{})
			for cur := fb; cur != nil; cur = cur.Fallback {
				fp, err := reg.CreateTTS(*cur)
				if err != nil {
					return nil, fmt.Errorf("create tts fallback %q: %w", cur.Name, err)
				}
				group.AddFallback(cur.Name, fp)
				slog.Info("fallback registered", "kind", "tts", "name", cur.Name)
			}
			p = group
		}
		ps.TTS = p
		slog.Info("provider created", "kind", "tts", "name", name)
	}

	return ps, nil
}

// healthCheckers builds a readiness checker per configured collaborator
// endpoint.
func healthCheckers(cfg *config.Config) []health.Checker {
	client := &http.Client{Timeout: 5 * time.Second}
	var checkers []health.Checker
	if url := cfg.Providers.LLM.BaseURL; url != "" {
		checkers = append(checkers, health.Endpoint("generation", url, client))
	}
	if url := cfg.Providers.STT.BaseURL; url != "" {
		checkers = append(checkers, health.Endpoint("stt", url, client))
	}
	if url := cfg.Providers.TTS.BaseURL; url != "" {
		checkers = append(checkers, health.Endpoint("tts", url, client))
	}
	return checkers
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, listenAddr string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       VoiceBridge — startup summary   ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Telephony", string(cfg.Telephony.Provider), "")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	if cfg.Telephony.SampleRate != 0 {
		fmt.Printf("║  Sample rate     : %-19d ║\n", cfg.Telephony.SampleRate)
	}
	fmt.Printf("║  Hold messages   : %-19d ║\n", len(cfg.Hold.Messages))
	fmt.Printf("║  Listen addr     : %-19s ║\n", listenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the process logger around a LevelVar so the config watcher
// can retune verbosity without a restart.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
