// Command maitred is the main entry point for the maitred voice-ordering
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxterra/maitred/internal/app"
	"github.com/voxterra/maitred/internal/config"
	"github.com/voxterra/maitred/internal/resilience"
	"github.com/voxterra/maitred/pkg/provider/llm"
	llmopenai "github.com/voxterra/maitred/pkg/provider/llm/openai"
	"github.com/voxterra/maitred/pkg/provider/stt"
	sttopenai "github.com/voxterra/maitred/pkg/provider/stt/openai"
	"github.com/voxterra/maitred/pkg/provider/tts"
	ttsopenai "github.com/voxterra/maitred/pkg/provider/tts/openai"
)

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
			fmt.Fprintf(os.Stderr, "maitred: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "maitred: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("maitred starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// Default models used when a provider entry leaves the model unset.
const (
	defaultSTTModel = "whisper-1"
	defaultLLMModel = "gpt-4o-mini"
	defaultTTSModel = "tts-1"
)

// registerBuiltinProviders wires the provider factories that ship with
// maitred into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		return sttopenai.New(entry.APIKey, modelOrDefault(entry.Model, defaultSTTModel), opts...)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		return llmopenai.New(entry.APIKey, modelOrDefault(entry.Model, defaultLLMModel), opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		return ttsopenai.New(entry.APIKey, modelOrDefault(entry.Model, defaultTTSModel), opts...)
	})
}

// buildProviders instantiates the providers named in cfg using the
// registry. Entries that declare fallbacks are wrapped in a failover
// group so an outage at one vendor degrades instead of dropping calls.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	fbCfg := resilience.FallbackConfig{}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		if fbs := cfg.Providers.STT.Fallbacks; len(fbs) > 0 {
			group := resilience.NewSTTFallback(p, name, fbCfg)
			for _, entry := range fbs {
				fb, err := reg.CreateSTT(entry)
				if err != nil {
					return nil, fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
				}
				group.AddFallback(entry.Name, fb)
			}
			ps.STT = group
		} else {
			ps.STT = p
		}
		slog.Info("provider created", "kind", "stt", "name", name, "fallbacks", len(cfg.Providers.STT.Fallbacks))
	}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		if fbs := cfg.Providers.LLM.Fallbacks; len(fbs) > 0 {
			group := resilience.NewLLMFallback(p, name, fbCfg)
			for _, entry := range fbs {
				fb, err := reg.CreateLLM(entry)
				if err != nil {
					return nil, fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
				}
				group.AddFallback(entry.Name, fb)
			}
			ps.LLM = group
		} else {
			ps.LLM = p
		}
		slog.Info("provider created", "kind", "llm", "name", name, "fallbacks", len(cfg.Providers.LLM.Fallbacks))
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		if fbs := cfg.Providers.TTS.Fallbacks; len(fbs) > 0 {
			group := resilience.NewTTSFallback(p, name, fbCfg)
			for _, entry := range fbs {
				fb, err := reg.CreateTTS(entry)
				if err != nil {
					return nil, fmt.Errorf("create tts fallback %q: %w", entry.Name, err)
				}
				group.AddFallback(entry.Name, fb)
			}
			ps.TTS = group
		} else {
			ps.TTS = p
		}
		slog.Info("provider created", "kind", "tts", "name", name, "fallbacks", len(cfg.Providers.TTS.Fallbacks))
	}

	return ps, nil
}

func modelOrDefault(model, fallback string) string {
	if model == "" {
		return fallback
	}
	return model
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         maitred — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	fmt.Printf("║  Tenant          : %-19s ║\n", trimCell(cfg.Catalog.Tenant))
	fmt.Printf("║  Language        : %-19s ║\n", trimCell(cfg.Session.Language))
	if cfg.Telemetry.PostgresDSN != "" {
		fmt.Printf("║  Telemetry       : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Telemetry       : %-19s ║\n", "(metrics only)")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", trimCell(cfg.Server.ListenAddr))
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, trimCell(value))
}

func trimCell(value string) string {
	if len(value) > 19 {
		return value[:16] + "…"
	}
	return value
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
