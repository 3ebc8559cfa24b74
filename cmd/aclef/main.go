// Command aclef serves speech-graded dictation exercises: it transcribes a
// learner's recording, grades it against the expected text and reads
// exercise text aloud.
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

	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/app"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/config"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/observe"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/stt"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/stt/deepgram"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/stt/whisper"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/tts"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/tts/coqui"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/tts/elevenlabs"
	oaitts "github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/tts/openai"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envFile := flag.String("env", ".env", "dotenv file loaded before the config is read")
	watch := flag.Bool("watch", true, "reload hot-reloadable settings when the config file changes")
	flag.Parse()

	// ── Environment + configuration ───────────────────────────────────────────
	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "aclef: %v\n", err)
		return 1
	}

	var (
		cfg     *config.Config
		watcher *config.Watcher
		err     error
	)
	var application *app.App
	if *watch {
		watcher, err = config.NewWatcher(*configPath, func(old, new *config.Config) {
			if application != nil {
				application.ApplyDiff(config.Diff(old, new))
			}
		})
		if err == nil {
			cfg = watcher.Current()
		}
	} else {
		cfg, err = config.Load(*configPath)
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "aclef: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "aclef: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("aclef starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.Setup(observe.TelemetryConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Speech.Language)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	opts := []app.Option{
		app.WithLogLevel(level),
		app.WithMetrics(tel.Metrics),
		app.WithMetricsHandler(tel.Handler),
	}
	if watcher != nil {
		opts = append(opts, app.WithWatcher(watcher))
	}
	application, err = app.New(ctx, cfg, reg, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from its implementation package. lang is the recognition and synthesis
// language used when an entry does not set options.language.
func registerBuiltinProviders(reg *config.Registry, lang string) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []whisper.Option{whisper.WithLanguage(entry.StringOption("language", lang))}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if rms := entry.FloatOption("rms_threshold", 0); rms > 0 {
			opts = append(opts, whisper.WithRMSThreshold(rms))
		}
		if d := entry.DurationOption("timeout", 0); d > 0 {
			opts = append(opts, whisper.WithTimeout(d))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []deepgram.Option{deepgram.WithLanguage(entry.StringOption("language", lang))}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if f := entry.StringOption("output_format", ""); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if v := entry.StringOption("voice", ""); v != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(v))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []coqui.Option{coqui.WithLanguage(entry.StringOption("language", lang))}
		if mode := entry.StringOption("api_mode", ""); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if v := entry.StringOption("voice", ""); v != "" {
			opts = append(opts, coqui.WithDefaultVoice(v))
		}
		if d := entry.DurationOption("timeout", 0); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		if v := entry.StringOption("voice", ""); v != "" {
			opts = append(opts, oaitts.WithDefaultVoice(v))
		}
		if d := entry.DurationOption("timeout", 0); d > 0 {
			opts = append(opts, oaitts.WithTimeout(d))
		}
		return oaitts.New(entry.APIKey, entry.Model, opts...)
	})

	for _, kind := range []string{"stt", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          aclef, startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printGroup("STT", cfg.Providers.STT)
	printGroup("TTS", cfg.Providers.TTS)
	printRow("Cache", string(cfg.Cache.Backend))
	printRow("Language", cfg.Speech.Language)
	printRow("Default voice", cfg.Speech.DefaultVoice.VoiceID)
	hints := "off"
	if cfg.Speech.PhoneticHints {
		hints = "on"
	}
	printRow("Phonetic hints", hints)
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printGroup(kind string, g config.ProviderGroup) {
	entries := g.Entries()
	if len(entries) == 0 {
		printRow(kind, "(not configured)")
		return
	}
	for i, e := range entries {
		label := kind
		if i > 0 {
			label = fmt.Sprintf("  fallback %d", i)
		}
		value := e.Name
		if e.Model != "" {
			value += " / " + e.Model
		}
		printRow(label, value)
	}
}

func printRow(label, value string) {
	if value == "" {
		value = "(default)"
	}
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}
