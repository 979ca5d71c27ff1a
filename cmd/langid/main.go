// Command langid listens to an audio stream, records a few seconds whenever
// the input gets loud, and reports the spoken language.
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

	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/app"
	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/config"
	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/observe"
	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/resilience"
	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/audio"
	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/audio/source"
	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/audio/source/pcm"
	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/provider/classifier"
	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/provider/classifier/remote"
	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/provider/classifier/whisper"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// extraRegistrations are added by files behind build tags.
var extraRegistrations []func(*config.Registry)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	noReload := flag.Bool("no-reload", false, "do not watch the configuration file for changes")
	listProviders := flag.Bool("list-providers", false, "print the registered audio sources and classifiers and exit")
	flag.Parse()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	if *listProviders {
		fmt.Printf("audio sources: %v\n", reg.Sources())
		fmt.Printf("classifiers:   %v\n", reg.Classifiers())
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "langid: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "langid: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("langid starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "langid",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithLogLevel(logLevel))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		_ = providers.Source.Close()
		return 1
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	if !*noReload {
		watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer watcher.Stop()
		}
	}

	slog.Info("ready, press Ctrl+C to shut down")

	exitCode := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exitCode = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return exitCode
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Audio sources ─────────────────────────────────────────────────────────

	// pcm reads raw s16le from options.path, or stdin when unset.
	reg.RegisterSource("pcm", func(entry config.ProviderEntry, cfg source.Config) (source.Source, error) {
		var opts []pcm.Option
		if optBool(entry.Options, "realtime") {
			opts = append(opts, pcm.WithRealtime())
		}
		return pcm.Open(optString(entry.Options, "path"), cfg, opts...)
	})

	// ── Classifiers ───────────────────────────────────────────────────────────

	reg.RegisterClassifier("remote", func(entry config.ProviderEntry, _ classifier.Labels) (classifier.Provider, error) {
		var opts []remote.Option
		if key := optString(entry.Options, "api_key"); key != "" {
			opts = append(opts, remote.WithHeader("Authorization", "Bearer "+key))
		}
		return remote.New(entry.BaseURL, opts...)
	})

	reg.RegisterClassifier("whisper", func(entry config.ProviderEntry, labels classifier.Labels) (classifier.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.Option
		if n := optInt(entry.Options, "threads"); n > 0 {
			opts = append(opts, whisper.WithThreads(uint(n)))
		}
		return whisper.New(modelPath, labels, opts...)
	})

	for _, register := range extraRegistrations {
		register(reg)
	}

	slog.Debug("registered providers", "sources", reg.Sources(), "classifiers", reg.Classifiers())
}

// buildProviders instantiates the audio source and the classifier chain named
// in cfg. Fallback classifiers are tried in order behind per-backend circuit
// breakers.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	labels := cfg.Classifier.Labels

	primary, err := reg.CreateClassifier(cfg.Classifier.Provider, labels)
	if err != nil {
		return nil, fmt.Errorf("create classifier %q: %w", cfg.Classifier.Provider.Name, err)
	}
	slog.Info("provider created", "kind", "classifier", "name", cfg.Classifier.Provider.Name)

	chain := resilience.NewClassifier(cfg.Classifier.Provider.Name, primary, cfg.Classifier.Timeout, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("classifier circuit changed", "backend", name, "from", from, "to", to)
			},
		},
	})
	for _, entry := range cfg.Classifier.Fallbacks {
		p, err := reg.CreateClassifier(entry, labels)
		if err != nil {
			return nil, fmt.Errorf("create fallback classifier %q: %w", entry.Name, err)
		}
		chain.AddFallback(entry.Name, p)
		slog.Info("provider created", "kind", "classifier", "name", entry.Name, "role", "fallback")
	}

	srcCfg := source.Config{
		Format: audio.Format{
			SampleRate: cfg.Audio.SampleRate,
			Channels:   cfg.Audio.Channels,
			FrameSize:  cfg.Audio.FrameSize,
		},
		Channel: cfg.Audio.Channel,
	}
	src, err := reg.CreateSource(cfg.Audio.Source, srcCfg)
	if err != nil {
		return nil, fmt.Errorf("create audio source %q: %w", cfg.Audio.Source.Name, err)
	}
	slog.Info("provider created", "kind", "audio", "name", cfg.Audio.Source.Name)

	return &app.Providers{Source: src, Classifier: chain}, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      langid - startup summary          ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Source", cfg.Audio.Source.Name)
	printRow("Sample rate", fmt.Sprintf("%d Hz / %d", cfg.Audio.SampleRate, cfg.Audio.FrameSize))
	printRow("Classifier", cfg.Classifier.Provider.Name)
	printRow("Fallbacks", fmt.Sprintf("%d", len(cfg.Classifier.Fallbacks)))
	printRow("Labels", fmt.Sprintf("%d", len(cfg.Classifier.Labels)))
	printRow("Threshold", fmt.Sprintf("%g", cfg.Trigger.Threshold()))
	printRow("Recording", fmt.Sprintf("%d frames", cfg.TargetFrames()))
	printRow("NATS", enabled(cfg.Notify.NATS.URL != ""))
	printRow("Redis", enabled(cfg.Notify.Redis.Addr != ""))
	printRow("WebSocket", enabled(cfg.Notify.WebSocket.Enabled))
	printRow("Store", enabled(cfg.Store.PostgresDSN != ""))
	printRow("Command", enabled(cfg.Command.Template != ""))
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(key, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", key, value)
}

func enabled(on bool) string {
	if on {
		return "enabled"
	}
	return "(disabled)"
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optBool extracts a bool option. Missing or mistyped values are false.
func optBool(opts map[string]any, key string) bool {
	b, _ := opts[key].(bool)
	return b
}

// optInt extracts an integer option. YAML decodes integers as int.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
