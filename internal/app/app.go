// Package app wires all language identifier subsystems into a running
// application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run captures audio and serves the HTTP surface until the
// context ends, and Shutdown tears everything down in order.
//
// For testing, inject test doubles via functional options (WithSinks,
// WithRecorder, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/config"
	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/control"
	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/executor"
	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/health"
	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/notify"
	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/notify/natssink"
	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/notify/redissink"
	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/notify/wssink"
	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/observe"
	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/pipeline"
	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/trigger"
	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/audio"
	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/audio/source"
	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/provider/classifier"
	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/store/postgres"
)

// sourceStopTimeout bounds the wait for a source that does not unblock on
// Close, such as a terminal on stdin.
const sourceStopTimeout = 2 * time.Second

// Providers holds the backends built by main.go via the config registry.
type Providers struct {
	// Source delivers capture frames. Required.
	Source source.Source

	// Classifier scores assembled recordings. Required. When it implements
	// [health.Availability] it is reported on /readyz.
	Classifier classifier.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	logLevel  *slog.LevelVar

	sinks      []notify.Sink
	sinksSet   bool
	dispatcher *notify.Dispatcher
	hub        *wssink.Hub
	natsConn   *nats.Conn
	exec       *executor.Executor
	recorder   pipeline.Recorder
	checkers   []health.Checker
	pipeline   *pipeline.Pipeline
	handler    http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSinks replaces the sinks built from notify config. The websocket hub
// is still created when enabled.
func WithSinks(sinks ...notify.Sink) Option {
	return func(a *App) {
		a.sinks = sinks
		a.sinksSet = true
	}
}

// WithRecorder injects a detection log instead of connecting to PostgreSQL.
func WithRecorder(r pipeline.Recorder) Option {
	return func(a *App) { a.recorder = r }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets [App.ApplyConfig] change the level of the running logger.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. On error every
// subsystem created so far is closed again.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Source == nil || providers.Classifier == nil {
		return nil, errors.New("app: source and classifier are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if c, ok := providers.Classifier.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	// ── 1. Notify sinks ──────────────────────────────────────────────────
	if err := a.initNotify(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init notify: %w", err)
	}

	// ── 2. Executor ──────────────────────────────────────────────────────
	a.initExecutor()

	// ── 3. Detection log ─────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 4. Pipeline ──────────────────────────────────────────────────────
	a.initPipeline()
	if !cfg.Classifier.SkipWarmUp {
		if err := a.pipeline.WarmUp(ctx); err != nil {
			a.closeAll()
			return nil, fmt.Errorf("app: warm up classifier: %w", err)
		}
	}

	// ── 5. HTTP surface ──────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initNotify builds the sinks and the dispatcher.
func (a *App) initNotify(ctx context.Context) error {
	n := a.cfg.Notify

	if n.NATS.URL != "" {
		nc, err := natssink.Connect(n.NATS.URL, "langid")
		if err != nil {
			return err
		}
		a.natsConn = nc
		if !a.sinksSet {
			sink, err := natssink.New(nc, n.NATS.Subject)
			if err != nil {
				nc.Close()
				return err
			}
			a.sinks = append(a.sinks, sink.Own(nc))
		} else {
			a.closers = append(a.closers, func() error { return nc.Drain() })
		}
	}

	if n.Redis.Addr != "" && !a.sinksSet {
		rdb, err := redissink.Dial(ctx, redissink.Options{
			Addr:     n.Redis.Addr,
			Username: n.Redis.Username,
			Password: n.Redis.Password,
			DB:       n.Redis.DB,
			UseTLS:   n.Redis.UseTLS,
		})
		if err != nil {
			return err
		}
		sink, err := redissink.New(rdb, n.Redis.Channel, true)
		if err != nil {
			_ = rdb.Close()
			return err
		}
		a.sinks = append(a.sinks, sink)
	}

	if n.WebSocket.Enabled {
		a.hub = wssink.NewHub(
			wssink.WithOriginPatterns(n.WebSocket.OriginPatterns...),
			wssink.WithMessageHandler(func(ctx context.Context, data []byte) {
				_ = control.HandleMessage(ctx, data, a.handleControl)
			}),
		)
		a.sinks = append(a.sinks, a.hub)
	}

	a.dispatcher = notify.NewDispatcher(a.sinks,
		notify.WithPublishHook(func(sink string, kind notify.Kind, err error) {
			a.metrics.RecordPublish(context.Background(), sink, string(kind), err)
		}),
	)
	a.closers = append(a.closers, a.dispatcher.Close)
	a.checkers = append(a.checkers, health.Ping("notify", a.dispatcher))

	for _, s := range a.sinks {
		slog.Info("notify sink enabled", "sink", s.Name())
	}
	return nil
}

// initExecutor creates the worker pool for the command template.
func (a *App) initExecutor() {
	if a.cfg.Command.Template == "" {
		return
	}
	a.exec = executor.New(a.cfg.Command.Workers, executor.WithHooks(executor.Hooks{
		OnScheduled: func() {
			a.metrics.CommandsScheduled.Add(context.Background(), 1)
		},
		OnDone: func(err error) {
			a.metrics.RecordCommand(context.Background(), err)
		},
	}))
	slog.Info("command executor started", "workers", a.exec.Workers(), "template", a.cfg.Command.Template)
}

// initStore connects the PostgreSQL detection log or keeps the injected one.
func (a *App) initStore(ctx context.Context) error {
	if a.recorder != nil {
		return nil
	}
	dsn := a.cfg.Store.PostgresDSN
	if dsn == "" {
		return nil
	}
	store, err := postgres.New(ctx, dsn, len(a.cfg.Classifier.Labels))
	if err != nil {
		return err
	}
	a.recorder = store
	a.checkers = append(a.checkers, health.Ping("store", store))
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	slog.Info("detection log enabled", "backend", "postgres")
	return nil
}

// initPipeline builds the processing context from config.
func (a *App) initPipeline() {
	cfg := a.cfg
	pcfg := pipeline.Config{
		Trigger: trigger.Config{
			Threshold:     cfg.Trigger.VolumeThreshold,
			HistoryFrames: cfg.Trigger.HistoryFrames,
			TargetFrames:  cfg.TargetFrames(),
		},
		DownsampleFactor: cfg.Audio.DownsampleFactor(),
		ModelSampleRate:  cfg.Audio.ModelSampleRate,
		InputLength:      cfg.InputLength(),
		Labels:           cfg.Classifier.Labels,
		MinConfidence:    cfg.Classifier.MinConfidence,
		Autostop:         cfg.Trigger.Autostop,
		Listening:        cfg.Trigger.IsListening(),
		QueueSize:        cfg.Audio.QueueSize,
		CommandTemplate:  cfg.Command.Template,
		Command: executor.CommandRunner{
			Shell:   cfg.Command.Shell,
			Timeout: cfg.Command.Timeout,
		},
		WAVPath: cfg.Debug.WAVPath,
	}

	opts := []pipeline.Option{
		pipeline.WithPublisher(a.dispatcher),
		pipeline.WithMetrics(a.metrics),
	}
	if a.exec != nil {
		opts = append(opts, pipeline.WithScheduler(a.exec))
	}
	if a.recorder != nil {
		opts = append(opts, pipeline.WithRecorder(a.recorder))
	}
	a.pipeline = pipeline.New(pcfg, a.providers.Classifier, opts...)

	if av, ok := a.providers.Classifier.(health.Availability); ok {
		a.checkers = append(a.checkers, health.Available("classifier", av))
	}
	a.checkers = append(a.checkers, health.Running("pipeline", a.pipeline.Running))
}

// initHTTP builds the routes served by Run.
func (a *App) initHTTP() {
	mux := http.NewServeMux()
	health.New(a.checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/control/{verb}", control.HTTPHandler(a.handleControl))
	mux.HandleFunc("GET /status", a.serveStatus)
	if a.hub != nil {
		mux.Handle(a.cfg.Notify.WebSocket.Path, a.hub)
	}
	a.handler = observe.Middleware(a.metrics)(mux)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run captures audio and serves HTTP until ctx is cancelled or the source
// ends. It returns ctx.Err() after cancellation and nil when the source
// finished on its own.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.natsConn != nil && a.cfg.Control.NATSSubject != "" {
		sub, err := control.SubscribeNATS(runCtx, a.natsConn, a.cfg.Control.NATSSubject, a.handleControl)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		defer func() {
			if err := sub.Unsubscribe(); err != nil {
				slog.Debug("control unsubscribe failed", "err", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return a.pipeline.Run(gctx)
	})

	g.Go(func() error {
		err := a.runSource(gctx)
		cancel()
		return err
	})

	g.Go(func() error {
		slog.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown", "err", err)
		}
		return nil
	})

	slog.Info("app running",
		"source", a.cfg.Audio.Source.Name,
		"classifier", a.cfg.Classifier.Provider.Name,
		"listening", a.cfg.Trigger.IsListening(),
	)

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// runSource pumps frames into the pipeline. When ctx ends the source is
// closed; a source that still does not return is abandoned after
// [sourceStopTimeout].
func (a *App) runSource(ctx context.Context) error {
	src := a.providers.Source
	done := make(chan error, 1)
	go func() {
		done <- src.Run(ctx, func(f audio.Frame) { a.pipeline.Feed(f) })
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("app: audio source: %w", err)
		}
		slog.Info("audio source finished")
		return nil
	case <-ctx.Done():
	}

	if err := src.Close(); err != nil {
		slog.Warn("audio source close", "err", err)
	}
	select {
	case <-done:
	case <-time.After(sourceStopTimeout):
		slog.Warn("audio source did not stop, abandoning it", "timeout", sourceStopTimeout)
	}
	return nil
}

// handleControl applies a remote command to the pipeline.
func (a *App) handleControl(ctx context.Context, cmd control.Command) error {
	return a.pipeline.Control(ctx, cmd)
}

func (a *App) serveStatus(w http.ResponseWriter, _ *http.Request) {
	body := struct {
		pipeline.Status
		MinConfidence float64 `json:"min_confidence"`
	}{
		Status:        a.pipeline.Status(),
		MinConfidence: a.pipeline.MinConfidence(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// Handler returns the HTTP routes served by Run.
func (a *App) Handler() http.Handler { return a.handler }

// Pipeline returns the processing context.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the live-reloadable part of a config change. It has
// the signature of [config.ChangeFunc].
func (a *App) ApplyConfig(_, newCfg *config.Config, diff config.ConfigDiff) {
	for _, section := range diff.RestartRequired {
		slog.Warn("config change needs a restart to take effect", "section", section)
	}
	if !diff.Changed() {
		return
	}

	if diff.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}

	if diff.ThresholdChanged || diff.MinConfidenceChanged || diff.AutostopChanged {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := a.pipeline.UpdateSettings(ctx, pipeline.Settings{
			Threshold:     newCfg.Trigger.Threshold(),
			MinConfidence: newCfg.Classifier.MinConfidence,
			Autostop:      newCfg.Trigger.Autostop,
		})
		if err != nil {
			slog.Warn("settings not applied", "err", err)
			return
		}
		slog.Info("settings reloaded",
			"volume_threshold", newCfg.Trigger.Threshold(),
			"min_confidence", newCfg.Classifier.MinConfidence,
			"autostop", newCfg.Trigger.Autostop,
		)
	}
}

// SlogLevel maps a config log level to its slog equivalent.
func SlogLevel(level config.LogLevel) slog.Level {
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

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown waits for queued commands, then tears down all subsystems in
// init order. If ctx expires first, the remaining closers are skipped and
// the context error is returned. Call it after Run has returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.exec != nil {
			drained := make(chan struct{})
			go func() {
				a.exec.Shutdown()
				close(drained)
			}()
			select {
			case <-drained:
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded while draining commands", "pending", a.exec.Pending())
				shutdownErr = ctx.Err()
				return
			}
		}

		if err := a.providers.Source.Close(); err != nil {
			slog.Warn("audio source close error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases what New created before failing.
func (a *App) closeAll() {
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			slog.Warn("closer error", "err", err)
		}
	}
	if a.natsConn != nil && a.dispatcher == nil {
		a.natsConn.Close()
	}
}
