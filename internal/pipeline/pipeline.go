// Package pipeline is the processing context that connects an audio source to
// the trigger, the classifier and the side effects of a detection.
//
// Frames enter through [Pipeline.Feed], which never blocks; a full queue
// drops the frame. A single processing goroutine owns the trigger state
// machine and applies every control command, so the machine has exactly one
// writer. Completed recordings go to a classification worker through a
// one-slot channel while the trigger is held off, which keeps at most one
// classification in flight. Events are published in order by a third
// goroutine so that slow transports never stall capture or classification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/control"
	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/executor"
	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/notify"
	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/observe"
	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/trigger"
	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/audio"
	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/provider/classifier"
)

// eventQueueSize bounds the events waiting for the publisher.
const eventQueueSize = 64

var (
	// ErrAlreadyRunning is returned by a second call to [Pipeline.Run].
	ErrAlreadyRunning = errors.New("pipeline: already running")

	// ErrStopped is returned by [Pipeline.Control] once Run has returned.
	ErrStopped = errors.New("pipeline: stopped")
)

// Publisher delivers events to listeners. [notify.Dispatcher] implements it.
type Publisher interface {
	Dispatch(ctx context.Context, e notify.Event) error
}

// Scheduler runs external actions off the detection path.
// [executor.Executor] implements it.
type Scheduler interface {
	Schedule(task executor.Task) (*executor.Handle, error)
}

// Recorder persists accepted detections.
type Recorder interface {
	Record(ctx context.Context, r classifier.Result) error
}

// Config holds the fixed parameters of a [Pipeline].
type Config struct {
	// Trigger configures the volume trigger.
	Trigger trigger.Config

	// DownsampleFactor is the ratio between the capture and the model rate.
	DownsampleFactor int

	// ModelSampleRate is used for the debug WAV header.
	ModelSampleRate int

	// InputLength is the vector length the classifier expects. Recordings
	// assembling to another length are discarded. 0 disables the check.
	InputLength int

	// Labels maps score indices to names.
	Labels classifier.Labels

	// MinConfidence is the initial acceptance threshold in [0, 1].
	MinConfidence float64

	// Autostop is the initial autostop setting.
	Autostop bool

	// Listening is the initial listening state.
	Listening bool

	// QueueSize bounds the frames waiting for the processing goroutine.
	QueueSize int

	// CommandTemplate is expanded and run once per accepted detection.
	// Empty disables the action.
	CommandTemplate string

	// Command runs the expanded template.
	Command executor.CommandRunner

	// WAVPath receives every assembled vector when set.
	WAVPath string
}

// Settings are the values that can change while the pipeline runs.
type Settings struct {
	Threshold     float64
	MinConfidence float64
	Autostop      bool
}

// Status is a snapshot of the pipeline state.
type Status struct {
	Running     bool          `json:"running"`
	Listening   bool          `json:"listening"`
	Autostop    bool          `json:"autostop"`
	Classifying bool          `json:"classifying"`
	State       trigger.State `json:"-"`
	StateName   string        `json:"state"`
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithPublisher sets the event publisher. Without one, events are dropped.
func WithPublisher(p Publisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

// WithScheduler sets the executor used for the command template.
func WithScheduler(s Scheduler) Option {
	return func(pl *Pipeline) { pl.scheduler = s }
}

// WithRecorder sets the detection log.
func WithRecorder(r Recorder) Option {
	return func(pl *Pipeline) { pl.recorder = r }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(pl *Pipeline) { pl.metrics = m }
}

// request is a function applied on the processing goroutine.
type request struct {
	fn    func(ctx context.Context) error
	reply chan error
}

// outcome is reported by the classification worker when a cycle ends.
type outcome struct {
	accepted bool
}

// Pipeline is the processing context. Create one with [New] and start it
// with [Pipeline.Run].
type Pipeline struct {
	cfg        Config
	classifier classifier.Provider
	publisher  Publisher
	scheduler  Scheduler
	recorder   Recorder
	metrics    *observe.Metrics

	// machine is owned by the processing goroutine.
	machine *trigger.Machine

	frames   chan audio.Frame
	requests chan request
	jobs     chan []audio.Frame
	finished chan outcome
	events   chan notify.Event
	stopped  chan struct{}

	started       atomic.Bool
	running       atomic.Bool
	listening     atomic.Bool
	classifying   atomic.Bool
	autostop      atomic.Bool
	state         atomic.Int32
	minConfidence atomic.Uint64
}

// New creates a Pipeline around c.
func New(cfg Config, c classifier.Provider, opts ...Option) *Pipeline {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.DownsampleFactor < 1 {
		cfg.DownsampleFactor = 1
	}
	if cfg.ModelSampleRate <= 0 {
		cfg.ModelSampleRate = 16000
	}
	p := &Pipeline{
		cfg:        cfg,
		classifier: c,
		machine:    trigger.New(cfg.Trigger),
		frames:     make(chan audio.Frame, cfg.QueueSize),
		requests:   make(chan request),
		jobs:       make(chan []audio.Frame, 1),
		finished:   make(chan outcome, 1),
		events:     make(chan notify.Event, eventQueueSize),
		stopped:    make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	p.machine.SetListening(cfg.Listening)
	p.listening.Store(cfg.Listening)
	p.state.Store(int32(p.machine.State()))
	p.autostop.Store(cfg.Autostop)
	p.setMinConfidence(cfg.MinConfidence)
	return p
}

// WarmUp runs one classification over silence of the expected length.
func (p *Pipeline) WarmUp(ctx context.Context) error {
	if p.cfg.InputLength <= 0 {
		return nil
	}
	start := time.Now()
	if err := classifier.WarmUp(ctx, p.classifier, p.cfg.InputLength); err != nil {
		return err
	}
	slog.Info("classifier warmed up", "input_length", p.cfg.InputLength, "duration", time.Since(start))
	return nil
}

// Feed queues one frame for processing. It never blocks; when the queue is
// full the frame is dropped and false is returned.
func (p *Pipeline) Feed(frame audio.Frame) bool {
	select {
	case p.frames <- frame:
		return true
	default:
		p.metrics.FramesDropped.Add(context.Background(), 1)
		return false
	}
}

// Control applies cmd on the processing goroutine and waits for it.
func (p *Pipeline) Control(ctx context.Context, cmd control.Command) error {
	return p.do(ctx, func(ctx context.Context) error {
		switch cmd.Verb {
		case control.VerbListen:
			p.setListening(ctx, cmd.Enabled())
		case control.VerbAutostop:
			p.autostop.Store(cmd.Enabled())
		default:
			return fmt.Errorf("%w: %q", control.ErrUnknownVerb, cmd.Verb)
		}
		slog.Info("control command applied", "command", cmd.String())
		return nil
	})
}

// UpdateSettings applies hot-reloadable settings.
func (p *Pipeline) UpdateSettings(ctx context.Context, s Settings) error {
	p.setMinConfidence(s.MinConfidence)
	p.autostop.Store(s.Autostop)
	return p.do(ctx, func(context.Context) error {
		p.machine.SetThreshold(s.Threshold)
		return nil
	})
}

// Status returns a snapshot of the pipeline state.
func (p *Pipeline) Status() Status {
	st := trigger.State(p.state.Load())
	return Status{
		Running:     p.running.Load(),
		Listening:   p.listening.Load(),
		Autostop:    p.autostop.Load(),
		Classifying: p.classifying.Load(),
		State:       st,
		StateName:   st.String(),
	}
}

// Running reports whether Run is active.
func (p *Pipeline) Running() bool { return p.running.Load() }

// Run processes frames until ctx is done. It may be called once. On return
// a final recordingState event with active=false has been published.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	p.running.Store(true)
	defer p.running.Store(false)
	defer close(p.stopped)

	published := make(chan struct{})
	go func() {
		defer close(published)
		p.publishLoop()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.processLoop(gctx) })
	g.Go(func() error { return p.classifyLoop(gctx) })
	err := g.Wait()

	p.events <- notify.NewRecordingState(false)
	close(p.events)
	<-published
	return err
}

// do runs fn on the processing goroutine.
func (p *Pipeline) do(ctx context.Context, fn func(context.Context) error) error {
	req := request{fn: fn, reply: make(chan error, 1)}
	select {
	case p.requests <- req:
	case <-p.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) processLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-p.frames:
			p.processFrame(ctx, f)
		case req := <-p.requests:
			req.reply <- req.fn(ctx)
		case o := <-p.finished:
			p.machine.Release()
			if o.accepted && p.autostop.Load() && p.machine.Listening() {
				slog.Info("autostop: detection accepted, listening stopped")
				p.setListening(ctx, false)
			}
		}
		p.state.Store(int32(p.machine.State()))
	}
}

func (p *Pipeline) processFrame(ctx context.Context, f audio.Frame) {
	if !p.machine.Listening() {
		return
	}
	step := p.machine.Process(f)
	p.metrics.FramesProcessed.Add(ctx, 1)
	p.metrics.Volume.Record(ctx, step.Volume.Scaled)

	if step.Started {
		p.metrics.RecordingsStarted.Add(ctx, 1)
		slog.Info("recording started", "volume", step.Volume.Scaled, "threshold", p.machine.Threshold())
		p.tryEmit(notify.NewRecordingState(true))
	}
	if step.State != trigger.StateReady {
		return
	}

	frames := p.machine.Drain()
	p.machine.Suppress()
	// Set before the hand-off so the worker's reset cannot be overtaken.
	p.classifying.Store(true)
	select {
	case p.jobs <- frames:
		slog.Debug("recording handed to classifier", "frames", len(frames))
	default:
		// The trigger is held off while a job is queued, so the slot is free.
		p.classifying.Store(false)
		p.machine.Release()
		slog.Warn("classification slot busy, recording discarded", "frames", len(frames))
	}
}

// setListening switches listening on or off. Aborting a recording in
// progress publishes the end of the recording cycle.
func (p *Pipeline) setListening(ctx context.Context, on bool) {
	wasRecording := p.machine.State() == trigger.StateRecording
	p.machine.SetListening(on)
	p.listening.Store(on)
	if !on && wasRecording {
		p.metrics.RecordingsAborted.Add(ctx, 1)
		slog.Info("recording aborted")
		p.tryEmit(notify.NewRecordingState(false))
	}
}

func (p *Pipeline) classifyLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frames := <-p.jobs:
			accepted := p.classify(ctx, frames)
			p.emit(ctx, notify.NewRecordingState(false))
			p.classifying.Store(false)
			select {
			case p.finished <- outcome{accepted: accepted}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// classify runs one cycle and reports whether it produced an accepted
// detection. Failures are logged and counted, never returned.
func (p *Pipeline) classify(ctx context.Context, frames []audio.Frame) bool {
	ctx, span := observe.StartClassifySpan(ctx, len(frames))
	var (
		res      classifier.Result
		accepted bool
		spanErr  error
	)
	defer func() { observe.EndClassifySpan(span, res.Label, res.Probability, accepted, spanErr) }()
	log := observe.Logger(ctx)

	sample := audio.Assemble(frames, p.cfg.DownsampleFactor)
	if p.cfg.WAVPath != "" {
		if err := audio.WriteWAVFile(p.cfg.WAVPath, sample, p.cfg.ModelSampleRate); err != nil {
			log.Warn("debug wav not written", "path", p.cfg.WAVPath, "err", err)
		}
	}
	if p.cfg.InputLength > 0 && len(sample) != p.cfg.InputLength {
		p.metrics.RecordClassification(ctx, observe.StatusInvalid, 0)
		log.Warn("assembled input has unexpected length, discarded",
			"length", len(sample), "want", p.cfg.InputLength)
		return false
	}

	start := time.Now()
	scores, err := p.classifier.Classify(ctx, sample)
	elapsed := time.Since(start)
	if err != nil {
		spanErr = err
		p.metrics.RecordClassification(ctx, observe.StatusError, elapsed.Seconds())
		log.Error("classification failed", "err", err, "duration", elapsed)
		return false
	}
	res, err = classifier.Interpret(scores, p.cfg.Labels)
	if err != nil {
		spanErr = err
		p.metrics.RecordClassification(ctx, observe.StatusInvalid, elapsed.Seconds())
		log.Warn("malformed classifier output, discarded", "err", err, "scores", len(scores))
		return false
	}

	accepted = res.Accepted(p.MinConfidence())
	status := observe.StatusOK
	if !accepted {
		status = observe.StatusRejected
	}
	p.metrics.RecordClassification(ctx, status, elapsed.Seconds())
	p.metrics.RecordDetection(ctx, res.Label, accepted)
	log.Info("classified",
		"label", res.Label,
		"probability", res.Probability,
		"accepted", accepted,
		"duration", elapsed,
	)
	if !accepted {
		return false
	}

	p.emit(ctx, notify.NewDetection(res))
	if p.recorder != nil {
		if err := p.recorder.Record(ctx, res); err != nil {
			log.Warn("detection not recorded", "err", err)
		}
	}
	p.runCommand(ctx, res)
	return true
}

// runCommand schedules the command template. The result is not observed.
func (p *Pipeline) runCommand(ctx context.Context, res classifier.Result) {
	if p.cfg.CommandTemplate == "" || p.scheduler == nil {
		return
	}
	cmdline := executor.Expand(p.cfg.CommandTemplate, res.Label, float64(res.Probability), p.cfg.Labels.Names(), res.Scores)
	if _, err := p.scheduler.Schedule(p.cfg.Command.Task(cmdline)); err != nil {
		observe.Logger(ctx).Warn("command not scheduled", "command", cmdline, "err", err)
	}
}

// emit queues e, waiting for room unless ctx ends first.
func (p *Pipeline) emit(ctx context.Context, e notify.Event) {
	select {
	case p.events <- e:
	case <-ctx.Done():
		slog.Debug("event dropped on shutdown", "event", e.Kind)
	}
}

// tryEmit queues e without waiting. It is used on the processing goroutine.
func (p *Pipeline) tryEmit(e notify.Event) {
	select {
	case p.events <- e:
	default:
		slog.Warn("event queue full, event dropped", "event", e.Kind)
	}
}

func (p *Pipeline) publishLoop() {
	for e := range p.events {
		if p.publisher == nil {
			continue
		}
		if err := p.publisher.Dispatch(context.Background(), e); err != nil {
			slog.Warn("event not delivered to every sink", "event", e.Kind, "err", err)
		}
	}
}

// MinConfidence returns the current acceptance threshold.
func (p *Pipeline) MinConfidence() float64 {
	return math.Float64frombits(p.minConfidence.Load())
}

func (p *Pipeline) setMinConfidence(v float64) {
	p.minConfidence.Store(math.Float64bits(v))
}
