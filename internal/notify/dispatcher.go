package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultSinkTimeout = 2 * time.Second

// Sink is one event transport.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Publish delivers e. It should honour ctx.
	Publish(ctx context.Context, e Event) error

	// Close releases the transport.
	Close() error
}

// HealthChecker is implemented by sinks that can report connectivity.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// DispatcherOption configures a [Dispatcher].
type DispatcherOption func(*Dispatcher)

// WithSinkTimeout bounds each Publish call. Default: 2s.
func WithSinkTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithPublishHook installs a callback invoked after every Publish with the
// sink name, the event kind and the result.
func WithPublishHook(fn func(sink string, kind Kind, err error)) DispatcherOption {
	return func(d *Dispatcher) { d.onPublish = fn }
}

// Dispatcher fans events out to every sink concurrently.
type Dispatcher struct {
	sinks     []Sink
	timeout   time.Duration
	onPublish func(sink string, kind Kind, err error)
}

// NewDispatcher creates a Dispatcher over sinks. A Dispatcher without sinks
// accepts and drops every event.
func NewDispatcher(sinks []Sink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{sinks: sinks, timeout: defaultSinkTimeout}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Sinks returns the configured sinks.
func (d *Dispatcher) Sinks() []Sink { return d.sinks }

// Dispatch publishes e to all sinks and waits for them. Failures are logged
// and returned joined; one failing sink does not affect the others.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) error {
	if len(d.sinks) == 0 {
		return nil
	}
	errs := make([]error, len(d.sinks))
	var g errgroup.Group
	for i, s := range d.sinks {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()
			err := s.Publish(sctx, e)
			if d.onPublish != nil {
				d.onPublish(s.Name(), e.Kind, err)
			}
			if err != nil {
				slog.Warn("notify: publish failed", "sink", s.Name(), "event", e.Kind, "err", err)
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Healthy checks every sink implementing [HealthChecker].
func (d *Dispatcher) Healthy(ctx context.Context) error {
	var errs []error
	for _, s := range d.sinks {
		if hc, ok := s.(HealthChecker); ok {
			if err := hc.Healthy(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes all sinks.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, s := range d.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
