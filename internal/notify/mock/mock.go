// Package mock provides a recording test double for notify.Sink.
package mock

import (
	"context"
	"sync"

	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/notify"
)

// Sink records published events.
type Sink struct {
	mu sync.Mutex

	// SinkName is returned by Name. Defaults to "mock".
	SinkName string

	// PublishErr, if non-nil, is returned by every Publish call.
	PublishErr error

	// HealthErr is returned by Healthy.
	HealthErr error

	// Block, if non-nil, makes Publish wait until it is closed or ctx is done.
	Block chan struct{}

	events     []notify.Event
	closeCalls int
	notify     chan struct{}
}

// Name returns SinkName or "mock".
func (s *Sink) Name() string {
	if s.SinkName == "" {
		return "mock"
	}
	return s.SinkName
}

// Publish records e.
func (s *Sink) Publish(ctx context.Context, e notify.Event) error {
	if s.Block != nil {
		select {
		case <-s.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PublishErr != nil {
		return s.PublishErr
	}
	s.events = append(s.events, e)
	if s.notify != nil {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
	return nil
}

// Healthy returns HealthErr.
func (s *Sink) Healthy(context.Context) error { return s.HealthErr }

// Close records the call.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

// Events returns a copy of the recorded events.
func (s *Sink) Events() []notify.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notify.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Kinds returns the kinds of the recorded events in order, with
// recording-state events rendered as "recordingState:true|false".
func (s *Sink) Kinds() []string {
	evs := s.Events()
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = string(e.Kind)
		if e.Active != nil {
			if *e.Active {
				out[i] += ":true"
			} else {
				out[i] += ":false"
			}
		}
	}
	return out
}

// Updates returns a channel that receives a value after each recorded event.
// Sends never block, so a slow reader may see fewer signals than events.
func (s *Sink) Updates() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notify == nil {
		s.notify = make(chan struct{}, 1)
	}
	return s.notify
}

// CloseCalls returns the number of Close invocations.
func (s *Sink) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

var (
	_ notify.Sink          = (*Sink)(nil)
	_ notify.HealthChecker = (*Sink)(nil)
)
