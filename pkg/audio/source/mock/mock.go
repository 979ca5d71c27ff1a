// Package mock provides a scripted test double for source.Source.
//
// Frames are delivered in order when Run is called. If Hold is set, Run then
// waits for ctx or Close instead of returning, like a live device would.
package mock

import (
	"context"
	"sync"

	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/audio"
	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/audio/source"
)

// Source is a mock implementation of source.Source.
type Source struct {
	// AudioFormat is returned by Format.
	AudioFormat audio.Format

	// Frames are delivered in order by Run.
	Frames []audio.Frame

	// Hold keeps Run blocked after the last frame until ctx is done or the
	// source is closed.
	Hold bool

	// RunErr, if non-nil, is returned by Run after delivering Frames.
	RunErr error

	mu         sync.Mutex
	closed     chan struct{}
	closeCalls int
}

func (s *Source) init() {
	if s.closed == nil {
		s.closed = make(chan struct{})
	}
}

// Format returns AudioFormat.
func (s *Source) Format() audio.Format { return s.AudioFormat }

// Run delivers Frames.
func (s *Source) Run(ctx context.Context, deliver func(audio.Frame)) error {
	s.mu.Lock()
	s.init()
	closed := s.closed
	s.mu.Unlock()

	for _, f := range s.Frames {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-closed:
			return nil
		default:
		}
		deliver(f.Clone())
	}
	if s.RunErr != nil {
		return s.RunErr
	}
	if s.Hold {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-closed:
		}
	}
	return nil
}

// Close records the call and unblocks Run.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.closeCalls++
	if s.closeCalls == 1 {
		close(s.closed)
	}
	return nil
}

// CloseCalls returns the number of Close invocations.
func (s *Source) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

var _ source.Source = (*Source)(nil)
