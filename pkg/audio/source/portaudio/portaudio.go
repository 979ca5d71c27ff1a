//go:build portaudio

// Package portaudio provides a live microphone Source using PortAudio. It is
// built only with the "portaudio" build tag because it links against the
// system PortAudio library.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/audio"
	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/audio/source"
)

var _ source.Source = (*Source)(nil)

// Source captures from the default input device.
type Source struct {
	cfg source.Config

	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []float32
	closed bool
}

// New initialises PortAudio and opens the default input device with the
// configured channel count, sample rate and frame size. The stream is
// started by Run.
func New(cfg source.Config) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("portaudio: %w", err)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	f := cfg.Format
	buf := make([]float32, f.FrameSize*f.Channels)
	stream, err := portaudio.OpenDefaultStream(f.Channels, 0, float64(f.SampleRate), f.FrameSize, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: open input stream: %w", err)
	}
	slog.Info("portaudio input opened",
		"sample_rate", f.SampleRate,
		"channels", f.Channels,
		"frame_size", f.FrameSize,
		"channel", cfg.Channel,
	)
	return &Source{cfg: cfg, stream: stream, buf: buf}, nil
}

// Format returns the stream format.
func (s *Source) Format() audio.Format { return s.cfg.Format }

// Run starts the stream and delivers frames until ctx is done or Close is
// called.
func (s *Source) Run(ctx context.Context, deliver func(audio.Frame)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return source.ErrClosed
	}
	stream := s.stream
	s.mu.Unlock()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start stream: %w", err)
	}
	defer func() { _ = stream.Stop() }()

	// Closing the stream unblocks a pending Read.
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		if err := stream.Read(); err != nil {
			if s.isClosed() {
				return ctx.Err()
			}
			if errors.Is(err, portaudio.InputOverflowed) {
				slog.Debug("portaudio input overflowed")
				continue
			}
			return fmt.Errorf("portaudio: read: %w", err)
		}
		frame, err := audio.SelectChannel(s.buf, s.cfg.Format.Channels, s.cfg.Channel)
		if err != nil {
			return fmt.Errorf("portaudio: %w", err)
		}
		deliver(frame)
	}
}

func (s *Source) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close closes the stream and terminates PortAudio.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.stream.Close()
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	if err != nil {
		return fmt.Errorf("portaudio: close: %w", err)
	}
	return nil
}
