// Package pcm provides a Source reading raw interleaved 16-bit little-endian
// PCM from an io.Reader, typically standard input or a file. It lets the
// detector run on a piped stream (for example from arecord or ffmpeg) or on
// a recording without an audio device.
package pcm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/audio"
	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/audio/source"
)

var _ source.Source = (*Source)(nil)

// Option is a functional option for configuring a Source.
type Option func(*Source)

// WithRealtime paces delivery at the stream's sample rate instead of as fast
// as the reader allows. Use it when replaying files.
func WithRealtime() Option {
	return func(s *Source) { s.realtime = true }
}

// Source reads frames from r.
type Source struct {
	cfg      source.Config
	r        io.Reader
	closer   io.Closer
	realtime bool

	once   sync.Once
	closed chan struct{}
}

// New creates a Source reading from r. If r is an io.Closer it is closed by
// Close.
func New(r io.Reader, cfg source.Config, opts ...Option) (*Source, error) {
	if r == nil {
		return nil, errors.New("pcm: reader must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pcm: %w", err)
	}
	s := &Source{cfg: cfg, r: r, closed: make(chan struct{})}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Open creates a Source reading from path, or standard input for "-" and "".
func Open(path string, cfg source.Config, opts ...Option) (*Source, error) {
	if path == "" || path == "-" {
		return New(io.NopCloser(os.Stdin), cfg, opts...)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pcm: open %q: %w", path, err)
	}
	s, err := New(f, cfg, opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// Format returns the stream format.
func (s *Source) Format() audio.Format { return s.cfg.Format }

// Run reads whole frames until EOF. A trailing partial frame is discarded.
func (s *Source) Run(ctx context.Context, deliver func(audio.Frame)) error {
	select {
	case <-s.closed:
		return source.ErrClosed
	default:
	}

	f := s.cfg.Format
	buf := make([]byte, f.FrameSize*f.Channels*2)
	period := time.Duration(f.FrameSize) * time.Second / time.Duration(f.SampleRate)

	var tick <-chan time.Time
	if s.realtime {
		t := time.NewTicker(period)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closed:
			return nil
		default:
		}

		if _, err := io.ReadFull(s.r, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			select {
			case <-s.closed:
				return nil
			default:
			}
			return fmt.Errorf("pcm: read: %w", err)
		}

		frame, err := audio.SelectChannel(audio.PCM16ToFloat32(buf), f.Channels, s.cfg.Channel)
		if err != nil {
			return fmt.Errorf("pcm: %w", err)
		}
		deliver(frame)

		if tick != nil {
			select {
			case <-tick:
			case <-ctx.Done():
				return ctx.Err()
			case <-s.closed:
				return nil
			}
		}
	}
}

// Close stops Run and closes the underlying reader.
func (s *Source) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}
