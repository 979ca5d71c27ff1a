// Package source defines the capture side of the pipeline: a Source delivers
// fixed-size mono frames at a fixed sample rate until it is stopped.
//
// Multi-channel devices are opened with all their channels; the source keeps
// the configured channel and discards the rest before delivery, so every
// frame handed to the pipeline is single-channel.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/audio"
)

// ErrClosed is returned by Run on a source that has been closed.
var ErrClosed = errors.New("source: closed")

// Source is a running audio input.
type Source interface {
	// Format returns the stream format. Format.Channels is the device channel
	// count; delivered frames are always mono with Format.FrameSize samples.
	Format() audio.Format

	// Run captures until ctx is done, the stream ends or an error occurs,
	// calling deliver once per frame from a single goroutine. deliver must not
	// block. A finite stream that ends cleanly returns nil.
	Run(ctx context.Context, deliver func(audio.Frame)) error

	// Close releases the device. It is safe to call more than once.
	Close() error
}

// Config is the common construction input for sources.
type Config struct {
	Format audio.Format

	// Channel is the zero-based index of the channel to keep.
	Channel int
}

// Validate reports whether c describes a usable stream.
func (c Config) Validate() error {
	var errs []error
	if c.Format.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("source: sample rate %d must be positive", c.Format.SampleRate))
	}
	if c.Format.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("source: frame size %d must be positive", c.Format.FrameSize))
	}
	if c.Format.Channels <= 0 {
		errs = append(errs, fmt.Errorf("source: channel count %d must be positive", c.Format.Channels))
	} else if c.Channel < 0 || c.Channel >= c.Format.Channels {
		errs = append(errs, fmt.Errorf("source: channel %d out of range [0, %d)", c.Channel, c.Format.Channels))
	}
	return errors.Join(errs...)
}
