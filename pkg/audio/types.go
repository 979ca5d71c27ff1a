// Package audio defines the frame type that flows from a capture source into
// the trigger pipeline, together with the buffering and sample-conversion
// primitives used along the way.
//
// The central pieces are:
//
//   - [RingBuffer]: bounded FIFO with overwrite-oldest eviction, used both as
//     the rolling pre-trigger history and as the in-progress recording.
//   - [Assemble]: turns a drained run of frames into one downsampled,
//     peak-normalised feature vector for the classifier.
//
// This package lives under pkg/ because third-party capture sources and
// classifier backends are expected to produce and consume these types.
package audio

// Frame is one capture period of single-channel samples in the range [-1, 1].
// Every frame of a session has the same length.
type Frame []float32

// Clone returns a copy of f that does not share backing storage.
func (f Frame) Clone() Frame {
	if f == nil {
		return nil
	}
	out := make(Frame, len(f))
	copy(out, f)
	return out
}

// Format describes the stream delivered by a capture source.
type Format struct {
	// SampleRate in Hz (e.g., 48000).
	SampleRate int

	// Channels is the number of interleaved channels the device delivers.
	Channels int

	// FrameSize is the number of samples per channel in one frame.
	FrameSize int
}
