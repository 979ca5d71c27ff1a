// Package trigger implements the volume-triggered recording state machine.
//
// A [Machine] is fed one frame at a time. While idle it keeps a short rolling
// history of frames; once the smoothed volume crosses the threshold it seeds a
// recording with that history and keeps appending frames until the recording
// reaches its target length. The caller then takes the finished window with
// [Machine.Drain], which re-arms the machine.
//
// A Machine is not safe for concurrent use. It is owned by a single processing
// goroutine; other goroutines talk to it through that goroutine.
package trigger

import (
	"log/slog"

	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/audio"
)

// State is the recording state of a [Machine].
type State int

const (
	// StateIdle accumulates history and waits for the volume trigger.
	StateIdle State = iota

	// StateRecording appends every frame to the active recording.
	StateRecording

	// StateReady holds a complete recording waiting for [Machine.Drain].
	StateReady

	// StateStopped ignores all frames until listening is resumed.
	StateStopped
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateReady:
		return "ready"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	// smoothing is the weight of the previous smoothed volume.
	smoothing = 0.5

	// volumeCeiling is the smoothed RMS that maps to full scale.
	volumeCeiling = 0.17

	// DefaultThreshold is the trigger level on the 0-100 volume scale.
	DefaultThreshold = 25.0

	// DefaultHistoryFrames is the number of pre-trigger frames kept.
	DefaultHistoryFrames = 10
)

// Config holds the tuning knobs of a [Machine].
type Config struct {
	// Threshold is the trigger level on the 0-100 volume scale. A mapped
	// volume equal to the threshold triggers. Nil selects 25; zero triggers
	// on any input.
	Threshold *float64

	// HistoryFrames is the capacity of the pre-trigger history. Default: 10.
	HistoryFrames int

	// TargetFrames is the total length of a recording in frames, history
	// seed included. Required.
	TargetFrames int
}

// Volume reports the volume state after the latest frame.
type Volume struct {
	// Current is the RMS of the latest frame.
	Current float64

	// Smoothed is the exponential moving average of Current.
	Smoothed float64

	// Scaled is Smoothed mapped onto the 0-100 trigger scale.
	Scaled float64
}

// Step is the outcome of feeding one frame to [Machine.Process].
type Step struct {
	// State is the machine state after the frame.
	State State

	// Started is true only for the frame that began a recording.
	Started bool

	// Volume is the volume state after the frame.
	Volume Volume
}

// Machine is the trigger state machine. Create one with [New].
type Machine struct {
	cfg       Config
	threshold float64

	state      State
	suppressed bool
	volume     Volume

	history   *audio.RingBuffer[audio.Frame]
	recording *audio.RingBuffer[audio.Frame]
	collected int
}

// New creates a Machine in [StateIdle]. A nil Threshold and a non-positive
// HistoryFrames are replaced by their defaults; a TargetFrames below 1 is
// raised to 1.
func New(cfg Config) *Machine {
	if cfg.HistoryFrames <= 0 {
		cfg.HistoryFrames = DefaultHistoryFrames
	}
	if cfg.TargetFrames < 1 {
		cfg.TargetFrames = 1
	}
	threshold := DefaultThreshold
	if cfg.Threshold != nil {
		threshold = *cfg.Threshold
	}
	return &Machine{
		cfg:       cfg,
		threshold: threshold,
		history:   audio.NewRingBuffer[audio.Frame](cfg.HistoryFrames),
		recording: audio.NewRingBuffer[audio.Frame](cfg.TargetFrames),
	}
}

// Scale maps a smoothed RMS value onto the 0-100 trigger scale, clamping
// [0, 0.17] linearly to [0, 100].
func Scale(smoothed float64) float64 {
	v := smoothed / volumeCeiling
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	return v * 100
}

// Process feeds one frame through the machine.
func (m *Machine) Process(frame audio.Frame) Step {
	if m.state == StateStopped {
		return Step{State: m.state, Volume: m.volume}
	}

	cur := audio.RMS(frame)
	smoothed := m.volume.Smoothed*smoothing + cur*(1-smoothing)
	m.volume = Volume{Current: cur, Smoothed: smoothed, Scaled: Scale(smoothed)}

	triggered := m.volume.Scaled >= m.threshold

	switch {
	case m.state == StateIdle && triggered && !m.suppressed:
		m.startRecording()
		return Step{State: m.state, Started: true, Volume: m.volume}

	case m.state == StateRecording:
		m.recording.Push(frame)
		m.collected++
		if m.collected >= m.cfg.TargetFrames {
			m.state = StateReady
			slog.Debug("trigger: recording complete", "frames", m.collected)
		}

	default:
		m.history.Push(frame)
	}
	return Step{State: m.state, Volume: m.volume}
}

// startRecording seeds a new recording with the current history.
func (m *Machine) startRecording() {
	m.recording.Clear()
	m.recording.SetCapacity(m.cfg.TargetFrames)
	for _, f := range m.history.Snapshot() {
		m.recording.Push(f)
	}
	m.collected = m.recording.Len()
	m.state = StateRecording
	if m.collected >= m.cfg.TargetFrames {
		m.state = StateReady
	}
	slog.Debug("trigger: recording started",
		"seed_frames", m.collected,
		"target_frames", m.cfg.TargetFrames,
		"volume", m.volume.Scaled,
	)
}

// Drain hands off the completed recording and returns the machine to
// [StateIdle]. It returns nil unless the machine is in [StateReady].
func (m *Machine) Drain() []audio.Frame {
	if m.state != StateReady {
		return nil
	}
	frames := m.recording.DrainAll()
	m.collected = 0
	m.state = StateIdle
	return frames
}

// Stop cancels any recording without producing a completed window, clears
// both buffers, resets the smoothed volume and re-arms the trigger.
func (m *Machine) Stop() {
	m.history.Clear()
	m.recording.Clear()
	m.collected = 0
	m.volume = Volume{}
	if m.state != StateStopped {
		m.state = StateIdle
	}
}

// SetListening switches frame processing on or off. Switching off performs
// [Machine.Stop] and parks the machine in [StateStopped]; switching on
// returns it to [StateIdle].
func (m *Machine) SetListening(on bool) {
	if on {
		if m.state == StateStopped {
			m.state = StateIdle
		}
		return
	}
	m.Stop()
	m.state = StateStopped
}

// Listening reports whether the machine is processing frames.
func (m *Machine) Listening() bool { return m.state != StateStopped }

// Suppress keeps the trigger from firing until [Machine.Release] is called.
// Frames keep feeding the history while suppressed.
func (m *Machine) Suppress() { m.suppressed = true }

// Release re-enables the trigger after [Machine.Suppress].
func (m *Machine) Release() { m.suppressed = false }

// Suppressed reports whether the trigger is currently held off.
func (m *Machine) Suppressed() bool { return m.suppressed }

// SetThreshold changes the trigger level on the 0-100 scale.
func (m *Machine) SetThreshold(threshold float64) { m.threshold = threshold }

// Threshold returns the trigger level on the 0-100 scale.
func (m *Machine) Threshold() float64 { return m.threshold }

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Volume returns the volume state after the latest frame.
func (m *Machine) Volume() Volume { return m.volume }

// Collected returns the number of frames in the active recording.
func (m *Machine) Collected() int { return m.collected }

// HistoryLen returns the number of frames in the pre-trigger history.
func (m *Machine) HistoryLen() int { return m.history.Len() }
