package audio

import (
	"encoding/binary"
	"fmt"
)

// SelectChannel extracts one channel from interleaved samples. Samples of all
// other channels are discarded. It returns an error when channel is not in
// [0, channels).
func SelectChannel(interleaved []float32, channels, channel int) (Frame, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("audio: invalid channel count %d", channels)
	}
	if channel < 0 || channel >= channels {
		return nil, fmt.Errorf("audio: channel %d out of range for %s", channel, formatString(channels))
	}
	if channels == 1 {
		return Frame(interleaved).Clone(), nil
	}
	frames := len(interleaved) / channels
	out := make(Frame, frames)
	for i := range frames {
		out[i] = interleaved[i*channels+channel]
	}
	return out, nil
}

// PCM16ToFloat32 converts 16-bit signed little-endian PCM to float32 samples
// normalised to [-1.0, 1.0]. Any trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(s) / 32768.0
	}
	return samples
}

// Float32ToPCM16 converts float32 samples to 16-bit little-endian PCM,
// clamping to the int16 range.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// formatString returns a human-readable channel layout, e.g. "stereo".
func formatString(channels int) string {
	switch channels {
	case 1:
		return "mono"
	case 2:
		return "stereo"
	default:
		return fmt.Sprintf("%dch", channels)
	}
}
