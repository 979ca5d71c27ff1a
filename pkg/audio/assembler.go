package audio

import "math"

// Assemble reduces a drained run of frames to one feature vector: every frame
// is box-filter downsampled by factor, the results are concatenated in frame
// order, and the whole vector is peak-normalised in place.
//
// Each frame of length L contributes floor(L/factor) samples; the trailing
// L mod factor samples are dropped. A factor below 1 is treated as 1. The
// frames themselves are left untouched, so callers that hand over a drained
// slice may reuse or discard it afterwards.
func Assemble(frames []Frame, factor int) []float32 {
	sample := Downsample(frames, factor)
	Normalize(sample)
	return sample
}

// Downsample averages each group of factor consecutive samples of every frame
// and returns the flattened result.
func Downsample(frames []Frame, factor int) []float32 {
	if factor < 1 {
		factor = 1
	}
	total := 0
	for _, f := range frames {
		total += len(f) / factor
	}
	out := make([]float32, 0, total)
	for _, f := range frames {
		n := len(f) / factor
		for j := range n {
			var sum float32
			for _, s := range f[j*factor : (j+1)*factor] {
				sum += s
			}
			out = append(out, sum/float32(factor))
		}
	}
	return out
}

// Normalize divides every sample by the largest absolute sample value so the
// vector spans [-1, 1]. An all-zero vector is left unchanged.
func Normalize(sample []float32) {
	var peak float32
	for _, s := range sample {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return
	}
	for i := range sample {
		sample[i] /= peak
	}
}

// RMS returns the root-mean-square of f, or 0 for an empty frame.
func RMS(f Frame) float64 {
	if len(f) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(f)))
}
