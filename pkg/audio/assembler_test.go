package audio_test

import (
	"math"
	"testing"

	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/audio"
)

const tolerance = 1e-5

func approxEqual(t *testing.T, got, want []float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (got %v)", len(got), len(want), got)
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > tolerance {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAssemble_WorkedExample(t *testing.T) {
	frames := []audio.Frame{
		{0.1, 0.3, 0.2, 0.4},
		{0, 0, 0, 0},
	}
	down := audio.Downsample(frames, 2)
	approxEqual(t, down, []float32{0.2, 0.3, 0, 0})

	got := audio.Assemble(frames, 2)
	approxEqual(t, got, []float32{0.2 / 0.3, 1, 0, 0})
}

func TestAssemble_Silence(t *testing.T) {
	frames := []audio.Frame{{0, 0, 0}, {0, 0, 0}}
	got := audio.Assemble(frames, 3)
	approxEqual(t, got, []float32{0, 0})
}

func TestNormalize_NegativePeak(t *testing.T) {
	v := []float32{0.25, -0.5, 0.1}
	audio.Normalize(v)
	approxEqual(t, v, []float32{0.5, -1, 0.2})
}

func TestDownsample_DropsRemainder(t *testing.T) {
	frames := []audio.Frame{{1, 1, 1, 5, 5, 5, 9}}
	got := audio.Downsample(frames, 3)
	approxEqual(t, got, []float32{1, 5})
}

func TestDownsample_LengthFormula(t *testing.T) {
	const (
		frameCount = 7
		frameLen   = 1024
		factor     = 3
	)
	frames := make([]audio.Frame, frameCount)
	for i := range frames {
		frames[i] = make(audio.Frame, frameLen)
	}
	got := audio.Downsample(frames, factor)
	if want := frameCount * (frameLen / factor); len(got) != want {
		t.Fatalf("len = %d, want %d", len(got), want)
	}
}

func TestDownsample_FactorBelowOne(t *testing.T) {
	got := audio.Downsample([]audio.Frame{{0.1, 0.2}}, 0)
	approxEqual(t, got, []float32{0.1, 0.2})
}

func TestAssemble_LeavesInputUntouched(t *testing.T) {
	frames := []audio.Frame{{0.2, 0.4}}
	_ = audio.Assemble(frames, 1)
	if frames[0][0] != 0.2 || frames[0][1] != 0.4 {
		t.Fatalf("input frame modified: %v", frames[0])
	}
}

func TestRMS(t *testing.T) {
	tests := []struct {
		name  string
		frame audio.Frame
		want  float64
	}{
		{name: "empty", frame: nil, want: 0},
		{name: "silence", frame: audio.Frame{0, 0}, want: 0},
		{name: "constant", frame: audio.Frame{0.5, -0.5, 0.5, -0.5}, want: 0.5},
		{name: "mixed", frame: audio.Frame{3, 4}, want: math.Sqrt(12.5)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := audio.RMS(tc.frame); math.Abs(got-tc.want) > tolerance {
				t.Errorf("RMS = %v, want %v", got, tc.want)
			}
		})
	}
}
