package classifier_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/provider/classifier"
	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/provider/classifier/mock"
)

func TestArgMax(t *testing.T) {
	tests := []struct {
		name    string
		scores  []float32
		wantIdx int
		wantP   float32
		wantErr bool
	}{
		{name: "empty", wantErr: true},
		{name: "single", scores: []float32{0.3}, wantIdx: 0, wantP: 0.3},
		{name: "max in middle", scores: []float32{0.1, 0.8, 0.1}, wantIdx: 1, wantP: 0.8},
		{name: "tie resolves low", scores: []float32{0.5, 0.5}, wantIdx: 0, wantP: 0.5},
		{name: "negative scores", scores: []float32{-3, -1, -2}, wantIdx: 1, wantP: -1},
		{name: "nan", scores: []float32{0.1, float32(math.NaN())}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			idx, p, err := classifier.ArgMax(tc.scores)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ArgMax: %v", err)
			}
			if idx != tc.wantIdx || p != tc.wantP {
				t.Errorf("ArgMax = (%d, %v), want (%d, %v)", idx, p, tc.wantIdx, tc.wantP)
			}
		})
	}
}

func TestArgMax_EmptyIsSentinel(t *testing.T) {
	if _, _, err := classifier.ArgMax(nil); !errors.Is(err, classifier.ErrEmptyScores) {
		t.Fatalf("err = %v, want ErrEmptyScores", err)
	}
}

func TestResult_Accepted(t *testing.T) {
	for _, minConf := range []float64{0.75, 0.7, 0.5, 0.123} {
		exact := classifier.Result{Probability: float32(minConf)}
		if !exact.Accepted(minConf) {
			t.Errorf("min %v: score equal to minimum rejected", minConf)
		}
		below := classifier.Result{Probability: math.Nextafter32(float32(minConf), 0)}
		if below.Accepted(minConf) {
			t.Errorf("min %v: score just below minimum accepted", minConf)
		}
	}
}

func TestInterpret(t *testing.T) {
	r, err := classifier.Interpret([]float32{0.05, 0, 0, 0, 0.9, 0.05}, classifier.DefaultLabels())
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if r.Index != 4 || r.Label != "german" {
		t.Errorf("result = %+v, want german at 4", r)
	}
	if got := r.Percent(); math.Abs(got-90) > 1e-4 {
		t.Errorf("Percent = %v, want 90", got)
	}
}

func TestLabels(t *testing.T) {
	l := classifier.DefaultLabels()
	if got := l.Name(99); got != "99" {
		t.Errorf("Name(99) = %q, want \"99\"", got)
	}
	if got := l.Name(-1); got != "-1" {
		t.Errorf("Name(-1) = %q", got)
	}
	if got := l.IndexOfCode("fr"); got != 3 {
		t.Errorf("IndexOfCode(fr) = %d, want 3", got)
	}
	if got := l.IndexOfCode(""); got != -1 {
		t.Errorf("IndexOfCode(\"\") = %d, want -1", got)
	}
	if names := l.Names(); len(names) != 8 || names[0] != "noise" {
		t.Errorf("Names = %v", names)
	}
}

func TestWarmUp(t *testing.T) {
	p := &mock.Provider{Responses: [][]float32{{1}}}
	if err := classifier.WarmUp(context.Background(), p, 80000); err != nil {
		t.Fatalf("WarmUp: %v", err)
	}
	if len(p.ClassifyCalls) != 1 || len(p.ClassifyCalls[0].Samples) != 80000 {
		t.Fatalf("warm-up vector not passed through")
	}

	if err := classifier.WarmUp(context.Background(), &mock.Provider{}, 10); !errors.Is(err, classifier.ErrEmptyScores) {
		t.Errorf("empty response: err = %v, want ErrEmptyScores", err)
	}
	if err := classifier.WarmUp(context.Background(), p, 0); err == nil {
		t.Error("zero length accepted")
	}
}
