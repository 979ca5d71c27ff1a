// Package classifier defines the Provider interface for spoken-language
// classification backends.
//
// A provider consumes one assembled feature vector (peak-normalised mono
// samples at the model sample rate) and returns one score per label. The
// pipeline treats the highest score as the prediction and its value as the
// confidence; scores are not required to sum to one.
//
// Implementations must be safe for concurrent use, although the pipeline never
// runs more than one classification at a time.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrEmptyScores is returned when a provider produced no usable scores.
var ErrEmptyScores = errors.New("classifier: empty score vector")

// Provider scores a feature vector.
type Provider interface {
	// Classify returns the per-label scores for samples. The length of samples
	// is fixed for the lifetime of the process.
	Classify(ctx context.Context, samples []float32) ([]float32, error)
}

// Result is the interpretation of one score vector.
type Result struct {
	// Index is the position of the highest score.
	Index int

	// Label is the name mapped to Index, or its decimal form if unmapped.
	Label string

	// Probability is the highest score.
	Probability float32

	// Scores is the full score vector as returned by the provider.
	Scores []float32
}

// Percent returns Probability scaled to [0, 100].
func (r Result) Percent() float64 {
	return float64(r.Probability) * 100
}

// ArgMax returns the index and value of the highest score. Ties resolve to the
// lowest index. It returns [ErrEmptyScores] for an empty vector and an error
// for vectors containing NaN.
func ArgMax(scores []float32) (int, float32, error) {
	if len(scores) == 0 {
		return 0, 0, ErrEmptyScores
	}
	best := 0
	for i, s := range scores {
		if math.IsNaN(float64(s)) {
			return 0, 0, fmt.Errorf("classifier: score %d is NaN", i)
		}
		if s > scores[best] {
			best = i
		}
	}
	return best, scores[best], nil
}

// Interpret maps scores onto labels.
func Interpret(scores []float32, labels Labels) (Result, error) {
	idx, p, err := ArgMax(scores)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Index:       idx,
		Label:       labels.Name(idx),
		Probability: p,
		Scores:      scores,
	}, nil
}

// Accepted reports whether r meets minConfidence. The comparison is inclusive
// and done at the provider's float32 precision so that a score equal to the
// configured value is always accepted.
func (r Result) Accepted(minConfidence float64) bool {
	return r.Probability >= float32(minConfidence)
}

// WarmUp runs one classification over a silent vector of the given length.
// The first inference of most backends is considerably slower than the rest.
func WarmUp(ctx context.Context, p Provider, length int) error {
	if length <= 0 {
		return fmt.Errorf("classifier: warm-up length %d must be positive", length)
	}
	scores, err := p.Classify(ctx, make([]float32, length))
	if err != nil {
		return fmt.Errorf("classifier: warm-up: %w", err)
	}
	if len(scores) == 0 {
		return fmt.Errorf("classifier: warm-up: %w", ErrEmptyScores)
	}
	return nil
}
