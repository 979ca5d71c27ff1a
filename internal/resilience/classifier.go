package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/provider/classifier"
)

var _ classifier.Provider = (*Classifier)(nil)

// Classifier is a [classifier.Provider] that fails over across several
// backends. Every attempt is bounded by its own timeout so a hung backend
// counts as a failure instead of blocking the pipeline.
type Classifier struct {
	group   *FallbackGroup[classifier.Provider]
	timeout time.Duration
}

// NewClassifier creates a Classifier with primary as the preferred backend.
// A timeout of zero leaves attempts bounded only by the caller's context.
func NewClassifier(primaryName string, primary classifier.Provider, timeout time.Duration, cfg FallbackConfig) *Classifier {
	return &Classifier{
		group:   NewFallbackGroup(primaryName, primary, cfg),
		timeout: timeout,
	}
}

// AddFallback registers another backend.
func (c *Classifier) AddFallback(name string, p classifier.Provider) {
	c.group.Add(name, p)
}

// Classify tries each backend until one returns a non-empty score vector.
func (c *Classifier) Classify(ctx context.Context, samples []float32) ([]float32, error) {
	scores, _, err := Do(c.group, func(p classifier.Provider) ([]float32, error) {
		actx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		s, err := p.Classify(actx, samples)
		if err != nil {
			return nil, err
		}
		if len(s) == 0 {
			return nil, classifier.ErrEmptyScores
		}
		return s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resilience: classify: %w", err)
	}
	return scores, nil
}

// Available reports whether any backend currently accepts calls.
func (c *Classifier) Available() bool { return c.group.Available() }

// States returns the breaker state of every backend keyed by name.
func (c *Classifier) States() map[string]State { return c.group.States() }
