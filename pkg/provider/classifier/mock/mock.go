// Package mock provides a test double for the classifier.Provider interface.
//
// Scores are returned in order from Responses; once exhausted, the last
// response is repeated. Err, when set, is returned instead of any response.
//
// Example:
//
//	p := &mock.Provider{Responses: [][]float32{{0.1, 0.9}}}
//	scores, _ := p.Classify(ctx, samples)
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/provider/classifier"
)

// ClassifyCall records a single invocation of Provider.Classify.
type ClassifyCall struct {
	// Samples is a copy of the vector passed to Classify.
	Samples []float32
}

// Provider is a mock implementation of classifier.Provider.
type Provider struct {
	mu sync.Mutex

	// Responses are returned in order by successive Classify calls.
	Responses [][]float32

	// Err, if non-nil, is returned by every Classify call.
	Err error

	// Block, if non-nil, makes Classify wait until it is closed or the
	// context is done.
	Block chan struct{}

	// ClassifyCalls records every call to Classify.
	ClassifyCalls []ClassifyCall

	next int
}

// Classify records the call and returns the next response.
func (p *Provider) Classify(ctx context.Context, samples []float32) ([]float32, error) {
	p.mu.Lock()
	p.ClassifyCalls = append(p.ClassifyCalls, ClassifyCall{Samples: slices.Clone(samples)})
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Responses) == 0 {
		return nil, nil
	}
	i := min(p.next, len(p.Responses)-1)
	p.next++
	return slices.Clone(p.Responses[i]), nil
}

// Calls returns the number of Classify invocations so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ClassifyCalls)
}

// Reset clears recorded calls and rewinds the response sequence.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ClassifyCalls = nil
	p.next = 0
}

var _ classifier.Provider = (*Provider)(nil)
