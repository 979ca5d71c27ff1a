// Package whisper provides a classifier backed by whisper.cpp language
// detection through its CGO bindings. The whisper.cpp static library
// (libwhisper.a) and headers (whisper.h) must be available at link time via
// LIBRARY_PATH and C_INCLUDE_PATH.
//
// whisper.cpp reports a single detected language rather than a score vector,
// so the result is one-hot over the configured labels: the label whose code
// matches the detected language scores 1, every other label 0. A language
// outside the label set yields an all-zero vector, which never passes the
// confidence gate.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/provider/classifier"
)

var _ classifier.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithThreads sets the number of CPU threads used per inference. Zero keeps
// the library default.
func WithThreads(n uint) Option {
	return func(p *Provider) { p.threads = n }
}

// Provider implements classifier.Provider using a whisper.cpp model loaded
// once at construction.
type Provider struct {
	labels  classifier.Labels
	threads uint

	mu    sync.Mutex
	model whisperlib.Model
}

// New loads the model at modelPath. The model must be multilingual; an
// English-only model cannot detect languages.
func New(modelPath string, labels classifier.Labels, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	if len(labels) == 0 {
		return nil, errors.New("whisper: at least one label is required")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	if !model.IsMultilingual() {
		_ = model.Close()
		return nil, fmt.Errorf("whisper: model %q is not multilingual", modelPath)
	}
	p := &Provider{labels: labels, model: model}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the model.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil
	}
	err := p.model.Close()
	p.model = nil
	return err
}

// Classify runs language detection over samples (16 kHz mono).
func (p *Provider) Classify(ctx context.Context, samples []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil, errors.New("whisper: provider is closed")
	}

	// Contexts are not safe for concurrent use but share the model.
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage("auto"); err != nil {
		return nil, fmt.Errorf("whisper: enable language detection: %w", err)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	lang := wctx.DetectedLanguage()
	slog.Debug("whisper detected language", "language", lang)
	return OneHot(p.labels, lang), nil
}

// OneHot returns a score vector over labels with 1 at the label whose code is
// lang and 0 elsewhere.
func OneHot(labels classifier.Labels, lang string) []float32 {
	scores := make([]float32, len(labels))
	if i := labels.IndexOfCode(lang); i >= 0 {
		scores[i] = 1
	}
	return scores
}
