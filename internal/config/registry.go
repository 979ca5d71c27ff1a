package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/audio/source"
	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/provider/classifier"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// SourceFactory builds an audio source for the given entry and stream layout.
type SourceFactory func(entry ProviderEntry, cfg source.Config) (source.Source, error)

// ClassifierFactory builds a classifier backend. labels is the configured
// label map, needed by backends that name languages instead of indices.
type ClassifierFactory func(entry ProviderEntry, labels classifier.Labels) (classifier.Provider, error)

// Registry maps provider names to their constructor functions. It is safe
// for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	sources     map[string]SourceFactory
	classifiers map[string]ClassifierFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		sources:     make(map[string]SourceFactory),
		classifiers: make(map[string]ClassifierFactory),
	}
}

// RegisterSource registers an audio source factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSource(name string, factory SourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = factory
}

// RegisterClassifier registers a classifier factory under name.
func (r *Registry) RegisterClassifier(name string, factory ClassifierFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classifiers[name] = factory
}

// CreateSource instantiates the audio source registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSource(entry ProviderEntry, cfg source.Config) (source.Source, error) {
	r.mu.RLock()
	factory, ok := r.sources[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry, cfg)
}

// CreateClassifier instantiates the classifier registered under entry.Name.
func (r *Registry) CreateClassifier(entry ProviderEntry, labels classifier.Labels) (classifier.Provider, error) {
	r.mu.RLock()
	factory, ok := r.classifiers[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: classifier/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry, labels)
}

// Sources returns the registered source names in sorted order.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.sources)
}

// Classifiers returns the registered classifier names in sorted order.
func (r *Registry) Classifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.classifiers)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
