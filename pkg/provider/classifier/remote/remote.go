// Package remote provides a classifier backed by a TensorFlow Serving style
// REST prediction endpoint.
//
// The feature vector is posted as a single instance of shape [n, 1]:
//
//	POST {url}
//	{"instances": [[[s0], [s1], ...]]}
//
// and the first row of "predictions" is returned as the score vector. This is
// the input layout of the bundled language model, so an exported SavedModel
// can be served unchanged.
//
// Usage:
//
//	p, err := remote.New("http://localhost:8501/v1/models/langid:predict",
//	    remote.WithTimeout(5*time.Second),
//	)
//	scores, err := p.Classify(ctx, samples)
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/provider/classifier"
)

const defaultTimeout = 10 * time.Second

// maxErrorBody bounds how much of a non-2xx response is quoted in errors.
const maxErrorBody = 512

var _ classifier.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the HTTP client timeout. Defaults to 10s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client entirely.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// WithHeader adds a header sent with every request, e.g. an API key.
func WithHeader(key, value string) Option {
	return func(p *Provider) { p.headers.Set(key, value) }
}

// Provider implements classifier.Provider over HTTP.
type Provider struct {
	url        string
	headers    http.Header
	httpClient *http.Client
}

// New creates a Provider posting to url. url must be non-empty.
func New(url string, opts ...Option) (*Provider, error) {
	if url == "" {
		return nil, errors.New("remote: url must not be empty")
	}
	p := &Provider{
		url:        url,
		headers:    make(http.Header),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type predictRequest struct {
	Instances [][][1]float32 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float32 `json:"predictions"`
	Error       string      `json:"error,omitempty"`
}

// Classify posts samples and returns the first prediction row.
func (p *Provider) Classify(ctx context.Context, samples []float32) ([]float32, error) {
	if len(samples) == 0 {
		return nil, errors.New("remote: empty feature vector")
	}
	instance := make([][1]float32, len(samples))
	for i, s := range samples {
		instance[i] = [1]float32{s}
	}
	body, err := json.Marshal(predictRequest{Instances: [][][1]float32{instance}})
	if err != nil {
		return nil, fmt.Errorf("remote: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range p.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("remote: unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("remote: decode response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("remote: server error: %s", out.Error)
	}
	if len(out.Predictions) == 0 || len(out.Predictions[0]) == 0 {
		return nil, fmt.Errorf("remote: %w", classifier.ErrEmptyScores)
	}
	return out.Predictions[0], nil
}
