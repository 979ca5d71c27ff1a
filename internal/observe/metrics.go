// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, tracing, structured logging, and HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/zkmkarlsruhe/LanguageIdentifier"

// Classification outcomes used as the "status" attribute.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusRejected = "rejected"
	StatusInvalid  = "invalid"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Capture ---

	// FramesProcessed counts frames consumed by the trigger.
	FramesProcessed metric.Int64Counter

	// FramesDropped counts frames discarded because the processing queue was full.
	FramesDropped metric.Int64Counter

	// Volume is the smoothed volume on the 0-100 trigger scale.
	Volume metric.Float64Gauge

	// --- Recording ---

	// RecordingsStarted counts trigger firings.
	RecordingsStarted metric.Int64Counter

	// RecordingsAborted counts recordings cancelled by a stop command.
	RecordingsAborted metric.Int64Counter

	// --- Classification ---

	// Classifications counts classifier runs. Use with attribute:
	//   attribute.String("status", ...)
	Classifications metric.Int64Counter

	// ClassificationDuration tracks classifier latency.
	ClassificationDuration metric.Float64Histogram

	// Detections counts accepted and rejected results. Use with attributes:
	//   attribute.String("label", ...), attribute.Bool("accepted", ...)
	Detections metric.Int64Counter

	// --- Side effects ---

	// CommandsScheduled counts external actions handed to the executor.
	CommandsScheduled metric.Int64Counter

	// CommandsCompleted counts finished external actions. Use with attribute:
	//   attribute.String("status", ...)
	CommandsCompleted metric.Int64Counter

	// NotifyPublishes counts sink publishes. Use with attributes:
	//   attribute.String("sink", ...), attribute.String("event", ...), attribute.String("status", ...)
	NotifyPublishes metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for model
// inference, which ranges from a few milliseconds to several seconds.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesProcessed, err = m.Int64Counter("langid.frames.processed",
		metric.WithDescription("Audio frames consumed by the trigger."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("langid.frames.dropped",
		metric.WithDescription("Audio frames dropped because the processing queue was full."),
	); err != nil {
		return nil, err
	}
	if met.Volume, err = m.Float64Gauge("langid.volume",
		metric.WithDescription("Smoothed input volume on the 0-100 trigger scale."),
	); err != nil {
		return nil, err
	}

	if met.RecordingsStarted, err = m.Int64Counter("langid.recordings.started",
		metric.WithDescription("Recordings started by the volume trigger."),
	); err != nil {
		return nil, err
	}
	if met.RecordingsAborted, err = m.Int64Counter("langid.recordings.aborted",
		metric.WithDescription("Recordings cancelled before completion."),
	); err != nil {
		return nil, err
	}

	if met.Classifications, err = m.Int64Counter("langid.classifications",
		metric.WithDescription("Classifier runs by status."),
	); err != nil {
		return nil, err
	}
	if met.ClassificationDuration, err = m.Float64Histogram("langid.classification.duration",
		metric.WithDescription("Latency of one classification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Detections, err = m.Int64Counter("langid.detections",
		metric.WithDescription("Classification results by label and acceptance."),
	); err != nil {
		return nil, err
	}

	if met.CommandsScheduled, err = m.Int64Counter("langid.commands.scheduled",
		metric.WithDescription("External actions queued on the executor."),
	); err != nil {
		return nil, err
	}
	if met.CommandsCompleted, err = m.Int64Counter("langid.commands.completed",
		metric.WithDescription("External actions finished by status."),
	); err != nil {
		return nil, err
	}
	if met.NotifyPublishes, err = m.Int64Counter("langid.notify.publishes",
		metric.WithDescription("Event publishes by sink, event and status."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("langid.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordClassification records one classifier run with its outcome and latency.
func (m *Metrics) RecordClassification(ctx context.Context, status string, seconds float64) {
	m.Classifications.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if status != StatusError {
		m.ClassificationDuration.Record(ctx, seconds)
	}
}

// RecordDetection records a classification result for label.
func (m *Metrics) RecordDetection(ctx context.Context, label string, accepted bool) {
	m.Detections.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("label", label),
			attribute.Bool("accepted", accepted),
		),
	)
}

// RecordCommand records a finished external action.
func (m *Metrics) RecordCommand(ctx context.Context, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.CommandsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordPublish records one event publish on a sink.
func (m *Metrics) RecordPublish(ctx context.Context, sink, event string, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.NotifyPublishes.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("sink", sink),
			attribute.String("event", event),
			attribute.String("status", status),
		),
	)
}
