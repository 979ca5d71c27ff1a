package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/zkmkarlsruhe/LanguageIdentifier"

// Span attribute keys used by the classification cycle.
const (
	AttrFrames      = attribute.Key("langid.frames")
	AttrInputLength = attribute.Key("langid.input_length")
	AttrLabel       = attribute.Key("langid.label")
	AttrProbability = attribute.Key("langid.probability")
	AttrAccepted    = attribute.Key("langid.accepted")
)

// Tracer returns the tracer of the global [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartClassifySpan starts the span covering one classification cycle over a
// recording of frames frames.
func StartClassifySpan(ctx context.Context, frames int) (context.Context, trace.Span) {
	return StartSpan(ctx, "classify",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrFrames.Int(frames)),
	)
}

// EndClassifySpan records the outcome of a cycle on span and ends it. A nil
// err with an empty label marks a discarded recording.
func EndClassifySpan(span trace.Span, label string, probability float32, accepted bool, err error) {
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	if label == "" {
		return
	}
	span.SetAttributes(
		AttrLabel.String(label),
		AttrProbability.Float64(float64(probability)),
		AttrAccepted.Bool(accepted),
	)
}

// CorrelationID returns the trace ID in ctx, or "" without an active span.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger carrying trace_id and span_id when ctx
// holds a recording span.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
