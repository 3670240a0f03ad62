package analysis

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the name of the tracer for triage operations.
const TracerName = "mailtriage"

// Span attribute keys
const (
	AttrFingerprint = "email.fingerprint"
	AttrSizeBytes   = "email.size_bytes"
	AttrStage       = "stage"
	AttrScore       = "threat.score"
	AttrLevel       = "threat.level"
	AttrErrorCode   = "error.code"
)

// SpanAnalyze is the root span for one message.
const SpanAnalyze = "mailtriage.analyze"

// Tracer wraps the OpenTelemetry tracer used by the pipeline.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

// StartAnalysisSpan starts the root span for one message.
func (t *Tracer) StartAnalysisSpan(ctx context.Context, size int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanAnalyze,
		trace.WithAttributes(attribute.Int(AttrSizeBytes, size)),
	)
}

// StartStageSpan starts a span for a pipeline stage.
func (t *Tracer) StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "mailtriage.stage."+stage,
		trace.WithAttributes(attribute.String(AttrStage, stage)),
	)
}

func setResult(span trace.Span, r *Result) {
	span.SetAttributes(
		attribute.String(AttrFingerprint, r.Email.ID),
		attribute.Int(AttrScore, r.Threat.Score),
		attribute.String(AttrLevel, string(r.Threat.Level)),
	)
	span.SetStatus(codes.Ok, "")
}

func setError(span trace.Span, err error, code string) {
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String(AttrErrorCode, code))
	span.RecordError(err)
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
