package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// StageMeta describes one pipeline stage for telemetry.
type StageMeta struct {
	Name      string // Stage name, e.g. "retrieve" or "generate" (required)
	Component string // Backend serving the stage, e.g. "chroma" or "groq" (optional)
	Model     string // Model identifier for generation stages (optional)
}

// SpanName returns the deterministic span name: answer.<name>.
func (m StageMeta) SpanName() string {
	return "answer." + m.Name
}

// Validate reports ErrMissingStageName when Name is empty.
func (m StageMeta) Validate() error {
	if m.Name == "" {
		return ErrMissingStageName
	}
	return nil
}

func (m StageMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("stage.name", m.Name)}
	if m.Component != "" {
		attrs = append(attrs, attribute.String("stage.component", m.Component))
	}
	if m.Model != "" {
		attrs = append(attrs, attribute.String("stage.model", m.Model))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with stage-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a span for a pipeline stage.
	StartSpan(ctx context.Context, meta StageMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return NopTracer()
	}
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta StageMeta) (context.Context, trace.Span) {
	attrs := append(meta.attributes(), attribute.Bool("stage.error", false))
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("stage.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// NopTracer returns a tracer whose spans record nothing.
func NopTracer() Tracer {
	return &tracerImpl{tracer: tracenoop.NewTracerProvider().Tracer("noop")}
}
