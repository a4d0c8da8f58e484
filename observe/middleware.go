package observe

import (
	"context"
	"time"
)

// StageFunc is one unit of pipeline work.
type StageFunc func(ctx context.Context) error

// Middleware wraps pipeline stages with tracing, metrics, and logging.
//
// Contract:
//   - Concurrency: Run is safe for concurrent use.
//   - Context: the span context is passed to fn.
//   - Errors: errors from fn are recorded and returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a Middleware. Nil components are replaced by no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// NopMiddleware returns a Middleware that only runs the stage.
func NopMiddleware() *Middleware {
	return NewMiddleware(nil, nil, nil)
}

// Metrics returns the middleware's metrics recorder.
func (m *Middleware) Metrics() Metrics { return m.metrics }

// Logger returns the middleware's logger.
func (m *Middleware) Logger() Logger { return m.logger }

// Run executes fn inside a span for meta and records its outcome.
func (m *Middleware) Run(ctx context.Context, meta StageMeta, fn StageFunc) error {
	ctx, span := m.tracer.StartSpan(ctx, meta)
	start := time.Now()

	err := fn(ctx)

	duration := time.Since(start)
	m.tracer.EndSpan(span, err)
	m.metrics.RecordStage(ctx, meta, duration, err)

	fields := []Field{
		F("stage", meta.Name),
		F("duration_ms", float64(duration.Microseconds())/1000),
	}
	if meta.Component != "" {
		fields = append(fields, F("component", meta.Component))
	}
	if err != nil {
		fields = append(fields, F("error", err.Error()))
		m.logger.Error(ctx, "stage failed", fields...)
	} else {
		m.logger.Debug(ctx, "stage completed", fields...)
	}
	return err
}

// MiddlewareFromObserver creates a Middleware from an Observer's providers.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}
