// Package exporters builds OpenTelemetry exporters by name for the observe package.
//
// Console exporters write to stderr so they never interleave with answers the
// CLI prints on stdout.
package exporters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	ErrUnknownExporter       = errors.New("unknown exporter")
	ErrEndpointNotConfigured = errors.New("exporter endpoint not configured")
)

// Console is where the stdout exporters write. Tests may swap it.
var Console io.Writer = os.Stderr

type (
	spanFactory   func(ctx context.Context) (sdktrace.SpanExporter, error)
	readerFactory func(ctx context.Context) (sdkmetric.Reader, error)
)

var spanExporters = map[string]spanFactory{
	"":     noSpans,
	"none": noSpans,
	"stdout": func(context.Context) (sdktrace.SpanExporter, error) {
		return stdouttrace.New(stdouttrace.WithWriter(Console))
	},
	"otlp": func(ctx context.Context) (sdktrace.SpanExporter, error) {
		if err := requireEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"); err != nil {
			return nil, err
		}
		return otlptracegrpc.New(ctx)
	},
	// Jaeger ingests OTLP natively; only the endpoint variable differs.
	"jaeger": func(ctx context.Context) (sdktrace.SpanExporter, error) {
		endpoint := os.Getenv("OTEL_EXPORTER_JAEGER_ENDPOINT")
		if endpoint == "" {
			return nil, fmt.Errorf("%w: set OTEL_EXPORTER_JAEGER_ENDPOINT", ErrEndpointNotConfigured)
		}
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpointURL(endpoint))
	},
}

var metricReaders = map[string]readerFactory{
	"":     noReader,
	"none": noReader,
	"stdout": func(context.Context) (sdkmetric.Reader, error) {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(Console))
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	},
	"otlp": func(ctx context.Context) (sdkmetric.Reader, error) {
		if err := requireEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"); err != nil {
			return nil, err
		}
		exp, err := otlpmetricgrpc.New(ctx)
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	},
	// The prometheus reader registers with the default registerer, which
	// promhttp.Handler serves.
	"prometheus": func(context.Context) (sdkmetric.Reader, error) {
		return prometheus.New()
	},
}

// NewTracingExporter returns the span exporter called name: stdout, otlp,
// jaeger or none. "none" and "" yield a nil exporter.
func NewTracingExporter(ctx context.Context, name string) (sdktrace.SpanExporter, error) {
	f, ok := spanExporters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, name)
	}
	exp, err := f(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s span exporter: %w", name, err)
	}
	return exp, nil
}

// NewMetricsReader returns the metric reader called name: stdout, otlp,
// prometheus or none. "none" and "" yield a nil reader.
func NewMetricsReader(ctx context.Context, name string) (sdkmetric.Reader, error) {
	f, ok := metricReaders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, name)
	}
	r, err := f(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s metrics reader: %w", name, err)
	}
	return r, nil
}

func noSpans(context.Context) (sdktrace.SpanExporter, error) { return nil, nil }
func noReader(context.Context) (sdkmetric.Reader, error)     { return nil, nil }

func requireEnv(keys ...string) error {
	for _, k := range keys {
		if os.Getenv(k) != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: set one of %v", ErrEndpointNotConfigured, keys)
}
