package observe

import "errors"

var (
	ErrMissingServiceName     = errors.New("observe: service name is required")
	ErrInvalidSamplePct       = errors.New("observe: sample pct outside [0, 1]")
	ErrInvalidTracingExporter = errors.New("observe: unknown tracing exporter")
	ErrInvalidMetricsExporter = errors.New("observe: unknown metrics exporter")
	ErrInvalidLogLevel        = errors.New("observe: unknown log level")

	ErrNilObserver      = errors.New("observe: nil observer")
	ErrMissingStageName = errors.New("observe: stage name is required")
)

// Sampling bounds for TracingConfig.SamplePct.
const (
	MinSamplePct = 0.0
	MaxSamplePct = 1.0
)

// The empty string is accepted everywhere and means the default.
var (
	tracingExporters = []string{"", "none", "stdout", "otlp", "jaeger"}
	metricsExporters = []string{"", "none", "stdout", "otlp", "prometheus"}
	logLevels        = []string{"", "debug", "info", "warn", "error"}
)

// redactedKeys are log field keys whose values are replaced before output.
// Queries, prompts and auxiliary context can carry patient data.
var redactedKeys = []string{
	"prompt", "aux_context",
	"api_key", "apiKey", "authorization", "token", "secret", "password", "credential",
}
