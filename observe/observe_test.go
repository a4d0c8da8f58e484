package observe

import (
	"context"
	"errors"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"default", func(*Config) {}, nil},
		{"missing service", func(c *Config) { c.ServiceName = "" }, ErrMissingServiceName},
		{"bad tracing exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "zipkin"
		}, ErrInvalidTracingExporter},
		{"disabled tracing ignores exporter", func(c *Config) { c.Tracing.Exporter = "zipkin" }, nil},
		{"sample pct high", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SamplePct = 1.5
		}, ErrInvalidSamplePct},
		{"sample pct negative", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SamplePct = -0.1
		}, ErrInvalidSamplePct},
		{"bad metrics exporter", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Exporter = "statsd"
		}, ErrInvalidMetricsExporter},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, ErrInvalidLogLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("ragcache")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewObserver_Disabled(t *testing.T) {
	cfg := DefaultConfig("ragcache")
	cfg.Logging.Enabled = false
	obs, err := NewObserver(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}
	if obs.Tracer() == nil || obs.Meter() == nil || obs.Logger() == nil {
		t.Fatal("observer components must not be nil")
	}
	if err := obs.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNewObserver_Enabled(t *testing.T) {
	cfg := DefaultConfig("ragcache")
	cfg.Tracing = TracingConfig{Enabled: true, Exporter: "none", SamplePct: 0.5}
	cfg.Metrics = MetricsConfig{Enabled: true, Exporter: "none"}
	obs, err := NewObserver(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}
	_, span := obs.Tracer().Start(context.Background(), "check")
	span.End()
	if err := obs.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNewObserver_InvalidConfig(t *testing.T) {
	if _, err := NewObserver(context.Background(), Config{}); !errors.Is(err, ErrMissingServiceName) {
		t.Errorf("err = %v, want ErrMissingServiceName", err)
	}
}

func TestObserver_ShutdownIdempotent(t *testing.T) {
	cfg := DefaultConfig("ragcache")
	cfg.Tracing = TracingConfig{Enabled: true, Exporter: "none", SamplePct: 1}
	obs, err := NewObserver(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if err := obs.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	}
}
