// Package telemetry installs the OpenTelemetry tracer provider. Spans are
// exported over OTLP/HTTP; with no endpoint configured the global no-op
// provider stays in place.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config selects the trace exporter.
type Config struct {
	// Endpoint is the collector host:port. Empty falls back to
	// OTEL_EXPORTER_OTLP_ENDPOINT; empty again disables export.
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	Environment string  `yaml:"environment"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Defaults fills zero values.
func (c *Config) Defaults() {
	if c.Endpoint == "" {
		c.Endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if c.ServiceName == "" {
		c.ServiceName = "trekassist"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.SampleRatio == 0 {
		c.SampleRatio = 1
	}
}

// Validate checks the sampling ratio.
func (c *Config) Validate() error {
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be in [0,1], got %v", c.SampleRatio)
	}
	return nil
}

// Enabled reports whether spans will be exported.
func (c Config) Enabled() bool { return c.Endpoint != "" }

// Shutdown flushes and stops the exporter.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// ErrNilContext is returned by Init for a nil context.
var ErrNilContext = errors.New("telemetry: nil context")

// Init installs a batching tracer provider as the global provider. The
// returned Shutdown must be called on exit; it is a no-op when export is
// disabled.
func Init(ctx context.Context, cfg Config, version string) (Shutdown, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		return noop, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create exporter: %w", err)
	}

	res := resource.NewWithAttributes("",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", version),
		attribute.String("deployment.environment", cfg.Environment),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
