// Package telemetry wires OpenTelemetry metrics and tracing with OTLP
// exporters over gRPC. Instrumented packages obtain their meter and tracer
// through Meter and Tracer, which fall back to the no-op global providers
// when Init was never called.
package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationPrefix namespaces every meter and tracer created by this module.
const instrumentationPrefix = "github.com/gabapcia/blockscope/"

// Meter returns the meter for the named component.
func Meter(component string) metric.Meter {
	return otel.Meter(instrumentationPrefix + component)
}

// Tracer returns the tracer for the named component.
func Tracer(component string) trace.Tracer {
	return otel.Tracer(instrumentationPrefix + component)
}

// initMeterProvider sets up an OTLP gRPC MeterProvider using a
// periodic reader and registers it as the global MeterProvider.
func initMeterProvider(ctx context.Context, res *sdkresource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)
	return mp, nil
}

// initTracerProvider sets up an OTLP gRPC TracerProvider using a
// batched exporter and registers it as the global TracerProvider.
func initTracerProvider(ctx context.Context, res *sdkresource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// newResource merges the default system resource with the service name.
func newResource(serviceName string) (*sdkresource.Resource, error) {
	return sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
}

// ShutdownFunc flushes and stops every provider started by Init.
type ShutdownFunc func(ctx context.Context) error

type config struct {
	metrics bool
	tracing bool
}

// Option toggles a telemetry pipeline.
type Option func(*config)

// WithMetrics enables or disables the OTLP metrics pipeline. Default: enabled.
func WithMetrics(enabled bool) Option {
	return func(c *config) {
		c.metrics = enabled
	}
}

// WithTracing enables or disables the OTLP tracing pipeline. Default: enabled.
func WithTracing(enabled bool) Option {
	return func(c *config) {
		c.tracing = enabled
	}
}

// Init configures OpenTelemetry for the service. Exporter endpoints are read
// from the standard OTEL_EXPORTER_OTLP_* environment variables.
//
// The returned ShutdownFunc must be called on exit so buffered telemetry is
// flushed. If a later pipeline fails to start, the ones already running are
// shut down before the error is returned.
func Init(ctx context.Context, serviceName string, opts ...Option) (ShutdownFunc, error) {
	cfg := config{metrics: true, tracing: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	res, err := newResource(serviceName)
	if err != nil {
		return nil, err
	}

	var shutdowns []ShutdownFunc
	shutdown := func(ctx context.Context) error {
		errs := make([]error, 0, len(shutdowns))
		for _, fn := range shutdowns {
			errs = append(errs, fn(ctx))
		}
		return errors.Join(errs...)
	}

	if cfg.metrics {
		mp, err := initMeterProvider(ctx, res)
		if err != nil {
			return nil, err
		}
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	if cfg.tracing {
		tp, err := initTracerProvider(ctx, res)
		if err != nil {
			return nil, errors.Join(err, shutdown(ctx))
		}
		shutdowns = append(shutdowns, tp.Shutdown)
	}

	return shutdown, nil
}
