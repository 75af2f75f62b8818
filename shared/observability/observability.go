// Package observability wires the OpenTelemetry tracer and meter providers.
package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"research-chat/backend/pkg/config"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Telemetry owns the providers created by Setup
type Telemetry struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *trace.TracerProvider
	registry       *prom.Registry
}

// Setup builds the providers enabled in cfg. Tracing exports to stdout and
// registers itself as the global tracer provider.
func Setup(serviceName string, cfg config.ObservabilityConfig) (*Telemetry, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	t := &Telemetry{}

	if cfg.Metrics {
		t.registry = prom.NewRegistry()
		exp, err := prometheus.New(prometheus.WithRegisterer(t.registry))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize prometheus exporter: %w", err)
		}
		t.meterProvider = metric.NewMeterProvider(
			metric.WithReader(exp),
			metric.WithResource(res),
		)
	}

	if cfg.Tracing {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize stdouttrace exporter: %w", err)
		}
		t.tracerProvider = trace.NewTracerProvider(
			trace.WithBatcher(exp),
			trace.WithResource(res),
		)
		otel.SetTracerProvider(t.tracerProvider)
	}

	return t, nil
}

// Meter returns a meter, or a no-op one when metrics are disabled
func (t *Telemetry) Meter(name string) otelmetric.Meter {
	if t == nil || t.meterProvider == nil {
		return noop.NewMeterProvider().Meter(name)
	}
	return t.meterProvider.Meter(name)
}

// Tracer returns a tracer from the global provider
func (t *Telemetry) Tracer(name string) oteltrace.Tracer {
	return otel.Tracer(name)
}

// MetricsHandler serves the Prometheus registry, or nil when metrics are disabled
func (t *Telemetry) MetricsHandler() http.Handler {
	if t == nil || t.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the providers
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.meterProvider != nil {
		errs = append(errs, t.meterProvider.Shutdown(ctx))
	}
	if t.tracerProvider != nil {
		errs = append(errs, t.tracerProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
