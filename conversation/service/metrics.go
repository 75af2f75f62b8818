package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records sink outcomes. A nil *Metrics records nothing.
type Metrics struct {
	writes  metric.Int64Counter
	latency metric.Float64Histogram
	turns   metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	writes, err := meter.Int64Counter("chatlog_sink_writes_total",
		metric.WithDescription("Chat message writes per sink and outcome"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("chatlog_sink_write_seconds",
		metric.WithDescription("Duration of a single sink write"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	turns, err := meter.Int64Counter("chatlog_turns_total",
		metric.WithDescription("Logging calls by overall outcome"))
	if err != nil {
		return nil, err
	}
	return &Metrics{writes: writes, latency: latency, turns: turns}, nil
}

func (m *Metrics) recordWrite(ctx context.Context, sinkName string, err error, took time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.writes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sink", sinkName),
		attribute.String("outcome", outcome),
	))
	m.latency.Record(ctx, took.Seconds(), metric.WithAttributes(attribute.String("sink", sinkName)))
}

func (m *Metrics) recordOutcome(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
