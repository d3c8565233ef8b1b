package pv

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for process variable metrics.
const meterName = "github.com/nerrad567/gray-logic-sequencer/pv"

// Origin names what caused a refresh. A push variable can still be refreshed
// by an explicit Fetch, so Origin is recorded alongside the variable's Mode.
type Origin string

const (
	// OriginPush is a refresh from a bus event delivered to a push variable.
	OriginPush Origin = "push"
	// OriginPoll is a refresh from a poll tick.
	OriginPoll Origin = "poll"
	// OriginFetch is a refresh from an explicit Fetch call.
	OriginFetch Origin = "fetch"
)

// MetricsRecorder records process variable metrics.
// Use NewMetricsRecorder for OpenTelemetry metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordRefresh records one cache refresh of a variable with the given
	// mode, tagged with what triggered it.
	RecordRefresh(ctx context.Context, key string, mode Mode, origin Origin)

	// RecordFetch records a bus fetch with its latency and outcome.
	RecordFetch(ctx context.Context, key string, duration time.Duration, err error)

	// RecordPollFailure records a failed poll tick.
	RecordPollFailure(ctx context.Context, key string)

	// RecordDependentError records a dependent callback that failed or panicked.
	RecordDependentError(ctx context.Context, key string)
}

// NoopMetrics discards every measurement.
type NoopMetrics struct{}

func (NoopMetrics) RecordRefresh(context.Context, string, Mode, Origin)       {}
func (NoopMetrics) RecordFetch(context.Context, string, time.Duration, error) {}
func (NoopMetrics) RecordPollFailure(context.Context, string)                 {}
func (NoopMetrics) RecordDependentError(context.Context, string)              {}

type otelMetrics struct {
	refreshes       metric.Int64Counter
	fetchLatency    metric.Float64Histogram
	fetchErrors     metric.Int64Counter
	pollFailures    metric.Int64Counter
	dependentErrors metric.Int64Counter
}

// NewMetricsRecorder returns a MetricsRecorder backed by provider, or by the
// global OpenTelemetry meter provider when provider is nil.
func NewMetricsRecorder(provider metric.MeterProvider) (MetricsRecorder, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	refreshes, err := meter.Int64Counter("sequencer.pv.refreshes",
		metric.WithDescription("Number of process variable cache refreshes"),
	)
	if err != nil {
		return nil, err
	}

	fetchLatency, err := meter.Float64Histogram("sequencer.pv.fetch.latency_ms",
		metric.WithDescription("Latency of latest-event fetches in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	fetchErrors, err := meter.Int64Counter("sequencer.pv.fetch.errors",
		metric.WithDescription("Number of failed latest-event fetches"),
	)
	if err != nil {
		return nil, err
	}

	pollFailures, err := meter.Int64Counter("sequencer.pv.poll.failures",
		metric.WithDescription("Number of failed poll ticks"),
	)
	if err != nil {
		return nil, err
	}

	dependentErrors, err := meter.Int64Counter("sequencer.pv.dependent.errors",
		metric.WithDescription("Number of dependent callbacks that failed or panicked"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		refreshes:       refreshes,
		fetchLatency:    fetchLatency,
		fetchErrors:     fetchErrors,
		pollFailures:    pollFailures,
		dependentErrors: dependentErrors,
	}, nil
}

func (m *otelMetrics) RecordRefresh(ctx context.Context, key string, mode Mode, origin Origin) {
	m.refreshes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("key", key),
		attribute.String("mode", mode.String()),
		attribute.String("origin", string(origin)),
	))
}

func (m *otelMetrics) RecordFetch(ctx context.Context, key string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("key", key))
	m.fetchLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.fetchErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordPollFailure(ctx context.Context, key string) {
	m.pollFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
}

func (m *otelMetrics) RecordDependentError(ctx context.Context, key string) {
	m.dependentErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
}
