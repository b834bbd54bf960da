package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records event-pipeline metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordPublish records an event accepted by the router.
	RecordPublish(ctx context.Context, eventType string)

	// RecordValidation records a moderation decision and its latency.
	RecordValidation(ctx context.Context, outcome string, duration time.Duration)

	// RecordDelivery records an outbound handoff to a connection.
	// dropped is true when the event was discarded instead of delivered.
	RecordDelivery(ctx context.Context, eventType string, dropped bool)

	// RecordReply records a reply generation with its duration and error status.
	RecordReply(ctx context.Context, duration time.Duration, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	publishes         metric.Int64Counter
	validations       metric.Int64Counter
	validationLatency metric.Float64Histogram
	deliveries        metric.Int64Counter
	deliveryDrops     metric.Int64Counter
	replyLatency      metric.Float64Histogram
	replyErrors       metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("digitalhuman")

	publishes, err := meter.Int64Counter("digitalhuman.bus.publishes",
		metric.WithDescription("Number of events accepted by the router"),
	)
	if err != nil {
		return nil, err
	}

	validations, err := meter.Int64Counter("digitalhuman.validation.decisions",
		metric.WithDescription("Number of moderation decisions"),
	)
	if err != nil {
		return nil, err
	}

	validationLatency, err := meter.Float64Histogram("digitalhuman.validation.latency_ms",
		metric.WithDescription("Moderation decision latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	deliveries, err := meter.Int64Counter("digitalhuman.gateway.deliveries",
		metric.WithDescription("Number of outbound handoffs to connections"),
	)
	if err != nil {
		return nil, err
	}

	deliveryDrops, err := meter.Int64Counter("digitalhuman.gateway.drops",
		metric.WithDescription("Number of outbound events discarded"),
	)
	if err != nil {
		return nil, err
	}

	replyLatency, err := meter.Float64Histogram("digitalhuman.persona.reply_latency_ms",
		metric.WithDescription("Reply generation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	replyErrors, err := meter.Int64Counter("digitalhuman.persona.reply_errors",
		metric.WithDescription("Number of failed reply generations"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		publishes:         publishes,
		validations:       validations,
		validationLatency: validationLatency,
		deliveries:        deliveries,
		deliveryDrops:     deliveryDrops,
		replyLatency:      replyLatency,
		replyErrors:       replyErrors,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the
// provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordPublish records an accepted event.
func (m *otelMetrics) RecordPublish(ctx context.Context, eventType string) {
	m.publishes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordValidation records a moderation decision.
func (m *otelMetrics) RecordValidation(ctx context.Context, outcome string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("outcome", outcome),
	}
	m.validations.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.validationLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordDelivery records an outbound handoff.
func (m *otelMetrics) RecordDelivery(ctx context.Context, eventType string, dropped bool) {
	attrs := []attribute.KeyValue{
		attribute.String("event_type", eventType),
	}
	if dropped {
		m.deliveryDrops.Add(ctx, 1, metric.WithAttributes(attrs...))
		return
	}
	m.deliveries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReply records a reply generation.
func (m *otelMetrics) RecordReply(ctx context.Context, duration time.Duration, err error) {
	m.replyLatency.Record(ctx, float64(duration.Milliseconds()))
	if err != nil {
		m.replyErrors.Add(ctx, 1)
	}
}
