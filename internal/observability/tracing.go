package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer instance for the service. Uses the global OTel tracer provider.
var tracer = otel.Tracer("digitalhuman")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartDispatchSpan starts a span for routing one event.
	StartDispatchSpan(ctx context.Context, eventType, sessionID string) (context.Context, trace.Span)

	// StartReplySpan starts a span for one reply generation.
	StartReplySpan(ctx context.Context, personaName, sessionID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the
// provider before calling this function.
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartDispatchSpan starts a span for routing one event.
func (m *otelSpanManager) StartDispatchSpan(ctx context.Context, eventType, sessionID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "digitalhuman.dispatch",
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.String("session.id", sessionID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartReplySpan starts a span for one reply generation.
func (m *otelSpanManager) StartReplySpan(ctx context.Context, personaName, sessionID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "digitalhuman.reply",
		trace.WithAttributes(
			attribute.String("persona.name", personaName),
			attribute.String("session.id", sessionID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
// A nil span is a no-op.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
