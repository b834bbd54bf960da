// Package observability provides structured logging, metrics, and
// tracing for the event pipeline.
//
// Logging uses log/slog. Metrics and tracing use OpenTelemetry through
// small interfaces with no-op implementations, so both are opt-in and
// free when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger returns a logger carrying session and user context.
// A nil logger stays nil.
func EnrichLogger(logger *slog.Logger, sessionID, userID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("session_id", sessionID),
		slog.String("user_id", userID),
	)
}

// LogEventDropped logs an event discarded before delivery.
func LogEventDropped(logger *slog.Logger, eventType, reason string) {
	if logger == nil {
		return
	}
	logger.Warn("event dropped",
		slog.String("event_type", eventType),
		slog.String("reason", reason),
	)
}

// LogRoutingMiss logs a benign routing miss: an unregistered target or
// a session gone at delivery time.
func LogRoutingMiss(logger *slog.Logger, eventType, target string) {
	if logger == nil {
		return
	}
	logger.Debug("no target for event",
		slog.String("event_type", eventType),
		slog.String("target", target),
	)
}

// LogDelivery logs a completed outbound handoff.
func LogDelivery(logger *slog.Logger, eventType, sessionID string) {
	if logger == nil {
		return
	}
	logger.Debug("event delivered",
		slog.String("event_type", eventType),
		slog.String("session_id", sessionID),
	)
}

// TimedOperation measures the duration of an operation. The returned
// function yields the elapsed time.
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}
