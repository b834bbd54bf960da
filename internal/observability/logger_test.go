package observability

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, &buf
}

func TestEnrichLogger(t *testing.T) {
	logger, buf := testLogger()

	enriched := EnrichLogger(logger, "s-1", "u-1")
	require.NotNil(t, enriched)
	enriched.Info("hello")

	out := buf.String()
	assert.Contains(t, out, "session_id=s-1")
	assert.Contains(t, out, "user_id=u-1")
}

func TestEnrichLoggerNil(t *testing.T) {
	assert.Nil(t, EnrichLogger(nil, "s-1", "u-1"))
}

func TestLogEventDropped(t *testing.T) {
	logger, buf := testLogger()

	LogEventDropped(logger, "text_input", "mailbox full")

	out := buf.String()
	assert.Contains(t, out, "event dropped")
	assert.Contains(t, out, "event_type=text_input")
	assert.Contains(t, out, `reason="mailbox full"`)

	assert.NotPanics(t, func() { LogEventDropped(nil, "text_input", "mailbox full") })
}

func TestLogRoutingMiss(t *testing.T) {
	logger, buf := testLogger()

	LogRoutingMiss(logger, "llm_response", "gateway")

	out := buf.String()
	assert.Contains(t, out, "no target for event")
	assert.Contains(t, out, "target=gateway")
	assert.True(t, strings.Contains(out, "level=DEBUG"), "routing misses are debug-level")

	assert.NotPanics(t, func() { LogRoutingMiss(nil, "llm_response", "gateway") })
}

func TestLogDelivery(t *testing.T) {
	logger, buf := testLogger()

	LogDelivery(logger, "animation", "s-1")

	out := buf.String()
	assert.Contains(t, out, "event delivered")
	assert.Contains(t, out, "session_id=s-1")

	assert.NotPanics(t, func() { LogDelivery(nil, "animation", "s-1") })
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(5 * time.Millisecond)
	elapsed := done()

	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
}
