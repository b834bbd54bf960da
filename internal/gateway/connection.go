package gateway

import (
	"log/slog"
	"time"

	"digitalhuman/internal/observability"
)

// connection is the registry's view of one live transport link. The
// outbound queue is written only by the gateway actor and drained only
// by the connection's writer goroutine.
type connection struct {
	sessionID string
	userID    string
	sink      Sink

	out  chan []byte
	done chan struct{}

	logger *slog.Logger
}

func newConnection(sessionID, userID string, sink Sink, cfg Config) *connection {
	c := &connection{
		sessionID: sessionID,
		userID:    userID,
		sink:      sink,
		out:       make(chan []byte, cfg.OutboundQueueSize),
		done:      make(chan struct{}),
		logger:    observability.EnrichLogger(cfg.Logger, sessionID, userID),
	}
	go c.write()
	return c
}

// enqueue hands a payload to the writer. When the queue is full the
// oldest pending payload is discarded to make room, so the newest
// responses survive a slow client. Returns true if anything was dropped.
//
// Only the gateway actor calls enqueue, so the drop-then-send sequence
// cannot race with another producer.
func (c *connection) enqueue(payload []byte) bool {
	select {
	case c.out <- payload:
		return false
	default:
	}

	select {
	case <-c.out:
	default:
	}

	select {
	case c.out <- payload:
		return true
	default:
		// Writer stopped; the payload is lost along with the oldest.
		return true
	}
}

// write drains the outbound queue in order. Writes for a torn-down
// connection are dropped, never retried.
func (c *connection) write() {
	for {
		select {
		case payload := <-c.out:
			if err := c.sink.Send(payload); err != nil {
				if c.logger != nil {
					c.logger.Warn("outbound write failed",
						slog.String("error", err.Error()),
					)
				}
			}
		case <-c.done:
			if err := c.sink.Close(); err != nil && c.logger != nil {
				c.logger.Debug("sink close failed",
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

// teardown stops the writer. Queued payloads are discarded.
func (c *connection) teardown() {
	close(c.done)
}

// wireMessage is the serialized response envelope handed to transports.
type wireMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type wireLLMResponse struct {
	Text       string    `json:"text"`
	Model      string    `json:"model"`
	TokensUsed int       `json:"tokens_used,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type wireTTSResponse struct {
	Text      string    `json:"text"`
	Voice     string    `json:"voice"`
	Audio     []byte    `json:"audio"`
	Timestamp time.Time `json:"timestamp"`
}

type wireAnimation struct {
	Kind       string         `json:"kind"`
	Duration   float64        `json:"duration,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
