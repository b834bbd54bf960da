// Package gateway tracks live connections and fans response events out
// to the one connection matching their session id.
//
// The gateway is a single-goroutine actor owning the session map. Each
// connection additionally owns a dedicated writer goroutine draining a
// bounded outbound queue, so writes to one transport link are strictly
// ordered and never interleaved with another connection's writes. The
// transport layer supplies a Sink per connection and calls the exported
// lifecycle operations; it never interprets event semantics.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"digitalhuman/internal/event"
	"digitalhuman/internal/observability"
)

// Publisher accepts events for routing. Satisfied by *bus.Bus.
type Publisher interface {
	Publish(evt event.Event)
}

// Sink is the transport-owned write side of one connection. Send may
// block on network I/O; it is only ever called from the connection's
// writer goroutine.
type Sink interface {
	Send(data []byte) error
	Close() error
}

// Config configures the gateway.
type Config struct {
	// MailboxSize bounds the gateway mailbox.
	// Default: 256
	MailboxSize int

	// OutboundQueueSize bounds each connection's outbound queue. When
	// the queue is full the oldest pending write is dropped with a
	// warning, so a slow client cannot grow memory without bound.
	// Default: 64
	OutboundQueueSize int

	// Publisher receives the UserConnected/UserDisconnected/TextInput
	// events the gateway produces. Required.
	Publisher Publisher

	// Logger for delivery diagnostics. May be nil.
	Logger *slog.Logger

	// Metrics records delivery metrics. Nil selects the no-op recorder.
	Metrics observability.MetricsRecorder
}

// Defaults for Config fields that are not positive.
const (
	DefaultMailboxSize       = 256
	DefaultOutboundQueueSize = 64
)

// Gateway is the connection registry actor.
type Gateway struct {
	config Config

	mailbox chan message

	// connections is owned exclusively by the run goroutine.
	connections map[string]*connection

	closed  atomic.Bool
	closeCh chan struct{}
	done    chan struct{}
}

// Internal actor messages.
type message interface{ isMessage() }

type msgOpen struct {
	sessionID string
	userID    string
	sink      Sink
}

type msgClose struct {
	sessionID string
}

type msgInbound struct {
	sessionID string
	userID    string
	raw       string
}

type msgEvent struct {
	evt event.Event
}

type msgCount struct {
	reply chan int
}

func (msgOpen) isMessage()    {}
func (msgClose) isMessage()   {}
func (msgInbound) isMessage() {}
func (msgEvent) isMessage()   {}
func (msgCount) isMessage()   {}

// New creates a gateway and starts its worker.
func New(config Config) *Gateway {
	if config.MailboxSize <= 0 {
		config.MailboxSize = DefaultMailboxSize
	}
	if config.OutboundQueueSize <= 0 {
		config.OutboundQueueSize = DefaultOutboundQueueSize
	}
	if config.Metrics == nil {
		config.Metrics = observability.NoopMetrics{}
	}

	g := &Gateway{
		config:      config,
		mailbox:     make(chan message, config.MailboxSize),
		connections: make(map[string]*connection),
		closeCh:     make(chan struct{}),
		done:        make(chan struct{}),
	}
	go g.run()
	return g
}

// ConnectionOpened registers a new connection and announces the user.
func (g *Gateway) ConnectionOpened(sessionID, userID string, sink Sink) {
	g.send(msgOpen{sessionID: sessionID, userID: userID, sink: sink})
}

// ConnectionClosed removes a connection. It is a no-op for unknown
// session ids.
func (g *Gateway) ConnectionClosed(sessionID string) {
	g.send(msgClose{sessionID: sessionID})
}

// InboundText processes raw text received on a connection. Clients may
// send either plain chat text or a structured JSON control message over
// the same channel; both paths end as published events.
func (g *Gateway) InboundText(sessionID, userID, raw string) {
	g.send(msgInbound{sessionID: sessionID, userID: userID, raw: raw})
}

// Deliver implements the router's Target interface for response events.
// It never blocks the router: when the gateway mailbox is full the
// event is dropped with a warning.
func (g *Gateway) Deliver(evt event.Event) {
	if g.closed.Load() {
		return
	}
	select {
	case g.mailbox <- msgEvent{evt: evt}:
	default:
		observability.LogEventDropped(g.config.Logger, evt.Type(), "gateway mailbox full")
		g.config.Metrics.RecordDelivery(context.Background(), evt.Type(), true)
	}
}

// ActiveConnections reports the number of live connections.
func (g *Gateway) ActiveConnections() int {
	reply := make(chan int, 1)
	g.send(msgCount{reply: reply})
	select {
	case n := <-reply:
		return n
	case <-g.done:
		return 0
	}
}

// Close tears down all connections and stops the worker.
func (g *Gateway) Close() error {
	if !g.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}
	close(g.closeCh)
	<-g.done
	return nil
}

func (g *Gateway) send(msg message) {
	if g.closed.Load() {
		return
	}
	select {
	case g.mailbox <- msg:
	case <-g.closeCh:
	}
}

func (g *Gateway) run() {
	defer close(g.done)
	for {
		select {
		case msg := <-g.mailbox:
			g.handle(msg)
		case <-g.closeCh:
			for id, conn := range g.connections {
				conn.teardown()
				delete(g.connections, id)
			}
			return
		}
	}
}

func (g *Gateway) handle(msg message) {
	switch m := msg.(type) {
	case msgOpen:
		g.handleOpen(m)
	case msgClose:
		g.handleClose(m)
	case msgInbound:
		g.handleInbound(m)
	case msgEvent:
		g.handleEvent(m.evt)
	case msgCount:
		m.reply <- len(g.connections)
	}
}

func (g *Gateway) handleOpen(m msgOpen) {
	if old, ok := g.connections[m.sessionID]; ok {
		// Reopened session id: replace the stale link.
		old.teardown()
	}
	g.connections[m.sessionID] = newConnection(m.sessionID, m.userID, m.sink, g.config)

	if g.config.Logger != nil {
		g.config.Logger.Info("connection opened",
			slog.String("session_id", m.sessionID),
			slog.String("user_id", m.userID),
		)
	}
	g.config.Publisher.Publish(event.NewUserConnected(m.sessionID, m.userID))
}

func (g *Gateway) handleClose(m msgClose) {
	conn, ok := g.connections[m.sessionID]
	if !ok {
		return
	}
	delete(g.connections, m.sessionID)
	conn.teardown()

	if g.config.Logger != nil {
		g.config.Logger.Info("connection closed",
			slog.String("session_id", m.sessionID),
			slog.String("user_id", conn.userID),
		)
	}
	g.config.Publisher.Publish(event.NewUserDisconnected(m.sessionID, conn.userID))
}

// inboundControl is the structured form clients may send instead of
// plain text.
type inboundControl struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

func (g *Gateway) handleInbound(m msgInbound) {
	var ctrl inboundControl
	if err := json.Unmarshal([]byte(m.raw), &ctrl); err == nil && ctrl.Type != "" {
		switch ctrl.Type {
		case event.TypeTextInput:
			g.config.Publisher.Publish(event.NewTextInput(m.sessionID, m.userID, ctrl.Content, ctrl.Language))
		default:
			if g.config.Logger != nil {
				g.config.Logger.Info("unknown inbound message type",
					slog.String("type", ctrl.Type),
					slog.String("session_id", m.sessionID),
				)
			}
		}
		return
	}

	// Not a structured message: the raw text is the chat input.
	g.config.Publisher.Publish(event.NewTextInput(m.sessionID, m.userID, m.raw, ""))
}

func (g *Gateway) handleEvent(evt event.Event) {
	switch e := evt.(type) {
	case event.LLMResponse:
		g.deliver(e, e.Meta, wireLLMResponse{
			Text:       e.Text,
			Model:      e.Model,
			TokensUsed: e.TokensUsed,
			Timestamp:  e.Meta.Timestamp,
		})
	case event.TTSResponse:
		g.deliver(e, e.Meta, wireTTSResponse{
			Text:      e.Text,
			Voice:     e.Voice,
			Audio:     e.Audio,
			Timestamp: e.Meta.Timestamp,
		})
	case event.Animation:
		g.deliver(e, e.Meta, wireAnimation{
			Kind:       e.Kind,
			Duration:   e.Duration,
			Parameters: e.Params,
			Timestamp:  e.Meta.Timestamp,
		})
	default:
		observability.LogEventDropped(g.config.Logger, evt.Type(), "not a response event")
	}
}

func (g *Gateway) deliver(evt event.Event, env event.Envelope, data any) {
	conn, ok := g.connections[env.SessionID]
	if !ok {
		// The session closed mid-flight. Expected race, not an error.
		observability.LogRoutingMiss(g.config.Logger, evt.Type(), "connection")
		g.config.Metrics.RecordDelivery(context.Background(), evt.Type(), true)
		return
	}

	payload, err := json.Marshal(wireMessage{Type: evt.Type(), Data: data})
	if err != nil {
		observability.LogEventDropped(g.config.Logger, evt.Type(), "serialization failed")
		g.config.Metrics.RecordDelivery(context.Background(), evt.Type(), true)
		return
	}

	dropped := conn.enqueue(payload)
	if dropped && g.config.Logger != nil {
		g.config.Logger.Warn("outbound queue full, dropped oldest write",
			slog.String("session_id", conn.sessionID),
		)
	}
	g.config.Metrics.RecordDelivery(context.Background(), evt.Type(), false)
	observability.LogDelivery(g.config.Logger, evt.Type(), conn.sessionID)
}
