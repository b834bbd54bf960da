// Package bus implements the central event router.
//
// The router is a single-goroutine actor: Publish enqueues onto a
// bounded FIFO mailbox and returns immediately; one worker drains the
// mailbox and dispatches each event to the registered targets by an
// exhaustive match over the event variants. State is only touched from
// the worker, so no event ever observes a half-applied routing change.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"digitalhuman/internal/audit"
	"digitalhuman/internal/event"
	"digitalhuman/internal/observability"
	"digitalhuman/internal/validate"
)

// Target receives events forwarded by the router. Deliver must not
// block; targets are expected to enqueue onto their own mailbox.
type Target interface {
	Deliver(evt event.Event)
}

// TargetFunc adapts a function to the Target interface.
type TargetFunc func(evt event.Event)

// Deliver implements Target.
func (f TargetFunc) Deliver(evt event.Event) { f(evt) }

// Config configures router behavior.
type Config struct {
	// MailboxSize bounds the router mailbox.
	// Default: 256
	MailboxSize int

	// Validator moderates TextInput events. A nil validator allows
	// all text.
	Validator *validate.Validator

	// Audit optionally records moderation decisions. Record failures
	// are logged, never escalated.
	Audit audit.Store

	// Logger for routing diagnostics. May be nil.
	Logger *slog.Logger

	// Metrics records pipeline metrics. Nil selects the no-op recorder.
	Metrics observability.MetricsRecorder

	// Spans traces event dispatch. Nil selects the no-op manager.
	Spans observability.SpanManager

	// OnDrop is called when the mailbox is full and an event is discarded.
	OnDrop func(evt event.Event)
}

// DefaultMailboxSize is used when Config.MailboxSize is not positive.
const DefaultMailboxSize = 256

// Bus routes events between the conversation component and the
// connection gateway.
type Bus struct {
	config Config

	mailbox chan event.Event

	mu           sync.RWMutex
	conversation Target
	gateway      Target

	closed  atomic.Bool
	closeCh chan struct{}
	done    chan struct{}
}

// New creates a router and starts its worker.
func New(config Config) *Bus {
	if config.MailboxSize <= 0 {
		config.MailboxSize = DefaultMailboxSize
	}
	if config.Metrics == nil {
		config.Metrics = observability.NoopMetrics{}
	}
	if config.Spans == nil {
		config.Spans = observability.NoopSpanManager{}
	}

	b := &Bus{
		config:  config,
		mailbox: make(chan event.Event, config.MailboxSize),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

// RegisterConversation sets the conversation target. Idempotent and
// callable at any time; the last registration wins.
func (b *Bus) RegisterConversation(t Target) {
	b.mu.Lock()
	b.conversation = t
	b.mu.Unlock()
	if b.config.Logger != nil {
		b.config.Logger.Info("registered conversation target")
	}
}

// RegisterGateway sets the connection registry target. Idempotent and
// callable at any time; the last registration wins.
func (b *Bus) RegisterGateway(t Target) {
	b.mu.Lock()
	b.gateway = t
	b.mu.Unlock()
	if b.config.Logger != nil {
		b.config.Logger.Info("registered gateway target")
	}
}

// Publish enqueues an event for routing. It never blocks: when the
// mailbox is full or the bus is closed the event is dropped with a
// warning. There is at most one delivery attempt per registered target.
func (b *Bus) Publish(evt event.Event) {
	if b.closed.Load() {
		observability.LogEventDropped(b.config.Logger, evt.Type(), "bus closed")
		return
	}

	select {
	case b.mailbox <- evt:
		b.config.Metrics.RecordPublish(context.Background(), evt.Type())
	default:
		observability.LogEventDropped(b.config.Logger, evt.Type(), "mailbox full")
		if b.config.OnDrop != nil {
			b.config.OnDrop(evt)
		}
	}
}

// Close stops the worker. Events still queued are discarded.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}
	close(b.closeCh)
	<-b.done
	return nil
}

func (b *Bus) run() {
	defer close(b.done)
	for {
		select {
		case evt := <-b.mailbox:
			b.dispatch(evt)
		case <-b.closeCh:
			return
		}
	}
}

// dispatch applies the fixed routing table. The match over event
// variants is exhaustive; adding an event type without a route is a
// compile-time reminder here, not a runtime cast failure.
func (b *Bus) dispatch(evt event.Event) {
	ctx, span := b.config.Spans.StartDispatchSpan(context.Background(), evt.Type(), evt.Envelope().SessionID)
	defer b.config.Spans.EndSpanWithError(span, nil)

	switch e := evt.(type) {
	case event.UserConnected:
		b.deliverConversation(e)
	case event.UserDisconnected:
		b.deliverConversation(e)
	case event.AudioInput:
		b.deliverConversation(e)
	case event.TextInput:
		b.routeText(ctx, e)
	case event.LLMResponse:
		b.deliverGateway(e)
	case event.TTSResponse:
		b.deliverGateway(e)
	case event.Animation:
		b.deliverGateway(e)
	default:
		observability.LogEventDropped(b.config.Logger, evt.Type(), "unroutable event variant")
	}
}

// routeText moderates a text event before forwarding. Allow goes to the
// conversation target; Ignore vanishes; Warn is answered with a
// synthesized system response sent straight to the gateway.
func (b *Bus) routeText(ctx context.Context, e event.TextInput) {
	if b.config.Validator == nil {
		b.deliverConversation(e)
		return
	}

	done := observability.TimedOperation()
	res := b.config.Validator.Validate(e.Text, e.Meta.UserID)
	b.config.Metrics.RecordValidation(ctx, res.Outcome.String(), done())
	b.recordDecision(ctx, e, res)

	switch res.Outcome {
	case validate.Allow:
		b.deliverConversation(e)
	case validate.Ignore:
		if b.config.Logger != nil {
			b.config.Logger.Debug("text input ignored by validation",
				slog.String("session_id", e.Meta.SessionID),
				slog.String("user_id", e.Meta.UserID),
			)
		}
	case validate.Warn:
		warning := event.NewLLMResponse(e.Meta, "⚠️ "+res.Message, "validation_system", 0)
		b.deliverGateway(warning)
	}
}

func (b *Bus) recordDecision(ctx context.Context, e event.TextInput, res validate.Result) {
	if b.config.Audit == nil {
		return
	}
	d := audit.Decision{
		EventID:   e.Meta.ID,
		SessionID: e.Meta.SessionID,
		UserID:    e.Meta.UserID,
		Text:      e.Text,
		Outcome:   res.Outcome.String(),
		Reason:    res.Message,
		Timestamp: e.Meta.Timestamp,
	}
	if err := b.config.Audit.Record(ctx, d); err != nil && b.config.Logger != nil {
		b.config.Logger.Warn("audit record failed",
			slog.String("event_id", d.EventID),
			slog.String("error", err.Error()),
		)
	}
}

func (b *Bus) deliverConversation(evt event.Event) {
	b.mu.RLock()
	t := b.conversation
	b.mu.RUnlock()

	if t == nil {
		// Benign race: published before registration.
		observability.LogRoutingMiss(b.config.Logger, evt.Type(), "conversation")
		return
	}
	t.Deliver(evt)
}

func (b *Bus) deliverGateway(evt event.Event) {
	b.mu.RLock()
	t := b.gateway
	b.mu.RUnlock()

	if t == nil {
		observability.LogRoutingMiss(b.config.Logger, evt.Type(), "gateway")
		return
	}
	t.Deliver(evt)
}
