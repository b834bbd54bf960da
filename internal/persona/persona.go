// Package persona implements the conversation component: one actor per
// conversational persona, holding per-session history and turning text
// input into a reply plus animation cues.
package persona

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"digitalhuman/internal/event"
	"digitalhuman/internal/observability"
)

// Publisher accepts events for routing. Satisfied by *bus.Bus.
type Publisher interface {
	Publish(evt event.Event)
}

// Responder generates a reply for one message. Implementations must
// present a single synchronous result; a real model client hides its
// network round trip behind this call and honors ctx cancellation.
type Responder interface {
	Reply(ctx context.Context, personaName, text string) (string, error)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, personaName, text string) (string, error)

// Reply implements Responder.
func (f ResponderFunc) Reply(ctx context.Context, personaName, text string) (string, error) {
	return f(ctx, personaName, text)
}

// CannedResponder echoes a fixed acknowledgement. It is the default
// responder and the fallback for development setups without a model.
func CannedResponder() Responder {
	return ResponderFunc(func(_ context.Context, personaName, text string) (string, error) {
		return fmt.Sprintf("Hello! I'm %s, and I received your message: '%s'", personaName, text), nil
	})
}

// FallbackReply is sent when reply generation fails or times out. The
// session handler never crashes on a downstream outage; the user gets
// this instead.
const FallbackReply = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

// ModelName identifies replies generated by this component.
const ModelName = "digital_human"

// Message is one history entry.
type Message struct {
	Role      string // "user" or "assistant"
	Text      string
	Timestamp time.Time
}

// session is the per-user conversation state. Owned exclusively by the
// persona actor; never shared.
type session struct {
	sessionID    string
	userID       string
	history      []Message
	lastActivity time.Time
}

// Config configures a Persona.
type Config struct {
	// Name is the persona's display name.
	Name string

	// Personality is free-form persona background, passed through to
	// responders that use it.
	Personality string

	// Responder generates replies. Nil selects CannedResponder.
	Responder Responder

	// ReplyTimeout bounds one reply generation; expiry is treated as a
	// hard failure and answered with FallbackReply.
	// Default: 10s
	ReplyTimeout time.Duration

	// MailboxSize bounds the persona mailbox.
	// Default: 256
	MailboxSize int

	// Publisher receives the responses and animation cues. Required.
	Publisher Publisher

	// Logger for conversation diagnostics. May be nil.
	Logger *slog.Logger

	// Metrics records reply metrics. Nil selects the no-op recorder.
	Metrics observability.MetricsRecorder

	// Spans traces reply generation. Nil selects the no-op manager.
	Spans observability.SpanManager
}

// Defaults for Config fields left unset.
const (
	DefaultReplyTimeout = 10 * time.Second
	DefaultMailboxSize  = 256
)

// Persona is the conversation actor.
type Persona struct {
	id     string
	config Config

	mailbox chan event.Event

	// sessions is owned exclusively by the run goroutine.
	sessions map[string]*session

	queries chan func()

	closed  atomic.Bool
	closeCh chan struct{}
	done    chan struct{}
}

// New creates a persona actor and starts its worker.
func New(config Config) *Persona {
	if config.Responder == nil {
		config.Responder = CannedResponder()
	}
	if config.ReplyTimeout <= 0 {
		config.ReplyTimeout = DefaultReplyTimeout
	}
	if config.MailboxSize <= 0 {
		config.MailboxSize = DefaultMailboxSize
	}
	if config.Metrics == nil {
		config.Metrics = observability.NoopMetrics{}
	}
	if config.Spans == nil {
		config.Spans = observability.NoopSpanManager{}
	}

	p := &Persona{
		id:       uuid.New().String(),
		config:   config,
		mailbox:  make(chan event.Event, config.MailboxSize),
		sessions: make(map[string]*session),
		queries:  make(chan func()),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

// ID returns the persona's unique id.
func (p *Persona) ID() string { return p.id }

// Name returns the persona's display name.
func (p *Persona) Name() string { return p.config.Name }

// Deliver implements the router's Target interface. It never blocks the
// router: when the mailbox is full the event is dropped with a warning.
func (p *Persona) Deliver(evt event.Event) {
	if p.closed.Load() {
		return
	}
	select {
	case p.mailbox <- evt:
	default:
		observability.LogEventDropped(p.config.Logger, evt.Type(), "persona mailbox full")
	}
}

// ActiveSessions reports the number of live sessions.
func (p *Persona) ActiveSessions() int {
	var n int
	p.query(func() { n = len(p.sessions) })
	return n
}

// History returns a copy of a session's conversation history.
func (p *Persona) History(sessionID string) []Message {
	var out []Message
	p.query(func() {
		if sess, ok := p.sessions[sessionID]; ok {
			out = make([]Message, len(sess.history))
			copy(out, sess.history)
		}
	})
	return out
}

// query runs fn on the actor goroutine and waits for it.
func (p *Persona) query(fn func()) {
	reply := make(chan struct{})
	wrapped := func() {
		fn()
		close(reply)
	}
	select {
	case p.queries <- wrapped:
		<-reply
	case <-p.done:
	}
}

// Close stops the worker. Events still queued are discarded.
func (p *Persona) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}
	close(p.closeCh)
	<-p.done
	return nil
}

func (p *Persona) run() {
	defer close(p.done)
	for {
		select {
		case evt := <-p.mailbox:
			p.handle(evt)
		case fn := <-p.queries:
			fn()
		case <-p.closeCh:
			return
		}
	}
}

func (p *Persona) handle(evt event.Event) {
	switch e := evt.(type) {
	case event.UserConnected:
		p.createSession(e.SessionID, e.UserID)
	case event.UserDisconnected:
		p.removeSession(e.SessionID)
	case event.TextInput:
		p.handleText(e)
	case event.AudioInput:
		// Extension point: a speech-to-text stage would transcribe and
		// re-enter the TextInput path.
		if p.config.Logger != nil {
			p.config.Logger.Debug("audio input not handled",
				slog.String("session_id", e.Meta.SessionID),
				slog.Int("bytes", len(e.Data)),
			)
		}
	default:
		observability.LogEventDropped(p.config.Logger, evt.Type(), "not a conversation event")
	}
}

func (p *Persona) createSession(sessionID, userID string) {
	p.sessions[sessionID] = &session{
		sessionID:    sessionID,
		userID:       userID,
		lastActivity: time.Now(),
	}
	if p.config.Logger != nil {
		p.config.Logger.Info("session created",
			slog.String("session_id", sessionID),
			slog.String("user_id", userID),
		)
	}
}

func (p *Persona) removeSession(sessionID string) {
	sess, ok := p.sessions[sessionID]
	if !ok {
		return
	}
	delete(p.sessions, sessionID)
	if p.config.Logger != nil {
		p.config.Logger.Info("session removed",
			slog.String("session_id", sessionID),
			slog.String("user_id", sess.userID),
		)
	}
}

// appendHistory records a history entry if the session exists. Input
// from sessionless sources (live-platform messages) still gets a reply;
// it just leaves no history behind.
func (p *Persona) appendHistory(sessionID, role, text string) {
	sess, ok := p.sessions[sessionID]
	if !ok {
		return
	}
	sess.history = append(sess.history, Message{
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	})
	sess.lastActivity = time.Now()
}

func (p *Persona) handleText(e event.TextInput) {
	p.appendHistory(e.Meta.SessionID, "user", e.Text)

	reply := p.generateReply(e)

	p.appendHistory(e.Meta.SessionID, "assistant", reply)

	p.config.Publisher.Publish(event.NewLLMResponse(e.Meta, reply, ModelName, 0))
	p.config.Publisher.Publish(p.gestureFor(reply, e.Meta))
	p.config.Publisher.Publish(p.expressionFor(reply, e.Meta))
}

// generateReply invokes the responder with a bounded timeout. Errors and
// timeouts degrade to FallbackReply; they never escalate past here.
func (p *Persona) generateReply(e event.TextInput) string {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.ReplyTimeout)
	defer cancel()

	ctx, span := p.config.Spans.StartReplySpan(ctx, p.config.Name, e.Meta.SessionID)
	done := observability.TimedOperation()

	reply, err := p.config.Responder.Reply(ctx, p.config.Name, e.Text)

	p.config.Metrics.RecordReply(ctx, done(), err)
	p.config.Spans.EndSpanWithError(span, err)

	if err != nil {
		if p.config.Logger != nil {
			p.config.Logger.Warn("reply generation failed",
				slog.String("session_id", e.Meta.SessionID),
				slog.String("error", err.Error()),
			)
		}
		return FallbackReply
	}
	return reply
}

// gestureFor selects a body animation from the reply text.
func (p *Persona) gestureFor(reply string, cause event.Envelope) event.Animation {
	kind := "talk"
	switch {
	case strings.Contains(reply, "Hello") || strings.Contains(reply, "Hi"):
		kind = "wave"
	case strings.Contains(reply, "?"):
		kind = "thinking"
	}

	return event.NewAnimation(cause, kind, 2.0, map[string]any{
		"intensity": 0.8,
		"loop":      false,
	})
}

// expressionFor selects a facial expression from the reply text.
func (p *Persona) expressionFor(reply string, cause event.Envelope) event.Animation {
	emotion := "friendly"
	switch {
	case strings.Contains(reply, "!"):
		emotion = "excited"
	case strings.Contains(reply, "?"):
		emotion = "curious"
	}

	return event.NewAnimation(cause, "expression_"+emotion, 3.0, map[string]any{
		"emotion":  emotion,
		"strength": 0.7,
	})
}
