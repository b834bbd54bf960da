// Package event defines the typed events exchanged between the router,
// the connection gateway, and the conversation component.
//
// The event set is closed: every event is one of the concrete structs in
// this package, and consumers dispatch with an exhaustive type switch
// rather than runtime downcasting. Events are immutable once constructed;
// constructors copy any slice or map payloads so a published event is
// safe to read from multiple goroutines.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Event type discriminators. These appear as the "type" field on the
// wire and as metric/log attributes.
const (
	TypeUserConnected    = "user_connected"
	TypeUserDisconnected = "user_disconnected"
	TypeTextInput        = "text_input"
	TypeAudioInput       = "audio_input"
	TypeLLMResponse      = "llm_response"
	TypeTTSResponse      = "tts_response"
	TypeAnimation        = "animation"
)

// Envelope carries the metadata attached to every event. SessionID and
// UserID are optional; an empty string means "not tied to a session/user".
type Envelope struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
}

// NewEnvelope stamps a fresh envelope with a unique id and the current
// time. sessionID and userID may be empty.
func NewEnvelope(sessionID, userID string) Envelope {
	return Envelope{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		SessionID: sessionID,
		UserID:    userID,
	}
}

// Derive creates an envelope for an event caused by this one: the
// session and user references are preserved, the id and timestamp are
// always fresh.
func (e Envelope) Derive() Envelope {
	return NewEnvelope(e.SessionID, e.UserID)
}

// Event is implemented by every concrete event struct.
type Event interface {
	// Type returns the event type discriminator.
	Type() string

	// Envelope returns the event metadata.
	Envelope() Envelope
}

// UserConnected signals that a connection opened and a session was
// created for it.
type UserConnected struct {
	Meta      Envelope `json:"envelope"`
	SessionID string   `json:"session_id"`
	UserID    string   `json:"user_id"`
}

// NewUserConnected creates a UserConnected event with a fresh envelope.
func NewUserConnected(sessionID, userID string) UserConnected {
	return UserConnected{
		Meta:      NewEnvelope(sessionID, userID),
		SessionID: sessionID,
		UserID:    userID,
	}
}

// Type implements Event.
func (e UserConnected) Type() string { return TypeUserConnected }

// Envelope implements Event.
func (e UserConnected) Envelope() Envelope { return e.Meta }

// UserDisconnected signals that a connection closed and its session
// should be torn down.
type UserDisconnected struct {
	Meta      Envelope `json:"envelope"`
	SessionID string   `json:"session_id"`
	UserID    string   `json:"user_id"`
}

// NewUserDisconnected creates a UserDisconnected event with a fresh envelope.
func NewUserDisconnected(sessionID, userID string) UserDisconnected {
	return UserDisconnected{
		Meta:      NewEnvelope(sessionID, userID),
		SessionID: sessionID,
		UserID:    userID,
	}
}

// Type implements Event.
func (e UserDisconnected) Type() string { return TypeUserDisconnected }

// Envelope implements Event.
func (e UserDisconnected) Envelope() Envelope { return e.Meta }

// TextInput is a user text message entering the system.
type TextInput struct {
	Meta     Envelope `json:"envelope"`
	Text     string   `json:"text"`
	Language string   `json:"language,omitempty"`
}

// NewTextInput creates a TextInput event with a fresh envelope.
func NewTextInput(sessionID, userID, text, language string) TextInput {
	return TextInput{
		Meta:     NewEnvelope(sessionID, userID),
		Text:     text,
		Language: language,
	}
}

// Type implements Event.
func (e TextInput) Type() string { return TypeTextInput }

// Envelope implements Event.
func (e TextInput) Envelope() Envelope { return e.Meta }

// AudioInput is raw user audio. The core accepts it as an extension
// point; transcription re-enters the system as TextInput.
type AudioInput struct {
	Meta       Envelope `json:"envelope"`
	Data       []byte   `json:"data"`
	Format     string   `json:"format"`
	SampleRate int      `json:"sample_rate"`
}

// NewAudioInput creates an AudioInput event. The audio bytes are copied.
func NewAudioInput(sessionID, userID string, data []byte, format string, sampleRate int) AudioInput {
	buf := make([]byte, len(data))
	copy(buf, data)
	return AudioInput{
		Meta:       NewEnvelope(sessionID, userID),
		Data:       buf,
		Format:     format,
		SampleRate: sampleRate,
	}
}

// Type implements Event.
func (e AudioInput) Type() string { return TypeAudioInput }

// Envelope implements Event.
func (e AudioInput) Envelope() Envelope { return e.Meta }

// LLMResponse is a synthesized text reply addressed to one session.
type LLMResponse struct {
	Meta       Envelope `json:"envelope"`
	Text       string   `json:"text"`
	Model      string   `json:"model"`
	TokensUsed int      `json:"tokens_used,omitempty"`
}

// NewLLMResponse creates an LLMResponse derived from a causing event's
// envelope: same session and user, fresh id and timestamp.
func NewLLMResponse(cause Envelope, text, model string, tokensUsed int) LLMResponse {
	return LLMResponse{
		Meta:       cause.Derive(),
		Text:       text,
		Model:      model,
		TokensUsed: tokensUsed,
	}
}

// Type implements Event.
func (e LLMResponse) Type() string { return TypeLLMResponse }

// Envelope implements Event.
func (e LLMResponse) Envelope() Envelope { return e.Meta }

// TTSResponse carries synthesized speech for one session.
type TTSResponse struct {
	Meta  Envelope `json:"envelope"`
	Audio []byte   `json:"audio"`
	Text  string   `json:"text"`
	Voice string   `json:"voice"`
}

// NewTTSResponse creates a TTSResponse derived from a causing event's
// envelope. The audio bytes are copied.
func NewTTSResponse(cause Envelope, audio []byte, text, voice string) TTSResponse {
	buf := make([]byte, len(audio))
	copy(buf, audio)
	return TTSResponse{
		Meta:  cause.Derive(),
		Audio: buf,
		Text:  text,
		Voice: voice,
	}
}

// Type implements Event.
func (e TTSResponse) Type() string { return TypeTTSResponse }

// Envelope implements Event.
func (e TTSResponse) Envelope() Envelope { return e.Meta }

// Animation is an animation or expression cue for the rendered persona.
type Animation struct {
	Meta     Envelope       `json:"envelope"`
	Kind     string         `json:"kind"`
	Duration float64        `json:"duration,omitempty"`
	Params   map[string]any `json:"parameters,omitempty"`
}

// NewAnimation creates an Animation derived from a causing event's
// envelope. The parameter map is copied.
func NewAnimation(cause Envelope, kind string, duration float64, params map[string]any) Animation {
	var p map[string]any
	if params != nil {
		p = make(map[string]any, len(params))
		for k, v := range params {
			p[k] = v
		}
	}
	return Animation{
		Meta:     cause.Derive(),
		Kind:     kind,
		Duration: duration,
		Params:   p,
	}
}

// Type implements Event.
func (e Animation) Type() string { return TypeAnimation }

// Envelope implements Event.
func (e Animation) Envelope() Envelope { return e.Meta }
