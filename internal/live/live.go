// Package live ingests chat messages from external streaming platforms
// and feeds them into the event pipeline as ordinary text input.
//
// Platform adapters are collaborators: they watch a platform's chat
// feed and hand the manager a normalized ChatMessage. The manager wraps
// each accepted message as a TextInput event with a fresh session id,
// so platform chat is moderated and answered exactly like a direct
// connection — it just has no live connection to deliver the reply to
// unless a transport registers one under the same session id.
package live

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"digitalhuman/internal/config"
	"digitalhuman/internal/event"
)

// Platform identifies a chat source.
type Platform string

const (
	PlatformDouyin    Platform = "douyin"
	PlatformBilibili  Platform = "bilibili"
	PlatformYouTube   Platform = "youtube"
	PlatformWebSocket Platform = "websocket"
)

// ChatMessage is the normalized form every platform adapter produces.
type ChatMessage struct {
	Platform  Platform  `json:"platform"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Text      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	UserLevel int       `json:"user_level,omitempty"`
	VIP       bool      `json:"is_vip"`
}

// StreamConfig configures one platform listener.
type StreamConfig struct {
	Platform   Platform
	RoomID     string
	APIKey     string
	WebhookURL string
	Enabled    bool
}

// key returns the registry key for this stream.
func (c StreamConfig) key() string {
	return fmt.Sprintf("%s_%s", c.Platform, c.RoomID)
}

// Listener watches one platform chat feed.
type Listener interface {
	Start() error
	Stop()
	Running() bool
}

// ListenerFactory builds a listener for a stream. The emit callback
// delivers normalized messages to the manager.
type ListenerFactory func(cfg StreamConfig, emit func(ChatMessage)) Listener

// Publisher accepts events for routing. Satisfied by *bus.Bus.
type Publisher interface {
	Publish(evt event.Event)
}

// DefaultLanguageHint is attached to platform chat; the platforms
// served here are Chinese-language streams.
const DefaultLanguageHint = "zh-CN"

// Manager owns the platform listeners and converts their chat into
// published events.
type Manager struct {
	publisher Publisher
	logger    *slog.Logger

	mu        sync.Mutex
	factories map[Platform]ListenerFactory
	configs   map[string]StreamConfig
	listeners map[string]Listener
}

// NewManager creates a manager with no listeners.
func NewManager(publisher Publisher, logger *slog.Logger) *Manager {
	return &Manager{
		publisher: publisher,
		logger:    logger,
		factories: make(map[Platform]ListenerFactory),
		configs:   make(map[string]StreamConfig),
		listeners: make(map[string]Listener),
	}
}

// RegisterFactory installs the listener implementation for a platform.
// Platforms without a factory can still be configured; they stay
// dormant until an adapter registers.
func (m *Manager) RegisterFactory(platform Platform, factory ListenerFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[platform] = factory
}

// AddStream registers a stream and starts its listener when the stream
// is enabled and an adapter for the platform exists.
func (m *Manager) AddStream(cfg StreamConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cfg.key()
	m.configs[key] = cfg

	if !cfg.Enabled {
		return nil
	}

	factory, ok := m.factories[cfg.Platform]
	if !ok {
		if m.logger != nil {
			m.logger.Info("no adapter for platform, stream stays dormant",
				slog.String("platform", string(cfg.Platform)),
				slog.String("room_id", cfg.RoomID),
			)
		}
		return nil
	}

	listener := factory(cfg, m.Process)
	if err := listener.Start(); err != nil {
		return fmt.Errorf("start %s listener: %w", cfg.Platform, err)
	}
	m.listeners[key] = listener

	if m.logger != nil {
		m.logger.Info("stream listener started",
			slog.String("platform", string(cfg.Platform)),
			slog.String("room_id", cfg.RoomID),
		)
	}
	return nil
}

// RemoveStream stops and forgets a stream. Unknown keys are a no-op.
func (m *Manager) RemoveStream(platform Platform, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := StreamConfig{Platform: platform, RoomID: roomID}.key()
	delete(m.configs, key)
	if listener, ok := m.listeners[key]; ok {
		listener.Stop()
		delete(m.listeners, key)
	}
}

// Process publishes one normalized chat message as text input. The
// session id is freshly generated per message and the user id is
// prefixed with the platform so rate limiting applies per platform
// identity.
func (m *Manager) Process(msg ChatMessage) {
	userID := fmt.Sprintf("%s_%s", msg.Platform, msg.UserID)
	sessionID := uuid.New().String()

	if m.logger != nil {
		m.logger.Debug("platform chat received",
			slog.String("platform", string(msg.Platform)),
			slog.String("room_id", msg.RoomID),
			slog.String("user_id", userID),
		)
	}

	m.publisher.Publish(event.NewTextInput(sessionID, userID, msg.Text, DefaultLanguageHint))
}

// Close stops all listeners.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, listener := range m.listeners {
		listener.Stop()
		delete(m.listeners, key)
	}
	return nil
}

// StreamsFromConfig converts configured platform entries.
func StreamsFromConfig(platforms []config.PlatformConfig) []StreamConfig {
	out := make([]StreamConfig, 0, len(platforms))
	for _, pc := range platforms {
		out = append(out, StreamConfig{
			Platform:   Platform(pc.Platform),
			RoomID:     pc.RoomID,
			APIKey:     pc.APIKey,
			WebhookURL: pc.WebhookURL,
			Enabled:    pc.Enabled,
		})
	}
	return out
}

// ParseWebhook decodes a platform webhook payload into a ChatMessage.
// Only the message text is required; missing identity fields fall back
// to anonymous placeholders.
func ParseWebhook(platform Platform, payload []byte) (ChatMessage, error) {
	var raw struct {
		Message   string `json:"message"`
		UserID    string `json:"user_id"`
		Username  string `json:"username"`
		RoomID    string `json:"room_id"`
		UserLevel int    `json:"user_level"`
		IsVIP     bool   `json:"is_vip"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return ChatMessage{}, fmt.Errorf("parse webhook payload: %w", err)
	}
	if raw.Message == "" {
		return ChatMessage{}, fmt.Errorf("webhook payload missing message field")
	}

	if raw.UserID == "" {
		raw.UserID = "anonymous"
	}
	if raw.Username == "" {
		raw.Username = "viewer"
	}
	if raw.RoomID == "" {
		raw.RoomID = "unknown"
	}

	return ChatMessage{
		Platform:  platform,
		RoomID:    raw.RoomID,
		UserID:    raw.UserID,
		Username:  raw.Username,
		Text:      raw.Message,
		Timestamp: time.Now(),
		UserLevel: raw.UserLevel,
		VIP:       raw.IsVIP,
	}, nil
}
