package live_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digitalhuman/internal/config"
	"digitalhuman/internal/event"
	"digitalhuman/internal/live"
)

// fakePublisher collects published events.
type fakePublisher struct {
	events chan event.Event
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{events: make(chan event.Event, 64)}
}

func (p *fakePublisher) Publish(evt event.Event) { p.events <- evt }

func (p *fakePublisher) next(t *testing.T) event.Event {
	t.Helper()
	select {
	case evt := <-p.events:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
		return nil
	}
}

// fakeListener records lifecycle calls.
type fakeListener struct {
	running  bool
	startErr error
	emit     func(live.ChatMessage)
}

func (l *fakeListener) Start() error {
	if l.startErr != nil {
		return l.startErr
	}
	l.running = true
	return nil
}

func (l *fakeListener) Stop()         { l.running = false }
func (l *fakeListener) Running() bool { return l.running }

func TestProcessWrapsChatAsTextInput(t *testing.T) {
	pub := newFakePublisher()
	m := live.NewManager(pub, nil)
	defer m.Close()

	m.Process(live.ChatMessage{
		Platform: live.PlatformDouyin,
		RoomID:   "room-1",
		UserID:   "viewer-42",
		Username: "fan",
		Text:     "主播好",
	})

	text, ok := pub.next(t).(event.TextInput)
	require.True(t, ok)
	assert.Equal(t, "主播好", text.Text)
	assert.Equal(t, "douyin_viewer-42", text.Meta.UserID, "platform identity prefixes the user id")
	assert.NotEmpty(t, text.Meta.SessionID)
	assert.Equal(t, live.DefaultLanguageHint, text.Language)

	// Each message gets a fresh session id.
	m.Process(live.ChatMessage{Platform: live.PlatformDouyin, UserID: "viewer-42", Text: "again"})
	second := pub.next(t).(event.TextInput)
	assert.NotEqual(t, text.Meta.SessionID, second.Meta.SessionID)
	assert.Equal(t, text.Meta.UserID, second.Meta.UserID)
}

func TestAddStreamStartsListener(t *testing.T) {
	pub := newFakePublisher()
	m := live.NewManager(pub, nil)
	defer m.Close()

	listener := &fakeListener{}
	m.RegisterFactory(live.PlatformBilibili, func(cfg live.StreamConfig, emit func(live.ChatMessage)) live.Listener {
		listener.emit = emit
		return listener
	})

	require.NoError(t, m.AddStream(live.StreamConfig{
		Platform: live.PlatformBilibili,
		RoomID:   "12345",
		Enabled:  true,
	}))
	assert.True(t, listener.Running())

	// Messages emitted by the listener flow into the pipeline.
	listener.emit(live.ChatMessage{Platform: live.PlatformBilibili, UserID: "u9", Text: "hello"})
	text := pub.next(t).(event.TextInput)
	assert.Equal(t, "hello", text.Text)
	assert.Equal(t, "bilibili_u9", text.Meta.UserID)

	m.RemoveStream(live.PlatformBilibili, "12345")
	assert.False(t, listener.Running())
}

func TestAddStreamWithoutFactoryStaysDormant(t *testing.T) {
	m := live.NewManager(newFakePublisher(), nil)
	defer m.Close()

	require.NoError(t, m.AddStream(live.StreamConfig{
		Platform: live.PlatformYouTube,
		RoomID:   "chan-1",
		Enabled:  true,
	}))
}

func TestAddStreamDisabledDoesNotStart(t *testing.T) {
	m := live.NewManager(newFakePublisher(), nil)
	defer m.Close()

	listener := &fakeListener{}
	m.RegisterFactory(live.PlatformDouyin, func(live.StreamConfig, func(live.ChatMessage)) live.Listener {
		return listener
	})

	require.NoError(t, m.AddStream(live.StreamConfig{
		Platform: live.PlatformDouyin,
		RoomID:   "r1",
		Enabled:  false,
	}))
	assert.False(t, listener.Running())
}

func TestAddStreamStartFailure(t *testing.T) {
	m := live.NewManager(newFakePublisher(), nil)
	defer m.Close()

	m.RegisterFactory(live.PlatformDouyin, func(live.StreamConfig, func(live.ChatMessage)) live.Listener {
		return &fakeListener{startErr: errors.New("connect refused")}
	})

	err := m.AddStream(live.StreamConfig{Platform: live.PlatformDouyin, RoomID: "r1", Enabled: true})
	assert.ErrorContains(t, err, "start douyin listener")
}

func TestCloseStopsAllListeners(t *testing.T) {
	m := live.NewManager(newFakePublisher(), nil)

	first := &fakeListener{}
	second := &fakeListener{}
	m.RegisterFactory(live.PlatformDouyin, func(cfg live.StreamConfig, _ func(live.ChatMessage)) live.Listener {
		if cfg.RoomID == "r1" {
			return first
		}
		return second
	})

	require.NoError(t, m.AddStream(live.StreamConfig{Platform: live.PlatformDouyin, RoomID: "r1", Enabled: true}))
	require.NoError(t, m.AddStream(live.StreamConfig{Platform: live.PlatformDouyin, RoomID: "r2", Enabled: true}))

	require.NoError(t, m.Close())
	assert.False(t, first.Running())
	assert.False(t, second.Running())
}

func TestStreamsFromConfig(t *testing.T) {
	streams := live.StreamsFromConfig([]config.PlatformConfig{
		{Platform: "bilibili", RoomID: "1", APIKey: "k", WebhookURL: "https://hook", Enabled: true},
		{Platform: "youtube", RoomID: "2"},
	})

	require.Len(t, streams, 2)
	assert.Equal(t, live.PlatformBilibili, streams[0].Platform)
	assert.Equal(t, "k", streams[0].APIKey)
	assert.True(t, streams[0].Enabled)
	assert.Equal(t, live.PlatformYouTube, streams[1].Platform)
	assert.False(t, streams[1].Enabled)
}

func TestParseWebhook(t *testing.T) {
	t.Run("full payload", func(t *testing.T) {
		msg, err := live.ParseWebhook(live.PlatformBilibili, []byte(`{
			"message": "hi",
			"user_id": "u1",
			"username": "fan",
			"room_id": "r1",
			"user_level": 5,
			"is_vip": true
		}`))
		require.NoError(t, err)
		assert.Equal(t, live.PlatformBilibili, msg.Platform)
		assert.Equal(t, "hi", msg.Text)
		assert.Equal(t, "u1", msg.UserID)
		assert.Equal(t, "fan", msg.Username)
		assert.Equal(t, "r1", msg.RoomID)
		assert.Equal(t, 5, msg.UserLevel)
		assert.True(t, msg.VIP)
		assert.False(t, msg.Timestamp.IsZero())
	})

	t.Run("anonymous fallbacks", func(t *testing.T) {
		msg, err := live.ParseWebhook(live.PlatformDouyin, []byte(`{"message": "hi"}`))
		require.NoError(t, err)
		assert.Equal(t, "anonymous", msg.UserID)
		assert.Equal(t, "viewer", msg.Username)
		assert.Equal(t, "unknown", msg.RoomID)
	})

	t.Run("missing message", func(t *testing.T) {
		_, err := live.ParseWebhook(live.PlatformDouyin, []byte(`{"user_id": "u1"}`))
		assert.ErrorContains(t, err, "missing message field")
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := live.ParseWebhook(live.PlatformDouyin, []byte(`not json`))
		assert.ErrorContains(t, err, "parse webhook payload")
	})
}
