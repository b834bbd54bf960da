package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "Maya", cfg.Persona.Name)
	assert.Equal(t, "10s", cfg.Persona.ReplyTimeout)
	assert.Equal(t, 256, cfg.Bus.MailboxSize)
	assert.Equal(t, 256, cfg.Gateway.MailboxSize)
	assert.Equal(t, 64, cfg.Gateway.OutboundQueueSize)
	assert.Empty(t, cfg.Validation.Rules)
	assert.Empty(t, cfg.Audit.Path)
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFromFileYAML(t *testing.T) {
	path := writeTemp(t, "config.yaml", `
server:
  addr: ":9090"
persona:
  name: "Nova"
validation:
  rules:
    - id: blacklist
      name: word blacklist
      kind: blacklist
      enabled: true
      parameters:
        words: ["spam"]
    - id: rate_limit
      kind: rate_limit
      enabled: true
      parameters:
        max_messages_per_minute: 5
audit:
  path: "./moderation.db"
platforms:
  - platform: bilibili
    room_id: "12345"
    enabled: true
`)

	cfg, err := FromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "Nova", cfg.Persona.Name)
	assert.Equal(t, "10s", cfg.Persona.ReplyTimeout, "unset fields keep defaults")
	assert.Equal(t, 256, cfg.Bus.MailboxSize)
	assert.Equal(t, "./moderation.db", cfg.Audit.Path)

	require.Len(t, cfg.Validation.Rules, 2)
	assert.Equal(t, "blacklist", cfg.Validation.Rules[0].Kind)
	params := NewParams(cfg.Validation.Rules[1].Parameters)
	assert.Equal(t, 5, params.Int("max_messages_per_minute", 0))

	require.Len(t, cfg.Platforms, 1)
	assert.Equal(t, "bilibili", cfg.Platforms[0].Platform)
	assert.True(t, cfg.Platforms[0].Enabled)
}

func TestFromFileJSON(t *testing.T) {
	path := writeTemp(t, "config.json", `{
		"server": {"addr": ":7070"},
		"gateway": {"outbound_queue_size": 16}
	}`)

	cfg, err := FromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 16, cfg.Gateway.OutboundQueueSize)
	assert.Equal(t, 256, cfg.Gateway.MailboxSize, "unset fields keep defaults")
}

func TestFromFileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := FromFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeTemp(t, "config.toml", "addr = ':8080'")
		_, err := FromFile(path)
		assert.ErrorContains(t, err, "unsupported config file extension")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeTemp(t, "config.yaml", "server: [broken")
		_, err := FromFile(path)
		assert.ErrorContains(t, err, "parse yaml")
	})
}
