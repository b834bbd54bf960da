// Package config loads the service configuration and provides defaulting
// access to free-form rule parameters.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" json:"server"`
	Persona    PersonaConfig    `yaml:"persona" json:"persona"`
	Bus        BusConfig        `yaml:"bus" json:"bus"`
	Gateway    GatewayConfig    `yaml:"gateway" json:"gateway"`
	Validation ValidationConfig `yaml:"validation" json:"validation"`
	Audit      AuditConfig      `yaml:"audit" json:"audit"`
	Platforms  []PlatformConfig `yaml:"platforms" json:"platforms"`
}

// ServerConfig configures the HTTP status API.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// PersonaConfig describes the conversational persona.
type PersonaConfig struct {
	Name        string `yaml:"name" json:"name"`
	Personality string `yaml:"personality" json:"personality"`
	// ReplyTimeout bounds a single reply generation, e.g. "10s".
	ReplyTimeout string `yaml:"reply_timeout" json:"reply_timeout"`
}

// BusConfig configures the event router mailbox.
type BusConfig struct {
	MailboxSize int `yaml:"mailbox_size" json:"mailbox_size"`
}

// GatewayConfig configures the connection registry.
type GatewayConfig struct {
	MailboxSize int `yaml:"mailbox_size" json:"mailbox_size"`
	// OutboundQueueSize bounds each connection's outbound queue.
	OutboundQueueSize int `yaml:"outbound_queue_size" json:"outbound_queue_size"`
}

// ValidationConfig holds the ordered rule chain. Order is priority:
// the first rule producing a non-Allow result wins.
type ValidationConfig struct {
	Rules []RuleConfig `yaml:"rules" json:"rules"`
}

// RuleConfig describes one validation rule. Parameters are kind-specific
// and accessed through Params with per-kind defaults.
type RuleConfig struct {
	ID         string         `yaml:"id" json:"id"`
	Name       string         `yaml:"name" json:"name"`
	Kind       string         `yaml:"kind" json:"kind"`
	Enabled    bool           `yaml:"enabled" json:"enabled"`
	Parameters map[string]any `yaml:"parameters" json:"parameters"`
}

// AuditConfig configures the moderation audit log.
type AuditConfig struct {
	// Path is the sqlite database file; empty selects the in-memory store.
	Path string `yaml:"path" json:"path"`
}

// PlatformConfig configures one live-platform listener.
type PlatformConfig struct {
	Platform   string `yaml:"platform" json:"platform"`
	RoomID     string `yaml:"room_id" json:"room_id"`
	APIKey     string `yaml:"api_key" json:"api_key"`
	WebhookURL string `yaml:"webhook_url" json:"webhook_url"`
	Enabled    bool   `yaml:"enabled" json:"enabled"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Persona: PersonaConfig{
			Name:         "Maya",
			Personality:  "a helpful and friendly digital assistant with a warm personality",
			ReplyTimeout: "10s",
		},
		Bus:     BusConfig{MailboxSize: 256},
		Gateway: GatewayConfig{MailboxSize: 256, OutboundQueueSize: 64},
	}
}

// FromFile loads configuration from a file, detecting the format by
// extension. Supported extensions: .yaml, .yml, .json. Fields absent
// from the file keep their Default values.
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse json: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
	return cfg, nil
}
