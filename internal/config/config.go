// Package config loads and validates the client configuration from
// ~/.sudosu/config.yaml, the SUDOSU_* environment, and flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the full client configuration.
type Config struct {
	Connection ConnectionConfig `json:"connection" mapstructure:"connection"`
	Transport  TransportConfig  `json:"transport" mapstructure:"transport"`
	Sandbox    SandboxConfig    `json:"sandbox" mapstructure:"sandbox"`
	Stream     StreamConfig     `json:"stream" mapstructure:"stream"`
	Transcript TranscriptConfig `json:"transcript" mapstructure:"transcript"`
	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`

	// DefaultAgent handles input without an @mention.
	DefaultAgent string `json:"default_agent" mapstructure:"default_agent"`
}

// ConnectionConfig selects the backend endpoint. Mode and credential are
// resolved once at session start; switching requires a new session.
type ConnectionConfig struct {
	Mode          string `json:"mode" mapstructure:"mode"` // dev, prod
	DevEndpoint   string `json:"dev_endpoint" mapstructure:"dev_endpoint"`
	ProdEndpoint  string `json:"prod_endpoint" mapstructure:"prod_endpoint"`
	CredentialRef string `json:"credential_ref" mapstructure:"credential_ref"`
}

// Endpoint resolves the websocket endpoint for the configured mode.
func (c ConnectionConfig) Endpoint() (string, error) {
	switch c.Mode {
	case "dev":
		return c.DevEndpoint, nil
	case "prod":
		return c.ProdEndpoint, nil
	default:
		return "", fmt.Errorf("unknown connection mode: %s", c.Mode)
	}
}

// ResolveCredential materializes the credential reference. A ref of the form
// "env:NAME" reads the named environment variable; anything else is used as
// the token itself.
func (c ConnectionConfig) ResolveCredential() (string, error) {
	if strings.HasPrefix(c.CredentialRef, "env:") {
		name := strings.TrimPrefix(c.CredentialRef, "env:")
		value := os.Getenv(name)
		if value == "" {
			return "", fmt.Errorf("credential environment variable %s is not set", name)
		}
		return value, nil
	}
	return c.CredentialRef, nil
}

// TransportConfig tunes the websocket channel.
type TransportConfig struct {
	HeartbeatInterval    time.Duration `json:"heartbeat_interval" mapstructure:"heartbeat_interval"`
	HeartbeatTimeout     time.Duration `json:"heartbeat_timeout" mapstructure:"heartbeat_timeout"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts" mapstructure:"max_reconnect_attempts"`
	BackoffBase          time.Duration `json:"backoff_base" mapstructure:"backoff_base"`
	BackoffCap           time.Duration `json:"backoff_cap" mapstructure:"backoff_cap"`
	SendBufferSize       int           `json:"send_buffer_size" mapstructure:"send_buffer_size"`
}

// SandboxConfig tunes local tool execution.
type SandboxConfig struct {
	Timeout       time.Duration `json:"timeout" mapstructure:"timeout"`
	ApprovedPaths []string      `json:"approved_paths" mapstructure:"approved_paths"`

	// Restricted disables mutating tools. It also overrides the project root
	// safety refusal: read-only sessions may run anywhere.
	Restricted bool `json:"restricted" mapstructure:"restricted"`
}

// StreamConfig tunes turn rendering.
type StreamConfig struct {
	// BlockStreaming holds text output while tool calls execute.
	BlockStreaming bool `json:"block_streaming" mapstructure:"block_streaming"`
}

// TranscriptConfig controls the local transcript store.
type TranscriptConfig struct {
	Enabled       bool   `json:"enabled" mapstructure:"enabled"`
	Path          string `json:"path" mapstructure:"path"`
	RetentionDays int    `json:"retention_days" mapstructure:"retention_days"`
	PruneSchedule string `json:"prune_schedule" mapstructure:"prune_schedule"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Mode:         "prod",
			DevEndpoint:  "ws://localhost:8787/ws",
			ProdEndpoint: "wss://api.sudosu.dev/ws",
		},
		Transport: TransportConfig{
			HeartbeatInterval:    20 * time.Second,
			HeartbeatTimeout:     60 * time.Second,
			MaxReconnectAttempts: 5,
			BackoffBase:          500 * time.Millisecond,
			BackoffCap:           30 * time.Second,
			SendBufferSize:       64,
		},
		Sandbox: SandboxConfig{
			Timeout: 30 * time.Second,
		},
		Transcript: TranscriptConfig{
			Enabled:       true,
			RetentionDays: 30,
			PruneSchedule: "0 3 * * *",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		DefaultAgent: "assistant",
	}
}

// Validate checks field-level constraints.
func (c *Config) Validate() error {
	if c.Connection.Mode != "dev" && c.Connection.Mode != "prod" {
		return fmt.Errorf("connection.mode must be dev or prod, got %q", c.Connection.Mode)
	}
	if _, err := c.Connection.Endpoint(); err != nil {
		return err
	}
	endpoint, _ := c.Connection.Endpoint()
	if endpoint == "" {
		return fmt.Errorf("no endpoint configured for mode %s", c.Connection.Mode)
	}
	if !strings.HasPrefix(endpoint, "ws://") && !strings.HasPrefix(endpoint, "wss://") {
		return fmt.Errorf("endpoint must be a ws:// or wss:// URL, got %q", endpoint)
	}
	if c.Transport.SendBufferSize < 0 {
		return fmt.Errorf("transport.send_buffer_size must not be negative")
	}
	if c.Transport.MaxReconnectAttempts < 0 {
		return fmt.Errorf("transport.max_reconnect_attempts must not be negative")
	}
	if c.Transcript.RetentionDays < 0 {
		return fmt.Errorf("transcript.retention_days must not be negative")
	}
	if c.DefaultAgent == "" {
		return fmt.Errorf("default_agent is required")
	}
	return nil
}
