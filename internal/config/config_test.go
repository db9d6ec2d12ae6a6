package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Connection.Mode = "staging" }},
		{"empty endpoint", func(c *Config) { c.Connection.ProdEndpoint = "" }},
		{"non-websocket endpoint", func(c *Config) { c.Connection.ProdEndpoint = "https://api.sudosu.dev" }},
		{"negative buffer", func(c *Config) { c.Transport.SendBufferSize = -1 }},
		{"negative retention", func(c *Config) { c.Transcript.RetentionDays = -1 }},
		{"no default agent", func(c *Config) { c.DefaultAgent = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestEndpoint_ByMode(t *testing.T) {
	conn := ConnectionConfig{
		Mode:         "dev",
		DevEndpoint:  "ws://localhost:1234/ws",
		ProdEndpoint: "wss://api.example.com/ws",
	}

	endpoint, err := conn.Endpoint()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:1234/ws", endpoint)

	conn.Mode = "prod"
	endpoint, err = conn.Endpoint()
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example.com/ws", endpoint)
}

func TestResolveCredential(t *testing.T) {
	t.Setenv("SUDOSU_TEST_TOKEN", "tok-123")

	conn := ConnectionConfig{CredentialRef: "env:SUDOSU_TEST_TOKEN"}
	token, err := conn.ResolveCredential()
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)

	conn.CredentialRef = "env:SUDOSU_TEST_MISSING"
	_, err = conn.ResolveCredential()
	require.Error(t, err)

	conn.CredentialRef = "literal-token"
	token, err = conn.ResolveCredential()
	require.NoError(t, err)
	assert.Equal(t, "literal-token", token)
}

func TestLoader_MissingFileYieldsDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nope.yaml"))

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Connection.Mode)
	assert.Equal(t, 20*time.Second, cfg.Transport.HeartbeatInterval)
}

func TestLoader_ReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
connection:
  mode: dev
  dev_endpoint: ws://localhost:9999/ws
transport:
  heartbeat_interval: 5s
  send_buffer_size: 16
sandbox:
  restricted: true
default_agent: coder
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Connection.Mode)
	assert.Equal(t, "ws://localhost:9999/ws", cfg.Connection.DevEndpoint)
	assert.Equal(t, 5*time.Second, cfg.Transport.HeartbeatInterval)
	assert.Equal(t, 16, cfg.Transport.SendBufferSize)
	assert.True(t, cfg.Sandbox.Restricted)
	assert.Equal(t, "coder", cfg.DefaultAgent)
}

func TestLoader_RejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connection:\n  mode: nope\n"), 0644))

	_, err := NewLoader(path).Load()
	require.Error(t, err)
}

func TestCheckProjectRoot(t *testing.T) {
	assert.NoError(t, CheckProjectRoot(t.TempDir()))

	require.ErrorIs(t, CheckProjectRoot("/"), ErrUnsafeRoot)
	require.ErrorIs(t, CheckProjectRoot("/etc"), ErrUnsafeRoot)
	require.ErrorIs(t, CheckProjectRoot("/tmp"), ErrUnsafeRoot)
	require.ErrorIs(t, CheckProjectRoot("/usr/.."), ErrUnsafeRoot)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	require.ErrorIs(t, CheckProjectRoot(home), ErrUnsafeRoot)
}
