package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sudosu.log")

	l, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)

	zl := l.Zerolog()
	zl.Info().Str("k", "v").Msg("hello")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), `"k":"v"`)
}

func TestNew_InvalidLevelDefaultsToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sudosu.log")

	l, err := New(Config{Level: "chatty", File: path})
	require.NoError(t, err)
	defer l.Close()

	zl := l.Zerolog()
	zl.Debug().Msg("dropped")
	zl.Info().Msg("kept")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestRedaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sudosu.log")

	l, err := New(Config{Level: "info", File: path})
	require.NoError(t, err)

	zl := l.Zerolog()
	zl.Info().Str("auth", "Bearer abc123def456xyz").Msg("dialing")
	zl.Info().Str("key", "sk-abcdefghijklmnopqrstuv").Msg("loaded")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.NotContains(t, out, "abc123def456xyz")
	assert.NotContains(t, out, "sk-abcdefghijklmnopqrstuv")
	assert.Contains(t, out, "[REDACTED]")
}

func TestRedactor_Patterns(t *testing.T) {
	r := newRedactor()

	tests := []struct {
		in       string
		redacted bool
	}{
		{"Bearer tok-1234.abcd", true},
		{`token: "abcd1234efgh"`, true},
		{`credential=supersecret99`, true},
		{"plain log line", false},
	}

	for _, tt := range tests {
		out := r.redact(tt.in)
		if tt.redacted {
			assert.Contains(t, out, "[REDACTED]", tt.in)
		} else {
			assert.Equal(t, tt.in, out)
		}
	}
}
