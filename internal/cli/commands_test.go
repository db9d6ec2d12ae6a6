package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sudosu-ai/sudosu/internal/config"
)

func TestWriteConfig_MasksCredential(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Connection.Mode = "dev"
	cfg.Connection.CredentialRef = "sk-verysecretvalue1234"

	var out strings.Builder
	writeConfig(&out, cfg, "/repo")

	text := out.String()
	assert.Contains(t, text, "mode:        dev")
	assert.Contains(t, text, "root:        /repo")
	assert.Contains(t, text, "sk-v...1234")
	assert.NotContains(t, text, "verysecretvalue")
}

func TestMaskCredential(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"", "(none)"},
		{"env:SUDOSU_TOKEN", "env:SUDOSU_TOKEN"},
		{"short", "****"},
		{"sk-verysecretvalue1234", "sk-v...1234"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, maskCredential(tt.ref), tt.ref)
	}
}

func TestWriteIntegrations(t *testing.T) {
	var out strings.Builder
	writeIntegrations(&out, nil)
	assert.Contains(t, out.String(), "no integration tools registered")

	out.Reset()
	writeIntegrations(&out, []string{"mail.send", "issues.create"})
	assert.Equal(t, "  issues.create\n  mail.send\n", out.String())
}
