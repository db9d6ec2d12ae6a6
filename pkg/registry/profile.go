package registry

import (
	"fmt"
	"strings"
)

// AgentProfile describes one agent persona loaded from a YAML profile file.
type AgentProfile struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Persona     string   `yaml:"persona"`
	Model       string   `yaml:"model"`
	Tools       []string `yaml:"tools"`
	Skills      []string `yaml:"skills"`

	// AutoApprove marks the profile as trusted for file overwrites: the
	// confirmation prompt is skipped for its writes.
	AutoApprove bool `yaml:"auto_approve"`

	// Origin records which layer the profile came from (project or global).
	Origin string `yaml:"-"`
}

// Validate checks the fields a profile must carry to be usable.
func (p *AgentProfile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("profile name is required")
	}
	if strings.ContainsAny(p.Name, " \t@/") {
		return fmt.Errorf("profile name %q contains invalid characters", p.Name)
	}
	if strings.TrimSpace(p.Persona) == "" {
		return fmt.Errorf("profile %s: persona is required", p.Name)
	}
	return nil
}

// AllowsTool reports whether the profile's allowlist permits a tool. A profile
// without an explicit allowlist permits every tool the sandbox knows.
func (p *AgentProfile) AllowsTool(tool string) bool {
	if len(p.Tools) == 0 {
		return true
	}
	for _, t := range p.Tools {
		if t == tool {
			return true
		}
	}
	return false
}
