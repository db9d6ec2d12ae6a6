// Package registry loads agent profiles and skills from layered on-disk
// directories. A project-level directory shadows the global one; profiles are
// read lazily and cached for the lifetime of a session, so edits on disk only
// take effect at the next session start.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const maxProfileSize = 1 * 1024 * 1024

// Config holds registry configuration.
type Config struct {
	// ProjectDir is the per-project layer, typically <project>/.sudosu.
	// Profiles here shadow same-named global ones.
	ProjectDir string

	// GlobalDir is the user-level layer, typically ~/.sudosu.
	GlobalDir string

	// FallbackAgent names the mention that resolves to the built-in profile
	// when neither layer has a file for it. Empty disables the fallback.
	FallbackAgent string

	Logger zerolog.Logger
}

// Registry resolves agent mentions to profiles.
type Registry struct {
	projectDir string
	globalDir  string
	fallback   string
	logger     zerolog.Logger

	mu    sync.Mutex
	cache map[string]*AgentProfile
	names []string
}

// New creates a registry over the configured layers. Neither directory needs
// to exist; a missing layer simply contributes no profiles.
func New(cfg Config) *Registry {
	return &Registry{
		projectDir: cfg.ProjectDir,
		globalDir:  cfg.GlobalDir,
		fallback:   cfg.FallbackAgent,
		logger:     cfg.Logger.With().Str("component", "registry").Logger(),
		cache:      make(map[string]*AgentProfile),
	}
}

// Resolve returns the profile for an agent name. The first resolution of a
// name reads it from disk; later ones return the cached copy even if the file
// changed, keeping the profile stable for the whole session.
func (r *Registry) Resolve(name string) (*AgentProfile, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "@")
	if name == "" {
		return nil, fmt.Errorf("%w: empty mention", ErrUnknownAgent)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if profile, ok := r.cache[name]; ok {
		return profile, nil
	}

	profile, err := r.load(name)
	if err != nil {
		return nil, err
	}
	r.cache[name] = profile
	return profile, nil
}

// Names lists the agent names available across both layers, sorted. The scan
// result is cached the same way profiles are.
func (r *Registry) Names() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.names != nil {
		return r.names, nil
	}

	seen := make(map[string]struct{})
	for _, dir := range []string{r.projectDir, r.globalDir} {
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(dir, "agents"))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := filepath.Ext(entry.Name())
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			seen[strings.TrimSuffix(entry.Name(), ext)] = struct{}{}
		}
	}

	if r.fallback != "" {
		seen[r.fallback] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	r.names = names
	return names, nil
}

// load reads a profile from the first layer that has it, validates it, and
// folds its skills into the persona.
func (r *Registry) load(name string) (*AgentProfile, error) {
	type layer struct {
		dir    string
		origin string
	}
	layers := []layer{
		{r.projectDir, "project"},
		{r.globalDir, "global"},
	}

	for _, l := range layers {
		if l.dir == "" {
			continue
		}
		profile, err := r.loadFrom(l.dir, name)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		profile.Origin = l.origin

		if err := r.foldSkills(profile); err != nil {
			return nil, err
		}

		r.logger.Debug().
			Str("agent", profile.Name).
			Str("origin", profile.Origin).
			Int("skills", len(profile.Skills)).
			Msg("Agent profile loaded")
		return profile, nil
	}

	if r.fallback != "" && name == r.fallback {
		r.logger.Debug().Str("agent", name).Msg("Using built-in default profile")
		return builtinProfile(name), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, name)
}

func (r *Registry) loadFrom(dir, name string) (*AgentProfile, error) {
	var data []byte
	var err error
	for _, ext := range []string{".yaml", ".yml"} {
		data, err = readBounded(filepath.Join(dir, "agents", name+ext))
		if err == nil {
			break
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}

	var profile AgentProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", name, err)
	}
	if profile.Name == "" {
		profile.Name = name
	}
	if profile.Name != name {
		return nil, fmt.Errorf("profile file %s declares name %q", name, profile.Name)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &profile, nil
}

// foldSkills appends each referenced skill's markdown body to the persona.
// Skills resolve through the same layering as profiles.
func (r *Registry) foldSkills(profile *AgentProfile) error {
	for _, skill := range profile.Skills {
		body, err := r.loadSkill(skill)
		if err != nil {
			return err
		}
		profile.Persona = profile.Persona + "\n\n## Skill: " + skill + "\n\n" + body
	}
	return nil
}

func (r *Registry) loadSkill(name string) (string, error) {
	for _, dir := range []string{r.projectDir, r.globalDir} {
		if dir == "" {
			continue
		}
		data, err := readBounded(filepath.Join(dir, "skills", name+".md"))
		if err == nil {
			return strings.TrimSpace(string(data)), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownSkill, name)
}

func readBounded(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxProfileSize {
		return nil, fmt.Errorf("file %s exceeds %d bytes", path, maxProfileSize)
	}
	return os.ReadFile(path)
}
