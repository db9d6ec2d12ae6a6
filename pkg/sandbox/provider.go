package sandbox

import (
	"context"
	"fmt"
	"sync"
)

// Provider executes one family of integration tools (mail, chat, issue
// tracker, VCS, docs). Implementations are external collaborators reached
// over the network; the sandbox treats them as untrusted.
type Provider interface {
	// Invoke executes a named tool. A returned error is surfaced to the
	// backend as a structured tool failure.
	Invoke(ctx context.Context, tool string, args map[string]interface{}) (map[string]interface{}, error)
}

// ProviderRegistry maps integration tool names to providers. It is built once
// at startup; registration after that point is not expected.
type ProviderRegistry struct {
	providers map[string]Provider
	mu        sync.RWMutex
}

// NewProviderRegistry creates an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]Provider),
	}
}

// Register binds a tool name to a provider.
func (r *ProviderRegistry) Register(tool string, p Provider) error {
	if tool == "" {
		return fmt.Errorf("tool name is required")
	}
	if p == nil {
		return fmt.Errorf("provider is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[tool]; exists {
		return fmt.Errorf("tool already registered: %s", tool)
	}
	r.providers[tool] = p
	return nil
}

// Lookup returns the provider for a tool name.
func (r *ProviderRegistry) Lookup(tool string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[tool]
	return p, ok
}

// Tools returns the registered integration tool names.
func (r *ProviderRegistry) Tools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
