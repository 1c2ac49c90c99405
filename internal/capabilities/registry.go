// Package capabilities describes what each known generation model supports.
// Definitions ship as embedded YAML so the registry works offline.
package capabilities

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config/*.yaml
var configFiles embed.FS

// ModelCapability describes one generation model.
type ModelCapability struct {
	Name string `yaml:"name"`
	// MaxWordCount caps the target length a beat may request.
	MaxWordCount int `yaml:"max_word_count"`
	// SceneBridging reports whether the model accepts text-after-beat
	// bridging context for scene beats.
	SceneBridging bool `yaml:"scene_bridging"`
}

// ProviderCapabilities groups the models of one provider.
type ProviderCapabilities struct {
	Provider string            `yaml:"provider"`
	Models   []ModelCapability `yaml:"models"`
}

// Registry maps model names to their capabilities.
type Registry struct {
	mu     sync.RWMutex
	models map[string]ModelCapability
}

// NewRegistry creates a registry from the embedded YAML files.
func NewRegistry() (*Registry, error) {
	r := &Registry{models: make(map[string]ModelCapability)}
	for _, provider := range []string{"anthropic", "lorem"} {
		if err := r.loadProviderFile(provider); err != nil {
			return nil, fmt.Errorf("load %s capabilities: %w", provider, err)
		}
	}
	return r, nil
}

func (r *Registry) loadProviderFile(provider string) error {
	data, err := configFiles.ReadFile(fmt.Sprintf("config/%s.yaml", provider))
	if err != nil {
		return fmt.Errorf("read capability file: %w", err)
	}

	var caps ProviderCapabilities
	if err := yaml.Unmarshal(data, &caps); err != nil {
		return fmt.Errorf("unmarshal capability file: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range caps.Models {
		r.models[m.Name] = m
	}
	return nil
}

// Lookup returns the capability entry for a model. Unknown models match on
// prefix family (e.g. dated claude releases) before giving up.
func (r *Registry) Lookup(model string) (ModelCapability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.models[model]; ok {
		return m, true
	}
	for name, m := range r.models {
		if strings.HasPrefix(model, name) {
			return m, true
		}
	}
	return ModelCapability{}, false
}

// ClampWordCount bounds a requested word count by the model's capability.
// Unknown models pass through unchanged.
func (r *Registry) ClampWordCount(model string, requested int) int {
	m, ok := r.Lookup(model)
	if !ok || m.MaxWordCount <= 0 || requested <= m.MaxWordCount {
		return requested
	}
	return m.MaxWordCount
}
