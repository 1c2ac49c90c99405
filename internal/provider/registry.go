// Package provider hosts generation-service implementations and the registry
// that selects one by model name.
package provider

import (
	"fmt"
	"log/slog"

	"inkwell/internal/domain/services"
)

// Registry resolves the provider responsible for a model.
type Registry struct {
	providers []services.GenerationProvider
	logger    *slog.Logger
}

// NewRegistry creates a registry over the given providers, in priority order.
func NewRegistry(logger *slog.Logger, providers ...services.GenerationProvider) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{providers: providers, logger: logger}
}

// Register appends a provider.
func (r *Registry) Register(p services.GenerationProvider) {
	r.providers = append(r.providers, p)
	r.logger.Info("generation provider registered", "provider", p.Name())
}

// ForModel returns the first provider that supports the model.
func (r *Registry) ForModel(model string) (services.GenerationProvider, error) {
	for _, p := range r.providers {
		if p.SupportsModel(model) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no provider supports model %q", model)
}
