package llm

import (
	"fmt"
	"log/slog"
	"sync"

	"venturedesk/internal/domain"
	"venturedesk/internal/infra/config"
)

// Registry holds named providers and resolves ordered failover lists.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.LLMProvider
	order     []string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]domain.LLMProvider)}
}

// NewRegistryFromConfig builds all configured providers, optionally wrapping
// each in a circuit breaker, and registers them in config order.
func NewRegistryFromConfig(cfg config.LLMConfig, logger *slog.Logger) (*Registry, error) {
	r := NewRegistry()

	for _, pc := range cfg.Providers {
		var (
			provider domain.LLMProvider
			err      error
		)
		switch pc.Type {
		case "openai":
			provider = NewOpenAIProvider(pc, logger)
		case "anthropic":
			provider = NewAnthropicProvider(pc, logger)
		case "bedrock":
			provider, err = NewBedrockProvider(pc, logger)
		default:
			err = fmt.Errorf("%w: unknown provider type %q", domain.ErrInvalidInput, pc.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("build provider %q: %w", pc.Name, err)
		}

		if cfg.CircuitBreaker.Enabled {
			provider = NewCircuitBreakerProvider(provider, cfg.CircuitBreaker, logger)
		}
		if err := r.Register(provider); err != nil {
			return nil, err
		}
	}

	order := cfg.Order
	if len(order) == 0 {
		for _, pc := range cfg.Providers {
			order = append(order, pc.Name)
		}
	}
	if err := r.SetOrder(order); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds a provider. Duplicate names are rejected.
func (r *Registry) Register(p domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.Name()]; exists {
		return fmt.Errorf("%w: provider %q already registered", domain.ErrInvalidInput, p.Name())
	}
	r.providers[p.Name()] = p
	return nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// SetOrder sets the default failover priority. Every name must be registered.
func (r *Registry) SetOrder(names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if _, ok := r.providers[name]; !ok {
			return fmt.Errorf("%w: order references %q", domain.ErrProviderNotFound, name)
		}
	}
	r.order = append([]string(nil), names...)
	return nil
}

// Ordered returns providers in failover priority for one request. The slice
// is a fresh copy; callers may reorder it without affecting the registry.
func (r *Registry) Ordered() []domain.LLMProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.LLMProvider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	return out
}

// List returns the names of all registered providers in priority order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
