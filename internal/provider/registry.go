package provider

import (
	"fmt"
	"sync"
)

// Registry maps each asset to the providers backing it, in registration
// order. Registration order breaks routing ties.
type Registry struct {
	mu        sync.RWMutex
	providers map[string][]Adapter
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string][]Adapter)}
}

// Register appends a provider to the asset's list.
func (r *Registry) Register(asset string, a Adapter) error {
	if a == nil {
		return fmt.Errorf("register %s: nil adapter", asset)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.providers[asset] {
		if existing.ID() == a.ID() {
			return fmt.Errorf("register %s: provider %s already registered", asset, a.ID())
		}
	}
	r.providers[asset] = append(r.providers[asset], a)
	return nil
}

// Deregister removes a provider from the asset's list, keeping the order of
// the others. It reports whether the provider was registered.
func (r *Registry) Deregister(asset, providerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.providers[asset]
	for i, a := range list {
		if a.ID() == providerID {
			next := make([]Adapter, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			r.providers[asset] = next
			return true
		}
	}
	return false
}

// Providers returns a snapshot of the asset's providers.
func (r *Registry) Providers(asset string) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.providers[asset]
	out := make([]Adapter, len(list))
	copy(out, list)
	return out
}

// Assets returns every asset with at least one provider.
func (r *Registry) Assets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.providers))
	for asset, list := range r.providers {
		if len(list) > 0 {
			out = append(out, asset)
		}
	}
	return out
}
