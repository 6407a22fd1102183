// Package registry holds the Scheduler API's function directory: a name
// to domain.FunctionSpec map. It is the sole source of truth for "does
// a function by this name exist" and performs no compilation, pooling,
// or execution itself.
package registry

import (
	"sync"

	"github.com/fluxfaas/fluxfaas/internal/domain"
)

// Registry is a concurrency-safe name -> FunctionSpec directory.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*domain.FunctionSpec
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{specs: make(map[string]*domain.FunctionSpec)}
}

// Register adds or replaces the spec for spec.Name. A replace (function
// update) does not itself touch any pool or instance; callers that need
// the old version's instances retired must do so explicitly.
func (r *Registry) Register(spec *domain.FunctionSpec) error {
	if spec.Name == "" {
		return domain.NewError(domain.ErrValidationFailed, "function name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Name] = spec
	return nil
}

// Unregister removes name. Returns ErrNotFound if it was never
// registered.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.specs[name]; !ok {
		return domain.NewError(domain.ErrNotFound, "function not registered")
	}
	delete(r.specs, name)
	return nil
}

// Get returns the current spec for name.
func (r *Registry) Get(name string) (*domain.FunctionSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	if !ok {
		return nil, domain.NewError(domain.ErrNotFound, "function not registered")
	}
	return spec, nil
}

// List returns every registered spec.
func (r *Registry) List() []*domain.FunctionSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.FunctionSpec, 0, len(r.specs))
	for _, spec := range r.specs {
		out = append(out, spec)
	}
	return out
}
