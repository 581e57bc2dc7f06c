package inspector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/stratumdb/stratum/internal/model"
)

// Factory is a function that creates a new Inspector instance.
type Factory func() Inspector

// Registry maps engine types to inspector factories. Adding a database
// engine means implementing the Inspector capability set and registering
// its factory here; the orchestrator and the metadata store are untouched.
type Registry struct {
	mu        sync.RWMutex
	factories map[model.Engine]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[model.Engine]Factory)}
}

// Register registers an inspector factory for an engine type, replacing
// any previous registration.
func (r *Registry) Register(engine model.Engine, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[engine] = factory
}

// For returns a fresh inspector for the given engine type, or
// ErrUnsupportedEngine when no factory is registered for it.
func (r *Registry) For(engine model.Engine) (Inspector, error) {
	r.mu.RLock()
	factory, ok := r.factories[engine]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedEngine, engine, r.Engines())
	}
	return factory(), nil
}

// Engines returns the registered engine types, sorted.
func (r *Registry) Engines() []model.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engines := make([]model.Engine, 0, len(r.factories))
	for e := range r.factories {
		engines = append(engines, e)
	}
	sort.Slice(engines, func(i, j int) bool { return engines[i] < engines[j] })
	return engines
}
