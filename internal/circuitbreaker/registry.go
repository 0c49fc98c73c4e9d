package circuitbreaker

import (
	"context"
	"sync"

	"github.com/angeloszaimis/distbreaker/internal/circuit"
	"github.com/angeloszaimis/distbreaker/internal/store"
)

// Registry hands out one CircuitBreaker per circuit id, all sharing the
// same store and option set.
type Registry struct {
	mutex    sync.RWMutex
	breakers map[string]*CircuitBreaker
	store    store.Store
	opts     []Option
}

// NewRegistry creates a registry whose breakers share st and opts.
func NewRegistry(st store.Store, opts ...Option) *Registry {
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		store:    st,
		opts:     opts,
	}
}

// GetBreaker returns the breaker for id, creating it on first use.
func (r *Registry) GetBreaker(id string) (*CircuitBreaker, error) {
	r.mutex.RLock()
	cb, exists := r.breakers[id]
	r.mutex.RUnlock()

	if exists {
		return cb, nil
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[id]; exists {
		return cb, nil
	}

	cb, err := New(id, r.store, r.opts...)
	if err != nil {
		return nil, err
	}
	r.breakers[id] = cb
	return cb, nil
}

// Reset drops every breaker. Shared store state is untouched.
func (r *Registry) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.breakers = make(map[string]*CircuitBreaker)
}

// Stats reports the best-effort current state of every known circuit.
func (r *Registry) Stats(ctx context.Context) map[string]circuit.State {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[string]circuit.State, len(r.breakers))
	for id, cb := range r.breakers {
		stats[id] = cb.CurrentState(ctx)
	}
	return stats
}
