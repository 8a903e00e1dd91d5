package worker

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// CancelRegistry tracks cancel functions for in-flight runs so the API
// can stop a running analysis by id.
type CancelRegistry struct {
	mu sync.Mutex
	m  map[uuid.UUID]context.CancelFunc
}

// NewCancelRegistry constructs an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{m: make(map[uuid.UUID]context.CancelFunc)}
}

func (r *CancelRegistry) register(id uuid.UUID, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[id] = cancel
}

func (r *CancelRegistry) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, id)
}

// Cancel fires the run's cancel function and reports whether the run
// was in flight.
func (r *CancelRegistry) Cancel(id uuid.UUID) bool {
	r.mu.Lock()
	cancel, ok := r.m[id]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}
