package engine

import (
	"fmt"
	"slices"
	"sync"
)

// fiberRegistry tracks the live fibers of one engine.
type fiberRegistry struct {
	mu   sync.RWMutex
	byID map[int64]*fiber
}

func newFiberRegistry() *fiberRegistry {
	return &fiberRegistry{
		byID: make(map[int64]*fiber),
	}
}

func (r *fiberRegistry) Register(f *fiber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[f.id]; exists {
		return fmt.Errorf("fiber %d already registered", f.id)
	}
	r.byID[f.id] = f
	return nil
}

func (r *fiberRegistry) Remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

func (r *fiberRegistry) Get(id int64) (*fiber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byID[id]
	return f, ok
}

func (r *fiberRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Snapshot returns the live fibers ordered by id.
func (r *fiberRegistry) Snapshot() []*fiber {
	r.mu.RLock()
	out := make([]*fiber, 0, len(r.byID))
	for _, f := range r.byID {
		out = append(out, f)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *fiber) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		default:
			return 0
		}
	})
	return out
}
