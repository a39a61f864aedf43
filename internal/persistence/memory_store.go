package persistence

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/petrijr/skein/pkg/api"
)

type fiberKey struct {
	engineID string
	fiberID  int64
}

// InMemoryEventStore is a simple, goroutine-safe EventStore backed by a map.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events map[fiberKey][]api.FiberEvent
}

// NewInMemoryEventStore creates a new InMemoryEventStore.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		events: make(map[fiberKey][]api.FiberEvent),
	}
}

var _ EventStore = (*InMemoryEventStore)(nil)

func (s *InMemoryEventStore) AppendEvent(_ context.Context, ev api.FiberEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := fiberKey{ev.EngineID, ev.FiberID}
	s.events[k] = append(s.events[k], ev)
	return nil
}

func (s *InMemoryEventStore) ListEvents(_ context.Context, engineID string, fiberID int64) ([]api.FiberEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.events[fiberKey{engineID, fiberID}]), nil
}

// Len returns the total number of stored events.
func (s *InMemoryEventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, evs := range s.events {
		n += len(evs)
	}
	return n
}
