package persistence

import (
	"context"

	"github.com/petrijr/skein/pkg/api"
)

// EventStore is an append-only history store for fiber execution events.
type EventStore interface {
	AppendEvent(ctx context.Context, ev api.FiberEvent) error
	ListEvents(ctx context.Context, engineID string, fiberID int64) ([]api.FiberEvent, error)
}

// NoopEventStore discards all events.
type NoopEventStore struct{}

func (NoopEventStore) AppendEvent(ctx context.Context, ev api.FiberEvent) error { return nil }
func (NoopEventStore) ListEvents(ctx context.Context, engineID string, fiberID int64) ([]api.FiberEvent, error) {
	return nil, nil
}
