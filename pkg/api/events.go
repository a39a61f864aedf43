package api

import "time"

// EventType identifies a fiber history event.
type EventType string

const (
	EventFiberStarted   EventType = "fiber.started"
	EventStepApplied    EventType = "step.applied"
	EventFiberSuspended EventType = "fiber.suspended"
	EventFiberResumed   EventType = "fiber.resumed"
	EventRetryScheduled EventType = "retry.scheduled"
	EventFiberCompleted EventType = "fiber.completed"
	EventFiberFailed    EventType = "fiber.failed"
	EventFiberCancelled EventType = "fiber.cancelled"
)

// FiberEvent is a minimal append-only history record for audit/debugging.
// It never carries enough state to resume a fiber.
type FiberEvent struct {
	ID       string
	EngineID string
	FiberID  int64
	ParentID int64
	At       time.Time
	Type     EventType

	// Optional context.
	Step string

	// Small, human-oriented details (e.g. action kind, delay, error string).
	// Keep this low-volume: do NOT dump packets here.
	Detail string
}
