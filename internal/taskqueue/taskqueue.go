package taskqueue

import (
	"context"
	"time"
)

// TaskType identifies why a fiber was put on the run queue.
type TaskType string

const (
	TaskTypeStart  TaskType = "fiber-start"
	TaskTypeResume TaskType = "fiber-resume"
	TaskTypeRetry  TaskType = "fiber-retry"
)

// Task is one slice of fiber execution waiting for a pool worker.
type Task struct {
	ID      string
	Type    TaskType
	FiberID int64

	// Run drives the fiber until it suspends or completes. ctx is the
	// worker's context and is cancelled when the pool stops.
	Run func(ctx context.Context)

	EnqueuedAt time.Time
}

// Queue is the run queue shared by the pool workers.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next task, blocking until one is available
	// or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
