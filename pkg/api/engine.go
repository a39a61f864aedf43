package api

import (
	"context"
	"time"
)

// Engine owns the worker pool and the delayed scheduler shared by its
// fibers.
type Engine interface {
	// ID identifies the engine in history events and logs.
	ID() string

	// CreateFiber returns an unstarted fiber; call Fiber.Start to run it.
	CreateFiber() Fiber

	// StartFiber creates a fiber and schedules it on the pool.
	StartFiber(head Step, p *Packet, cb CompletionCallback) (Fiber, error)

	// Lookup returns a live fiber by id.
	Lookup(id int64) (Fiber, bool)

	// Resume delivers a wake-up to a live fiber by id, returning
	// ErrFiberNotFound when no such fiber is running.
	Resume(id int64, p *Packet) error

	// Active returns the number of live fibers.
	Active() int

	// Stop cancels every live fiber and shuts the pool and the scheduler
	// down, waiting for workers until ctx is done.
	Stop(ctx context.Context) error
}

// Cancelable is a handle to a scheduled task.
type Cancelable interface {
	// Cancel prevents the task from running and reports whether it was still
	// pending.
	Cancel() bool
}

// DelayScheduler runs functions after a delay. Implementations must not run
// fn on the caller's goroutine.
type DelayScheduler interface {
	ScheduleOnce(delay time.Duration, fn func()) Cancelable
}
