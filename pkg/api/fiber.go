package api

import (
	"context"
	"time"
)

// Status represents the lifecycle state of a fiber.
type Status string

const (
	StatusNotComplete Status = "NOT_COMPLETE"
	StatusDone        Status = "DONE"
	StatusCancelled   Status = "CANCELLED"
)

// CompletionCallback receives the outcome of a fiber. Exactly one of its
// methods is called, at most once. A cancelled fiber calls neither.
type CompletionCallback interface {
	OnSuccess(p *Packet, result any)
	OnFailure(p *Packet, err error)
}

// CancellationCallback is an optional extension of CompletionCallback,
// called once when a started fiber is cancelled.
type CancellationCallback interface {
	OnCancel(p *Packet)
}

// Callbacks adapts functions to CompletionCallback and CancellationCallback.
// Nil fields are ignored.
type Callbacks struct {
	Success   func(p *Packet, result any)
	Failure   func(p *Packet, err error)
	Cancelled func(p *Packet)
}

func (c Callbacks) OnSuccess(p *Packet, result any) {
	if c.Success != nil {
		c.Success(p, result)
	}
}

func (c Callbacks) OnFailure(p *Packet, err error) {
	if c.Failure != nil {
		c.Failure(p, err)
	}
}

func (c Callbacks) OnCancel(p *Packet) {
	if c.Cancelled != nil {
		c.Cancelled(p)
	}
}

// Breadcrumb records one applied step.
type Breadcrumb struct {
	Step   string
	Action ActionKind
	At     time.Time
}

// Fiber is a logical thread of execution driving a step chain. It is not
// bound to a goroutine: while suspended it holds no goroutine at all.
type Fiber interface {
	// ID is unique within the owning engine.
	ID() int64
	Name() string

	// Context is cancelled when the fiber completes or is cancelled.
	Context() context.Context
	Status() Status

	// Start schedules a fiber obtained from Engine.CreateFiber. A second
	// call returns ErrFiberStarted.
	Start(head Step, p *Packet, cb CompletionCallback) error

	// Resume wakes a suspended fiber. If the fiber has not suspended yet the
	// wake-up is latched and consumed by its next Suspend. A non-nil p
	// replaces the fiber's packet when the wake-up is consumed.
	Resume(p *Packet)

	// Cancel moves the fiber to StatusCancelled. It returns false when the
	// fiber had already finished.
	Cancel() bool

	// CreateChild starts a child fiber. A nil p gives the child a copy of the
	// parent's packet. The parent does not complete before its children.
	CreateChild(head Step, p *Packet, cb CompletionCallback) Fiber

	Parent() Fiber
	Children() []Fiber

	// Component returns an auxiliary object registered for the lifetime of
	// the fiber. SetComponent with a nil value removes the entry.
	Component(name string) (any, bool)
	SetComponent(name string, v any)

	Breadcrumbs() []Breadcrumb
	LastAction() NextAction

	// Packet returns the current packet. Only the fiber's own steps may
	// mutate it.
	Packet() *Packet

	String() string
}

// ComponentOf returns the component registered under name as T.
func ComponentOf[T any](f Fiber, name string) (T, bool) {
	var zero T
	v, ok := f.Component(name)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
