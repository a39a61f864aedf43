package api

import "time"

// ActionKind identifies the case of a NextAction.
type ActionKind uint8

const (
	ActionContinue ActionKind = iota + 1
	ActionSuspend
	ActionInvoke
	ActionRetry
	ActionDone
	ActionThrow
)

func (k ActionKind) String() string {
	switch k {
	case ActionContinue:
		return "continue"
	case ActionSuspend:
		return "suspend"
	case ActionInvoke:
		return "invoke"
	case ActionRetry:
		return "retry"
	case ActionDone:
		return "done"
	case ActionThrow:
		return "throw"
	default:
		return "unknown"
	}
}

// NextAction tells the fiber run loop what to do after a step has been
// applied. The only implementations are Continue, Suspend, Invoke, Retry,
// Done and Throw.
type NextAction interface {
	Kind() ActionKind
	isNextAction()
}

// Continue moves the cursor to Next and keeps running on the same goroutine.
type Continue struct {
	Next Step
}

// Suspend parks the fiber and releases its goroutine until Fiber.Resume is
// called; the fiber then resumes at Next. OnSuspend, when set, runs exactly
// once at the moment of suspension, so the caller can arrange the resume.
type Suspend struct {
	Next      Step
	OnSuspend func(f Fiber)
}

// Invoke starts Call, parks the fiber, and resumes it at Next once the call
// reports back. The CallResponse is stored under KeyResponse before Next runs.
type Invoke struct {
	Call AsyncCall
	Next Step
}

// Retry re-applies Step after Delay. A nil Step means the step that returned
// the action. When Strategy is set and reports exhaustion the fiber fails
// with a *RetriesExhaustedError instead.
type Retry struct {
	Step     Step
	Delay    time.Duration
	Strategy RetryStrategy
}

// Done completes the fiber successfully with Result.
type Done struct {
	Result any
}

// Throw completes the fiber with Err.
type Throw struct {
	Err error
}

func (Continue) Kind() ActionKind { return ActionContinue }
func (Suspend) Kind() ActionKind  { return ActionSuspend }
func (Invoke) Kind() ActionKind   { return ActionInvoke }
func (Retry) Kind() ActionKind    { return ActionRetry }
func (Done) Kind() ActionKind     { return ActionDone }
func (Throw) Kind() ActionKind    { return ActionThrow }

func (Continue) isNextAction() {}
func (Suspend) isNextAction()  {}
func (Invoke) isNextAction()   {}
func (Retry) isNextAction()    {}
func (Done) isNextAction()     {}
func (Throw) isNextAction()    {}

// KindOf returns the kind of a, or 0 for a nil action.
func KindOf(a NextAction) ActionKind {
	if a == nil {
		return 0
	}
	return a.Kind()
}
