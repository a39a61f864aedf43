package api

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

var (
	ErrNoNextStep       = errors.New("skein: action has no next step")
	ErrNilStep          = errors.New("skein: nil step")
	ErrNilAction        = errors.New("skein: step returned nil action")
	ErrNilThrow         = errors.New("skein: throw without error")
	ErrFiberStarted     = errors.New("skein: fiber already started")
	ErrFiberNotFound    = errors.New("skein: fiber not found")
	ErrCancelled        = errors.New("skein: fiber cancelled")
	ErrRetriesExhausted = errors.New("skein: retries exhausted")
	ErrCallTimeout      = errors.New("skein: call timed out")
	ErrEngineStopped    = errors.New("skein: engine stopped")
)

// RetriesExhaustedError is delivered to the failure callback when a retry
// budget runs out. It matches ErrRetriesExhausted and unwraps to the last
// failure.
type RetriesExhaustedError struct {
	Retries int
	Cause   error
}

func (e *RetriesExhaustedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("skein: retries exhausted after %d retries", e.Retries)
	}
	return fmt.Sprintf("skein: retries exhausted after %d retries: %v", e.Retries, e.Cause)
}

func (e *RetriesExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Cause
}

// PanicError carries a non-error value recovered from a panicking step.
// A step that panics with an error value fails the fiber with that error.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("skein: step panicked: %v", e.Value)
}

// RecoveredError converts a recovered panic value into the error delivered
// to the failure callback.
func RecoveredError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &PanicError{Value: r, Stack: debug.Stack()}
}

// ChildFailedError reports the failures of child fibers joined by ForkJoin.
type ChildFailedError struct {
	Errs []error
}

func (e *ChildFailedError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("skein: %d child fiber(s) failed: %s", len(e.Errs), strings.Join(msgs, "; "))
}

func (e *ChildFailedError) Unwrap() []error {
	return e.Errs
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as a temporary failure that may succeed on retry.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err, or anything it wraps, was marked with
// Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

type conflictError struct{ err error }

func (e *conflictError) Error() string { return e.err.Error() }
func (e *conflictError) Unwrap() error { return e.err }

// Conflict marks err as a conflicting-state failure, handled by the conflict
// step of an AsyncRequestStep when one is configured.
func Conflict(err error) error {
	if err == nil {
		return nil
	}
	return &conflictError{err: err}
}

// IsConflict reports whether err was marked with Conflict.
func IsConflict(err error) bool {
	var c *conflictError
	return errors.As(err, &c)
}
