// Package persistence stores the audit history of fibers.
//
// Fibers themselves are never persisted: their continuation is a Go closure.
// What is kept is an append-only list of FiberEvents per fiber, written by a
// Recorder attached to the engine as an observer.
package persistence

import "errors"

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown history backend")
