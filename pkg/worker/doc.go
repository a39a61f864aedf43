// Package worker provides the goroutine pool that executes fiber tasks.
//
// A Pool consumes tasks from a taskqueue.Queue on a fixed number of
// goroutines. The engine submits one task each time a fiber becomes
// runnable: when it starts, when it is resumed after a suspension, and when
// a retry delay expires. The task runs the fiber until it parks again or
// finishes, so a pool of N workers executes at most N fibers at a time no
// matter how many are suspended.
//
// # Worker Responsibilities
//
// A worker is responsible for:
//
//   - Pulling the next runnable task from the queue
//   - Running it, recovering from panics so one task cannot stop the pool
//   - Logging task failures with the fiber and task type attached
//
// Workers never block on I/O on behalf of a fiber. Steps that wait for an
// external call return an Invoke action instead, and the fiber is resubmitted
// when the call reports back.
//
// # Shutdown
//
// Stop cancels the workers and waits for them to exit, bounded by the
// caller's context. Submissions after Stop fail with api.ErrEngineStopped.
//
// # Usage
//
// Most users never touch this package; the engine creates and owns its pool.
// It is exported for callers that want to drive a custom queue
// implementation or to run tasks by hand with ProcessOne.
package worker
