// Package skein provides a lightweight, embeddable fiber engine for Go.
//
// Skein runs large numbers of logical threads of execution, called fibers,
// over a small pool of goroutines. A fiber that waits for an external call,
// a timer or a resume signal holds no goroutine at all, so a process can
// keep hundreds of thousands of in-flight operations parked cheaply.
//
// # Core Concepts
//
// The skein programming model is intentionally small:
//
//  1. Engine
//  2. Fiber
//  3. Step and NextAction
//  4. Packet
//  5. ChainBuilder
//  6. Runtime
//
// # Engine
//
// The Engine owns a fixed worker pool and a delayed scheduler shared by its
// fibers. It provides APIs to:
//   - start fibers
//   - look fibers up and resume them by id
//   - stop, cancelling every live fiber
//
// # Fiber
//
// A fiber drives a chain of steps. At any moment at most one goroutine runs
// a fiber's steps, and a fiber completes exactly once: either its
// CompletionCallback sees success or failure, or it is cancelled. Fibers may
// start child fibers; a parent never completes before its children, and a
// failing parent cancels the children that are still running.
//
// # Step and NextAction
//
// Applying a Step yields one of six next actions:
//
//   - Continue moves to the next step on the same goroutine
//   - Suspend parks the fiber until Resume
//   - Invoke starts an external call and parks until it reports back
//   - RetryAction re-applies a step after a delay
//   - Done and Throw complete the fiber
//
// Steps must not block. Anything that waits is expressed as Invoke, Suspend
// or a delayed retry.
//
// # Packet
//
// A Packet is the mutable key/value context shared by a fiber's steps. It
// needs no locking because a fiber's steps never run concurrently.
//
// # ChainBuilder
//
// ChainBuilder is the fluent API used to define step chains:
//
//	chain := skein.New("PlaceOrder").
//	    Then("validate", validate).
//	    RequestWithRetry("charge", chargeCard, skein.Retry(3).WithJitter(1, 5, time.Second)).
//	    WaitForResume("approval", notifyApprover).
//	    Then("ship", ship)
//
//	result, err := skein.Run(ctx, engine, chain.Build(), packet)
//
// Request steps retry transient failures (see Transient) with jittered
// delays, and hand conflicts (see Conflict) to an optional conflict step.
//
// # Runtime
//
// Runtime wires an Engine to a Config loaded from YAML and SKEIN_*
// environment variables, with JSON logging, an optional fiber history in
// memory, SQLite or Redis, Prometheus metrics and OpenTelemetry tracing.
//
// Skein is not a durable workflow engine: in-flight fibers live in memory
// and are lost when the process exits. The history store is an audit trail,
// not a recovery log.
//
// For examples, see the /examples directory.
package skein
