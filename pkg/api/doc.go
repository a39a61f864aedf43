// Package api contains the core building blocks used by the skein fiber
// engine: packets, steps, next actions, retry strategies, and the Fiber and
// Engine contracts.
//
// Most users interact with the higher-level skein package, which re-exports
// selected types and helpers from this package. The api package is intended
// for custom steps, custom call factories, and contributors extending the
// engine itself.
//
// # Steps and Next Actions
//
// A Step is one node of a pipeline. Applying it to a fiber and its Packet
// yields a NextAction that tells the engine how to proceed:
//
//   - Continue moves to the next step on the same goroutine.
//   - Invoke starts an external call and parks the fiber until it reports
//     back.
//   - Suspend parks the fiber until Fiber.Resume is called.
//   - Retry re-applies a step after a delay.
//   - Done and Throw complete the fiber.
//
// Steps must not block. Anything that waits on the outside world is expressed
// as Invoke or Suspend, so the goroutine goes back to the pool while the
// fiber waits.
//
// # Packets
//
// A Packet is the mutable context shared by every step of a fiber. It needs
// no locking because a fiber's steps never run concurrently.
//
// # Retries
//
// AsyncRequestStep wraps a CallFactory and retries transient failures under
// a RetryStrategy. DefaultRetryStrategy draws jittered delays from a
// RetryPolicy and can be stopped early through RetryStrategyListener.
//
// # Child Fibers
//
// ForkJoin starts child fibers and joins them under a JoinPolicy. A parent
// never completes before its children, and a failing parent cancels them.
//
// # Observability
//
// The Observer interface reports fiber lifecycle events. NoopObserver,
// CompositeObserver, LoggingObserver and BasicMetrics are provided here;
// Prometheus and OpenTelemetry observers live in pkg/telemetry.
package api
