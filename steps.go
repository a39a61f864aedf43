package skein

import (
	"context"
	"fmt"
	"time"

	"github.com/petrijr/skein/pkg/api"
)

// KeyResult is the packet key whose value completes a chain.
const KeyResult = api.KeyResult

// Chain links factories head to tail and returns the head.
func Chain(factories ...StepFactory) Step {
	return api.Chain(factories...)
}

// Then returns a step factory that runs fn and continues.
func Then(name string, fn func(f Fiber, p *Packet) error) StepFactory {
	return api.Then(name, fn)
}

// NamedStep gives fn a name for breadcrumbs and logs.
func NamedStep(name string, fn StepFunc) Step {
	return api.NamedStep(name, fn)
}

// Sleep parks the fiber for d without holding a goroutine.
func Sleep(d time.Duration) StepFactory {
	return api.Sleep(d)
}

// WaitForResume suspends the fiber until Resume is called.
func WaitForResume(name string, onSuspend func(f Fiber)) StepFactory {
	return api.WaitForResume(name, onSuspend)
}

// If continues to then when cond holds and to otherwise when it does not.
func If(cond func(p *Packet) bool, then, otherwise StepFactory) StepFactory {
	return api.If(cond, then, otherwise)
}

// While runs body as long as cond holds.
func While(cond func(p *Packet) bool, body StepFactory) StepFactory {
	return api.While(cond, body)
}

// Result stores the value computed by fn under KeyResult.
func Result(fn func(p *Packet) any) StepFactory {
	return api.Result(fn)
}

// Fork starts child fibers and joins them under policy.
func Fork(policy JoinPolicy, resultsKey string, branches ...Branch) StepFactory {
	return api.Fork(policy, resultsKey, branches...)
}

// Request wraps factory in an AsyncRequestStep.
func Request(factory CallFactory, opts ...RequestOption) StepFactory {
	return api.Request(factory, opts...)
}

// Request options.
var (
	WithStepName        = api.WithStepName
	WithResultKey       = api.WithResultKey
	WithRetryPolicy     = api.WithRetryPolicy
	WithRetryStrategy   = api.WithRetryStrategy
	WithConflictStep    = api.WithConflictStep
	WithCallTimeout     = api.WithCallTimeout
	WithClassifier      = api.WithClassifier
	WithSuccessHandler  = api.WithSuccessHandler
	NewAsyncRequestStep = api.NewAsyncRequestStep
)

// Typed wraps a strongly-typed function into a step. The input is read from
// inKey and the output stored under outKey. fn runs on the fiber's
// goroutine with the fiber's context, so it must not block on I/O; use
// Request for that.
//
// Example:
//
//	skein.Typed("total", "order", "total", func(ctx context.Context, o Order) (int, error) { ... })
func Typed[I, O any](name, inKey, outKey string, fn func(context.Context, I) (O, error)) StepFactory {
	return api.Then(name, func(f Fiber, p *Packet) error {
		raw, ok := p.Get(inKey)
		if !ok {
			return fmt.Errorf("skein: step %q: missing input %q", name, inKey)
		}
		in, ok := raw.(I)
		if !ok {
			var zero I
			return fmt.Errorf("skein: step %q: input %q is %T, want %T", name, inKey, raw, zero)
		}
		out, err := fn(f.Context(), in)
		if err != nil {
			return err
		}
		p.Put(outKey, out)
		return nil
	})
}
