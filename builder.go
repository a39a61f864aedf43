package skein

import (
	"fmt"
	"time"

	"github.com/petrijr/skein/pkg/api"
)

// ChainBuilder provides a fluent API for defining step chains:
//
//	order := skein.New("PlaceOrder").
//	    Then("validate", validate).
//	    Request("charge", chargeCard).
//	    WaitForResume("approval", notifyApprover).
//	    Then("ship", ship)
//
//	f, err := engine.StartFiber(order.Build(), packet, callbacks)
//
// Every method appends one step; Build links them head to tail and ends the
// chain with the step that completes the fiber with the value stored under
// the result key.
type ChainBuilder struct {
	name  string
	steps []StepFactory
}

// New creates a new chain builder with the given name.
func New(name string) *ChainBuilder {
	return &ChainBuilder{name: name}
}

// Name returns the chain name.
func (b *ChainBuilder) Name() string {
	return b.name
}

// Len returns the number of steps added so far.
func (b *ChainBuilder) Len() int {
	return len(b.steps)
}

// Step appends an arbitrary step factory.
func (b *ChainBuilder) Step(factory StepFactory) *ChainBuilder {
	if factory == nil {
		panic(fmt.Sprintf("skein: chain %q: nil step factory at position %d", b.name, len(b.steps)))
	}
	b.steps = append(b.steps, factory)
	return b
}

// Then appends a step that runs fn and continues, or fails the fiber with
// the error fn returns.
func (b *ChainBuilder) Then(name string, fn func(f Fiber, p *Packet) error) *ChainBuilder {
	if name == "" {
		panic("skein: step name must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("skein: step %q has nil function", name))
	}
	return b.Step(api.Then(name, fn))
}

// Request appends an AsyncRequestStep that calls factory and stores its
// result under the result key.
func (b *ChainBuilder) Request(name string, factory CallFactory, opts ...RequestOption) *ChainBuilder {
	if name == "" {
		panic("skein: step name must not be empty")
	}
	if factory == nil {
		panic(fmt.Sprintf("skein: request %q has nil call factory", name))
	}
	all := append([]RequestOption{api.WithStepName(name)}, opts...)
	return b.Step(api.Request(factory, all...))
}

// RequestWithRetry appends a request step governed by the given retry policy.
func (b *ChainBuilder) RequestWithRetry(name string, factory CallFactory, retry RetryBuilder, opts ...RequestOption) *ChainBuilder {
	all := append([]RequestOption{api.WithRetryPolicy(retry.Policy())}, opts...)
	return b.Request(name, factory, all...)
}

// Sleep appends a step that parks the fiber for d.
func (b *ChainBuilder) Sleep(d time.Duration) *ChainBuilder {
	return b.Step(api.Sleep(d))
}

// WaitForResume appends a step that suspends the fiber until it is resumed.
func (b *ChainBuilder) WaitForResume(name string, onSuspend func(f Fiber)) *ChainBuilder {
	return b.Step(api.WaitForResume(name, onSuspend))
}

// If adds a conditional branch. Either branch may be nil to fall through.
func (b *ChainBuilder) If(cond func(p *Packet) bool, then, otherwise *ChainBuilder) *ChainBuilder {
	if cond == nil {
		panic("skein: nil condition")
	}
	return b.Step(api.If(cond, then.factory(), otherwise.factory()))
}

// While repeats body as long as cond holds.
func (b *ChainBuilder) While(cond func(p *Packet) bool, body *ChainBuilder) *ChainBuilder {
	if cond == nil {
		panic("skein: nil condition")
	}
	if body == nil || body.Len() == 0 {
		panic("skein: while body must not be empty")
	}
	return b.Step(api.While(cond, body.factory()))
}

// Fork starts one child fiber per branch and joins them under policy.
func (b *ChainBuilder) Fork(policy JoinPolicy, resultsKey string, branches ...Branch) *ChainBuilder {
	return b.Step(api.Fork(policy, resultsKey, branches...))
}

// Result stores the value computed by fn under the result key.
func (b *ChainBuilder) Result(fn func(p *Packet) any) *ChainBuilder {
	return b.Step(api.Result(fn))
}

// Build links the steps and returns the head of the chain.
func (b *ChainBuilder) Build() Step {
	return api.Chain(b.steps...)
}

// Branch wraps the built chain as a fork branch.
func (b *ChainBuilder) Branch() Branch {
	return Branch{Name: b.name, Step: b.Build()}
}

// factory composes the builder's steps in front of whatever follows it, so
// a builder can be nested inside If and While.
func (b *ChainBuilder) factory() StepFactory {
	if b == nil || len(b.steps) == 0 {
		return nil
	}
	steps := append([]StepFactory(nil), b.steps...)
	return func(next Step) Step {
		for i := len(steps) - 1; i >= 0; i-- {
			next = steps[i](next)
		}
		return next
	}
}
