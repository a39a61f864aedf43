package api

import (
	"fmt"
	"reflect"
	"strings"
)

// Step is a single node of a pipeline. Apply must not block indefinitely:
// work that waits on something external returns Invoke or Suspend instead.
// Steps communicate only through the Packet and the returned NextAction.
type Step interface {
	Apply(f Fiber, p *Packet) NextAction
}

// StepFunc adapts a plain function to Step.
type StepFunc func(f Fiber, p *Packet) NextAction

func (fn StepFunc) Apply(f Fiber, p *Packet) NextAction {
	return fn(f, p)
}

// Named is implemented by steps that report their own name in breadcrumbs,
// events and logs.
type Named interface {
	Name() string
}

type namedStep struct {
	name string
	fn   StepFunc
}

func (s *namedStep) Apply(f Fiber, p *Packet) NextAction { return s.fn(f, p) }
func (s *namedStep) Name() string                        { return s.name }

// NamedStep wraps fn in a Step called name.
func NamedStep(name string, fn StepFunc) Step {
	return &namedStep{name: name, fn: fn}
}

// StepName returns the name reported by s, or its Go type when s does not
// implement Named.
func StepName(s Step) string {
	if s == nil {
		return "<nil>"
	}
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	t := reflect.TypeOf(s)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.String()
	if i := strings.LastIndexByte(name, '.'); i >= 0 && t.Name() != "" {
		name = name[i+1:]
	}
	return name
}

// StepFactory builds a step given the step that should follow it.
type StepFactory func(next Step) Step

// Chain links factories head to tail and returns the head. The last factory
// is given End() as its next step, so a chain of Continue steps completes
// with the value stored under KeyResult.
func Chain(factories ...StepFactory) Step {
	next := End()
	for i := len(factories) - 1; i >= 0; i-- {
		if factories[i] == nil {
			panic(fmt.Sprintf("skein: nil step factory at index %d", i))
		}
		next = factories[i](next)
	}
	return next
}

type endStep struct{}

func (endStep) Name() string { return "end" }

func (endStep) Apply(_ Fiber, p *Packet) NextAction {
	v, _ := p.Get(KeyResult)
	return Done{Result: v}
}

// End returns the terminal step used by Chain.
func End() Step { return endStep{} }

// Then returns a StepFactory that runs fn and continues to the next step,
// or throws the error fn returns.
func Then(name string, fn func(f Fiber, p *Packet) error) StepFactory {
	return func(next Step) Step {
		return NamedStep(name, func(f Fiber, p *Packet) NextAction {
			if err := fn(f, p); err != nil {
				return Throw{Err: err}
			}
			return Continue{Next: next}
		})
	}
}
