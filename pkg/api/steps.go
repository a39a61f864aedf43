package api

import (
	"sync"
	"time"
)

// Sleep returns a StepFactory that parks the fiber for d without holding a
// goroutine, then continues to the next step.
func Sleep(d time.Duration) StepFactory {
	return func(next Step) Step {
		return NamedStep("sleep", func(Fiber, *Packet) NextAction {
			if next == nil {
				return Throw{Err: ErrNoNextStep}
			}
			return Retry{Step: next, Delay: d}
		})
	}
}

// WaitForResume returns a StepFactory that suspends the fiber until
// Fiber.Resume or Engine.Resume is called. onSuspend, when non-nil, runs at
// the moment of suspension.
func WaitForResume(name string, onSuspend func(f Fiber)) StepFactory {
	return func(next Step) Step {
		return NamedStep(name, func(Fiber, *Packet) NextAction {
			return Suspend{Next: next, OnSuspend: onSuspend}
		})
	}
}

// If continues to then when cond holds and to otherwise when it does not.
// A nil branch continues to the step that follows the If.
func If(cond func(p *Packet) bool, then, otherwise StepFactory) StepFactory {
	return func(next Step) Step {
		thenStep, elseStep := next, next
		if then != nil {
			thenStep = then(next)
		}
		if otherwise != nil {
			elseStep = otherwise(next)
		}
		return NamedStep("if", func(_ Fiber, p *Packet) NextAction {
			if cond(p) {
				return Continue{Next: thenStep}
			}
			return Continue{Next: elseStep}
		})
	}
}

// While runs body repeatedly as long as cond holds, then continues to the
// next step. body is given the loop head as its next step.
func While(cond func(p *Packet) bool, body StepFactory) StepFactory {
	return func(next Step) Step {
		l := &loopStep{cond: cond, next: next}
		l.build = func() Step { return body(l) }
		return l
	}
}

type loopStep struct {
	cond  func(p *Packet) bool
	next  Step
	build func() Step

	once sync.Once
	body Step
}

func (l *loopStep) Name() string { return "while" }

func (l *loopStep) Apply(_ Fiber, p *Packet) NextAction {
	if !l.cond(p) {
		return Continue{Next: l.next}
	}
	l.once.Do(func() { l.body = l.build() })
	return Continue{Next: l.body}
}

// Result returns a StepFactory that stores the value computed by fn under
// KeyResult and continues.
func Result(fn func(p *Packet) any) StepFactory {
	return func(next Step) Step {
		return NamedStep("result", func(_ Fiber, p *Packet) NextAction {
			p.Put(KeyResult, fn(p))
			return Continue{Next: next}
		})
	}
}
