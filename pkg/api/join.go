package api

import (
	"errors"
	"sync"
)

// JoinPolicy controls how a ForkJoin step waits for its children.
type JoinPolicy uint8

const (
	// JoinAll waits for every child. Any failure fails the parent with a
	// *ChildFailedError.
	JoinAll JoinPolicy = iota

	// JoinAny resumes the parent with the first successful child and cancels
	// the rest. The parent fails only when every child fails.
	JoinAny

	// JoinNone continues immediately. The parent still does not complete
	// before its children.
	JoinNone
)

func (p JoinPolicy) String() string {
	switch p {
	case JoinAll:
		return "all"
	case JoinAny:
		return "any"
	case JoinNone:
		return "none"
	default:
		return "unknown"
	}
}

// Branch is one child of a ForkJoin step.
type Branch struct {
	Name string
	Step Step

	// Packet derives the child's packet from the parent's. Nil gives the
	// child a copy.
	Packet func(parent *Packet) *Packet
}

// ForkJoin starts one child fiber per branch and joins them according to
// policy. Under JoinAll the children's results are stored under resultsKey
// as a []any in branch order; under JoinAny the winning result is stored.
func ForkJoin(policy JoinPolicy, branches []Branch, resultsKey string, next Step) Step {
	return &forkStep{policy: policy, branches: branches, key: resultsKey, next: next}
}

// Fork returns a StepFactory for ForkJoin.
func Fork(policy JoinPolicy, resultsKey string, branches ...Branch) StepFactory {
	return func(next Step) Step {
		return ForkJoin(policy, branches, resultsKey, next)
	}
}

type forkStep struct {
	policy   JoinPolicy
	branches []Branch
	key      string
	next     Step
}

func (s *forkStep) Name() string { return "fork." + s.policy.String() }

func (s *forkStep) Apply(f Fiber, p *Packet) NextAction {
	if s.next == nil {
		return Throw{Err: ErrNoNextStep}
	}
	if len(s.branches) == 0 {
		if s.policy == JoinAll && s.key != "" {
			p.Put(s.key, []any{})
		}
		return Continue{Next: s.next}
	}

	state := &joinState{
		parent:    f,
		policy:    s.policy,
		results:   make([]any, len(s.branches)),
		errs:      make([]error, len(s.branches)),
		remaining: len(s.branches),
		winner:    -1,
	}
	for i, b := range s.branches {
		cp := p.Copy()
		if b.Packet != nil {
			cp = b.Packet(p)
		}
		child := f.CreateChild(b.Step, cp, &joinCallback{state: state, index: i})
		state.addChild(child)
	}

	if s.policy == JoinNone {
		return Continue{Next: s.next}
	}
	return Suspend{Next: &joinStep{state: state, key: s.key, next: s.next}}
}

var errNoWinner = errors.New("skein: no child succeeded")

type joinState struct {
	parent Fiber
	policy JoinPolicy

	mu        sync.Mutex
	children  []Fiber
	results   []any
	errs      []error
	remaining int
	winner    int
	resumed   bool
}

func (s *joinState) addChild(c Fiber) {
	s.mu.Lock()
	s.children = append(s.children, c)
	lost := s.policy == JoinAny && s.winner >= 0
	s.mu.Unlock()
	if lost {
		c.Cancel()
	}
}

func (s *joinState) record(i int, result any, err error) {
	var losers []Fiber

	s.mu.Lock()
	s.results[i] = result
	s.errs[i] = err
	s.remaining--

	wake := false
	switch s.policy {
	case JoinAll:
		wake = s.remaining == 0
	case JoinAny:
		if err == nil && s.winner < 0 {
			s.winner = i
			wake = true
			for j, c := range s.children {
				if j != i {
					losers = append(losers, c)
				}
			}
		} else if s.remaining == 0 {
			wake = true
		}
	}
	if wake && !s.resumed && s.policy != JoinNone {
		s.resumed = true
	} else {
		wake = false
	}
	s.mu.Unlock()

	for _, c := range losers {
		c.Cancel()
	}
	if wake {
		s.parent.Resume(nil)
	}
}

type joinCallback struct {
	state *joinState
	index int
}

func (c *joinCallback) OnSuccess(_ *Packet, result any) { c.state.record(c.index, result, nil) }
func (c *joinCallback) OnFailure(_ *Packet, err error)  { c.state.record(c.index, nil, err) }
func (c *joinCallback) OnCancel(_ *Packet)              { c.state.record(c.index, nil, ErrCancelled) }

type joinStep struct {
	state *joinState
	key   string
	next  Step
}

func (s *joinStep) Name() string { return "join" }

func (s *joinStep) Apply(_ Fiber, p *Packet) NextAction {
	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.resumed {
		// Woken by someone other than the children; keep waiting.
		return Suspend{Next: s}
	}
	if st.policy == JoinAny {
		if st.winner < 0 {
			errs := nonNil(st.errs)
			if len(errs) == 0 {
				errs = []error{errNoWinner}
			}
			return Throw{Err: &ChildFailedError{Errs: errs}}
		}
		if s.key != "" {
			p.Put(s.key, st.results[st.winner])
		}
		return Continue{Next: s.next}
	}

	if errs := nonNil(st.errs); len(errs) > 0 {
		return Throw{Err: &ChildFailedError{Errs: errs}}
	}
	if s.key != "" {
		p.Put(s.key, append([]any(nil), st.results...))
	}
	return Continue{Next: s.next}
}

func nonNil(errs []error) []error {
	var out []error
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
