package testutil

import (
	"sync"
	"time"

	"github.com/petrijr/skein/pkg/api"
)

// ManualScheduler is an api.DelayScheduler that only runs tasks when the
// test fires them, and records every requested delay.
type ManualScheduler struct {
	mu     sync.Mutex
	tasks  []*manualTask
	delays []time.Duration
	signal chan struct{}
}

type manualTask struct {
	owner *ManualScheduler
	delay time.Duration
	fn    func()
	done  bool
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{signal: make(chan struct{}, 1)}
}

var _ api.DelayScheduler = (*ManualScheduler)(nil)

func (s *ManualScheduler) ScheduleOnce(delay time.Duration, fn func()) api.Cancelable {
	t := &manualTask{owner: s, delay: delay, fn: fn}
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.delays = append(s.delays, delay)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
	return t
}

func (t *manualTask) Cancel() bool {
	s := t.owner
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// Delays returns every delay requested so far.
func (s *ManualScheduler) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// Pending returns the number of tasks neither fired nor cancelled.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.done {
			n++
		}
	}
	return n
}

// FireAll runs every pending task on a new goroutine each and returns how
// many were fired.
func (s *ManualScheduler) FireAll() int {
	s.mu.Lock()
	var due []*manualTask
	for _, t := range s.tasks {
		if !t.done {
			t.done = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		go t.fn()
	}
	return len(due)
}

// WaitPending blocks until at least n tasks are pending or timeout elapses,
// and reports whether they are.
func (s *ManualScheduler) WaitPending(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if s.Pending() >= n {
			return true
		}
		select {
		case <-s.signal:
		case <-deadline:
			return s.Pending() >= n
		case <-time.After(5 * time.Millisecond):
		}
	}
}
