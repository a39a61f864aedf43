package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/petrijr/skein/pkg/api"
	"github.com/petrijr/skein/pkg/log"
)

// Scheduler runs delayed functions on a single goroutine. Scheduling and
// cancelling never block, so both are safe to call from fiber steps and
// callbacks.
type Scheduler struct {
	now       Clock
	makeTimer TimerConstructor
	logger    *slog.Logger

	mu    sync.Mutex
	tasks *TaskHeap
	seq   uint64
	wake  chan struct{}
}

var _ api.DelayScheduler = (*Scheduler)(nil)

// New creates a scheduler using the provided clock and timer constructor
func New(now Clock, makeTimer TimerConstructor) *Scheduler {
	return &Scheduler{
		now:       now,
		makeTimer: makeTimer,
		logger:    slog.Default(),
		tasks:     NewTaskHeap(),
		wake:      make(chan struct{}, 1),
	}
}

// NewDefault creates a scheduler on the system clock
func NewDefault() *Scheduler {
	return New(time.Now, NewTimer)
}

// WithLogger sets the logger used for panicking tasks
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// ScheduleOnce runs fn once delay has elapsed
func (s *Scheduler) ScheduleOnce(delay time.Duration, fn func()) api.Cancelable {
	return s.Schedule(s.now().Add(delay), fn)
}

// Schedule runs fn at the requested time
func (s *Scheduler) Schedule(at time.Time, fn func()) *Task {
	t := &Task{Func: fn, At: at, owner: s, index: -1}
	s.mu.Lock()
	s.seq++
	t.seq = s.seq
	s.tasks.Insert(t)
	s.mu.Unlock()
	s.signal()
	return t
}

// Cancel prevents t from running, reporting whether it was still pending
func (t *Task) Cancel() bool {
	s := t.owner
	if s == nil {
		return false
	}
	s.mu.Lock()
	removed := s.tasks.Remove(t)
	s.mu.Unlock()
	if removed {
		s.signal()
	}
	return removed
}

// Len returns the number of pending tasks
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.Len()
}

// Run processes scheduled tasks until the context is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	timer := s.makeTimer(0)
	var timerCh <-chan time.Time

	resetTimer := func() {
		s.mu.Lock()
		next := s.tasks.Peek()
		var at time.Time
		if next != nil {
			at = next.At
		}
		s.mu.Unlock()

		if next == nil {
			timer.Stop()
			timerCh = nil
			return
		}
		timer.Reset(at.Sub(s.now()))
		timerCh = timer.Channel()
	}

	resetTimer()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			resetTimer()
		case <-timerCh:
			for _, t := range s.due() {
				s.run(t)
			}
			resetTimer()
		}
	}
}

func (s *Scheduler) due() []*Task {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Task
	for {
		t := s.tasks.Peek()
		if t == nil || t.At.After(now) {
			return out
		}
		out = append(out, s.tasks.PopTask())
	}
}

func (s *Scheduler) run(t *Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked", log.Error(api.RecoveredError(r)))
		}
	}()
	t.Func()
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
