package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/skein/internal/taskqueue"
	"github.com/petrijr/skein/pkg/api"
	"github.com/petrijr/skein/pkg/log"
)

var (
	ErrAlreadyStarted  = errors.New("skein: worker pool already started")
	ErrShutdownTimeout = errors.New("skein: worker pool shutdown timed out")
)

// Config configures a Pool.
type Config struct {
	// Logger receives task failures. Defaults to slog.Default().
	Logger *slog.Logger
}

// Pool runs fiber tasks from a Queue on a fixed set of goroutines.
type Pool struct {
	queue  taskqueue.Queue
	logger *slog.Logger

	processed atomic.Int64
	panics    atomic.Int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	stopped bool
	size    int
}

// New creates a Pool consuming queue.
func New(queue taskqueue.Queue) *Pool {
	return NewWithConfig(queue, Config{})
}

// NewWithConfig creates a Pool with an explicit Config.
func NewWithConfig(queue taskqueue.Queue, cfg Config) *Pool {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pool{
		queue:  queue,
		logger: cfg.Logger,
	}
}

// Submit enqueues a task. The task gets an id when it has none.
func (p *Pool) Submit(ctx context.Context, t taskqueue.Task) error {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return api.ErrEngineStopped
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	return p.queue.Enqueue(ctx, t)
}

// Start launches concurrency goroutines that call ProcessOne until Stop.
//
// If Start is called more than once without Stop, it returns an error.
func (p *Pool) Start(ctx context.Context, concurrency int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running || p.stopped {
		return ErrAlreadyStarted
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.size = concurrency

	p.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer p.wg.Done()

			for {
				processed, err := p.ProcessOne(ctx)
				if err == nil || processed {
					// Panics are logged where they are recovered.
					continue
				}
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				p.logger.Error("worker dequeue failed", log.Error(err))
			}
		}()
	}

	return nil
}

// ProcessOne pulls a single task from the queue and runs it.
// Returns (processed, error):
//   - processed == false: no task was obtained (ctx cancelled or dequeue error)
//   - processed == true: a task ran; err is non-nil when it panicked
func (p *Pool) ProcessOne(ctx context.Context) (processed bool, err error) {
	task, err := p.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil || task.Run == nil {
		return task != nil, nil
	}

	defer func() {
		processed = true
		p.processed.Add(1)
		if r := recover(); r != nil {
			p.panics.Add(1)
			err = api.RecoveredError(r)
			p.logger.Error("worker task panicked",
				log.FiberID(task.FiberID),
				log.TaskType(task.Type),
				log.Error(err),
			)
		}
	}()
	task.Run(ctx)
	return true, nil
}

// Size returns the number of worker goroutines started.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Pending returns the number of queued tasks.
func (p *Pool) Pending() int {
	return p.queue.Len()
}

// Processed returns how many tasks have run, including panicking ones.
func (p *Pool) Processed() int64 {
	return p.processed.Load()
}

// Panics returns how many tasks panicked.
func (p *Pool) Panics() int64 {
	return p.panics.Load()
}

// Stop cancels all worker goroutines and waits for them to exit, giving up
// with ErrShutdownTimeout when ctx is done first. Further submissions fail
// with api.ErrEngineStopped.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ErrShutdownTimeout
	}
}
