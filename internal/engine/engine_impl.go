package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/petrijr/skein/internal/scheduler"
	"github.com/petrijr/skein/internal/taskqueue"
	"github.com/petrijr/skein/pkg/api"
	"github.com/petrijr/skein/pkg/log"
	"github.com/petrijr/skein/pkg/worker"
)

// defaultBreadcrumbLimit applies when Verbose is set without a limit.
const defaultBreadcrumbLimit = 64

// engineImpl multiplexes fibers over a fixed worker pool.
type engineImpl struct {
	id       string
	observer api.Observer
	logger   *slog.Logger
	crumbs   int

	pool  *worker.Pool
	queue taskqueue.Queue
	sched api.DelayScheduler

	fibers *fiberRegistry
	nextID atomic.Int64

	// root is the parent context of every top-level fiber.
	root       context.Context
	cancelRoot context.CancelFunc

	stopSched context.CancelFunc
	schedDone chan struct{}

	stopOnce sync.Once
	stopped  atomic.Bool
}

// Config describes how to construct an engineImpl.
// Only used inside this package; external callers use the helper functions.
type Config struct {
	// ID names the engine in events and logs. Defaults to a random UUID.
	ID string

	// Workers is the pool size. Defaults to GOMAXPROCS.
	Workers int

	// Queue is the run queue. Defaults to an unbounded in-memory queue.
	Queue taskqueue.Queue

	// Scheduler runs delayed retries. Defaults to an internal scheduler
	// driven by the wall clock and stopped with the engine.
	Scheduler api.DelayScheduler

	Observer api.Observer
	Logger   *slog.Logger

	// BreadcrumbLimit bounds each fiber's breadcrumb trail. Zero disables
	// breadcrumbs unless Verbose is set.
	BreadcrumbLimit int
	Verbose         bool
}

// NewEngine creates an engine with default settings.
func NewEngine() api.Engine {
	return NewEngineWithConfig(Config{})
}

// NewEngineWithConfig creates a new Engine using the given configuration.
// The worker pool and the scheduler start immediately; call Stop to release
// them.
func NewEngineWithConfig(cfg Config) api.Engine {
	return newEngine(cfg)
}

func newEngine(cfg Config) *engineImpl {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queue := cfg.Queue
	if queue == nil {
		queue = taskqueue.NewInMemoryQueue(1024)
	}
	crumbs := cfg.BreadcrumbLimit
	if crumbs <= 0 && cfg.Verbose {
		crumbs = defaultBreadcrumbLimit
	}

	e := &engineImpl{
		id:       id,
		observer: obs,
		logger:   logger.With(log.EngineID(id)),
		crumbs:   crumbs,
		queue:    queue,
		fibers:   newFiberRegistry(),
	}
	e.root, e.cancelRoot = context.WithCancel(context.Background())

	e.sched = cfg.Scheduler
	if e.sched == nil {
		s := scheduler.NewDefault().WithLogger(e.logger)
		ctx, cancel := context.WithCancel(context.Background())
		e.sched = s
		e.stopSched = cancel
		e.schedDone = make(chan struct{})
		go func() {
			defer close(e.schedDone)
			s.Run(ctx)
		}()
	}

	e.pool = worker.NewWithConfig(queue, worker.Config{Logger: e.logger})
	// A fresh pool cannot already be running.
	_ = e.pool.Start(context.Background(), workers)
	return e
}

var _ api.Engine = (*engineImpl)(nil)

func (e *engineImpl) ID() string { return e.id }

func (e *engineImpl) CreateFiber() api.Fiber {
	return e.newFiber(nil)
}

func (e *engineImpl) StartFiber(head api.Step, p *api.Packet, cb api.CompletionCallback) (api.Fiber, error) {
	f := e.newFiber(nil)
	if err := f.Start(head, p, cb); err != nil {
		return nil, err
	}
	return f, nil
}

func (e *engineImpl) Lookup(id int64) (api.Fiber, bool) {
	f, ok := e.fibers.Get(id)
	if !ok {
		return nil, false
	}
	return f, true
}

func (e *engineImpl) Resume(id int64, p *api.Packet) error {
	f, ok := e.fibers.Get(id)
	if !ok {
		return fmt.Errorf("resume fiber %d: %w", id, api.ErrFiberNotFound)
	}
	f.Resume(p)
	return nil
}

func (e *engineImpl) Active() int {
	return e.fibers.Len()
}

// Stop cancels every live fiber, then stops the scheduler and the pool.
func (e *engineImpl) Stop(ctx context.Context) error {
	var err error
	e.stopOnce.Do(func() {
		e.stopped.Store(true)
		for _, f := range e.fibers.Snapshot() {
			f.Cancel()
		}
		e.cancelRoot()

		if e.stopSched != nil {
			e.stopSched()
			select {
			case <-e.schedDone:
			case <-ctx.Done():
			}
		}
		if err = e.pool.Stop(ctx); err == nil {
			e.drain()
		}
	})
	return err
}

// drain runs the tasks left on the queue after the workers exited. Every
// fiber is cancelled by then, so each task only reports its cancellation.
func (e *engineImpl) drain() {
	ctx := context.Background()
	for e.queue.Len() > 0 {
		task, err := e.queue.Dequeue(ctx)
		if err != nil || task == nil {
			return
		}
		if task.Run != nil {
			task.Run(ctx)
		}
	}
}

func (e *engineImpl) newFiber(parent *fiber) *fiber {
	id := e.nextID.Add(1)
	parentCtx := e.root
	if parent != nil {
		parentCtx = parent.ctx
	}
	ctx, cancel := context.WithCancel(parentCtx)
	f := &fiber{
		id:        id,
		name:      fmt.Sprintf("fiber-%d", id),
		eng:       e,
		parent:    parent,
		ctx:       ctx,
		cancelCtx: cancel,
	}
	if e.crumbs > 0 {
		f.crumbs = newBreadcrumbs(e.crumbs)
	}
	return f
}

func (e *engineImpl) submit(f *fiber, typ taskqueue.TaskType) error {
	if e.stopped.Load() {
		return api.ErrEngineStopped
	}
	err := e.pool.Submit(context.Background(), taskqueue.Task{
		Type:    typ,
		FiberID: f.id,
		Run:     f.run,
	})
	if err != nil && !errors.Is(err, api.ErrEngineStopped) {
		e.logger.Error("fiber schedule failed", log.FiberID(f.id), log.Error(err))
	}
	return err
}
