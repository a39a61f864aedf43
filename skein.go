package skein

import (
	"github.com/petrijr/skein/internal/engine"
	"github.com/petrijr/skein/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	EngineConfig         = engine.Config
	Fiber                = api.Fiber
	Status               = api.Status
	Packet               = api.Packet
	Step                 = api.Step
	StepFunc             = api.StepFunc
	StepFactory          = api.StepFactory
	NextAction           = api.NextAction
	ActionKind           = api.ActionKind
	CompletionCallback   = api.CompletionCallback
	CancellationCallback = api.CancellationCallback
	Callbacks            = api.Callbacks
	Breadcrumb           = api.Breadcrumb
	RetryPolicy          = api.RetryPolicy
	RetryStrategy        = api.RetryStrategy
	CallFactory          = api.CallFactory
	CallFactoryFunc      = api.CallFactoryFunc
	CallCallback         = api.CallCallback
	PendingCall          = api.PendingCall
	CallResponse         = api.CallResponse
	RequestOption        = api.RequestOption
	JoinPolicy           = api.JoinPolicy
	Branch               = api.Branch
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
	FiberEvent           = api.FiberEvent
)

// The six next actions.

type (
	Continue    = api.Continue
	Suspend     = api.Suspend
	Invoke      = api.Invoke
	RetryAction = api.Retry
	Done        = api.Done
	Throw       = api.Throw
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export status values and join policies for convenience.

const (
	StatusNotComplete = api.StatusNotComplete
	StatusDone        = api.StatusDone
	StatusCancelled   = api.StatusCancelled

	JoinAll  = api.JoinAll
	JoinAny  = api.JoinAny
	JoinNone = api.JoinNone
)

// Errors callers commonly match with errors.Is.
var (
	ErrCancelled        = api.ErrCancelled
	ErrRetriesExhausted = api.ErrRetriesExhausted
	ErrCallTimeout      = api.ErrCallTimeout
	ErrFiberNotFound    = api.ErrFiberNotFound
	ErrEngineStopped    = api.ErrEngineStopped
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewEngine returns an Engine with a GOMAXPROCS-sized worker pool.
func NewEngine() Engine {
	return engine.NewEngine()
}

// NewEngineWithObserver returns an Engine that reports to obs.
func NewEngineWithObserver(obs Observer) Engine {
	return engine.NewEngineWithConfig(engine.Config{Observer: obs})
}

// NewEngineWithConfig returns an Engine built from cfg.
func NewEngineWithConfig(cfg EngineConfig) Engine {
	return engine.NewEngineWithConfig(cfg)
}

// NewPacket returns an empty Packet.
func NewPacket() *Packet {
	return api.NewPacket()
}

// Value returns the value stored under key converted to T.
func Value[T any](p *Packet, key string) (T, bool) {
	return api.Value[T](p, key)
}

// ComponentOf returns the fiber component registered under name as T.
func ComponentOf[T any](f Fiber, name string) (T, bool) {
	return api.ComponentOf[T](f, name)
}

// Transient marks err as retryable by request steps.
func Transient(err error) error {
	return api.Transient(err)
}

// Conflict marks err for the conflict step of a request.
func Conflict(err error) error {
	return api.Conflict(err)
}

// Convenience helpers that just forward to the underlying Engine.

// Resume delivers a wake-up to the fiber with the given id.
func Resume(eng Engine, id int64, p *Packet) error {
	return eng.Resume(id, p)
}

// Cancel cancels the live fiber with the given id.
func Cancel(eng Engine, id int64) error {
	f, ok := eng.Lookup(id)
	if !ok {
		return ErrFiberNotFound
	}
	f.Cancel()
	return nil
}
