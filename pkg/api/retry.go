package api

import (
	"math/rand/v2"
	"sync"
	"time"
)

// RetryStrategy decides whether and when a failed operation is retried.
// A strategy is stateful and belongs to one call site of one fiber.
type RetryStrategy interface {
	// Backoff records a failure and returns the delay before the next
	// attempt. ok is false when no further attempt is permitted.
	Backoff(err error) (delay time.Duration, ok bool)

	// Exhausted reports whether the strategy refuses further attempts.
	Exhausted() bool

	// Retries returns the number of failures recorded so far.
	Retries() int

	// Reset clears the failure count and any stop request.
	Reset()
}

// RetryStrategyListener is notified by external parties that want a
// strategy to stop retrying, for example when a dependency is known to be
// down. After StopRetrying the strategy reports exhaustion.
type RetryStrategyListener interface {
	StopRetrying()
}

// RetryPolicy configures a DefaultRetryStrategy.
//
// The delay before a retry is Scale multiplied by a random integer in
// [Low, High), capped at MaxDelay. Retries are permitted while the failure
// count stays below MaxRetries.
type RetryPolicy struct {
	MaxRetries int
	Low        int
	High       int
	Scale      time.Duration

	// MaxDelay caps each delay. Zero means no cap.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured:
// 5 retries, delays between 1s and 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		Low:        10,
		High:       50,
		Scale:      100 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

// NewStrategy returns a fresh strategy governed by p.
func (p RetryPolicy) NewStrategy() *DefaultRetryStrategy {
	return NewRetryStrategy(p)
}

// Delay draws one jittered delay from p.
func (p RetryPolicy) Delay() time.Duration {
	return p.delay(rand.IntN)
}

func (p RetryPolicy) delay(intN func(int) int) time.Duration {
	factor := p.Low
	if p.High > p.Low {
		factor += intN(p.High - p.Low)
	}
	d := time.Duration(factor) * p.Scale
	if d < 0 {
		d = 0
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// DefaultRetryStrategy is the jittered, bounded RetryStrategy. It is safe
// for concurrent use, so a listener may stop it from any goroutine.
type DefaultRetryStrategy struct {
	policy RetryPolicy
	intN   func(int) int

	mu      sync.Mutex
	retries int
	stopped bool
	lastErr error
}

var (
	_ RetryStrategy         = (*DefaultRetryStrategy)(nil)
	_ RetryStrategyListener = (*DefaultRetryStrategy)(nil)
)

// NewRetryStrategy returns a strategy governed by policy.
func NewRetryStrategy(policy RetryPolicy) *DefaultRetryStrategy {
	return &DefaultRetryStrategy{policy: policy, intN: rand.IntN}
}

// Policy returns the policy the strategy was built with.
func (s *DefaultRetryStrategy) Policy() RetryPolicy {
	return s.policy
}

func (s *DefaultRetryStrategy) Backoff(err error) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastErr = err
	if s.stopped {
		return 0, false
	}
	s.retries++
	if s.retries >= s.policy.MaxRetries {
		return 0, false
	}
	return s.policy.delay(s.intN), true
}

func (s *DefaultRetryStrategy) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped || s.retries >= s.policy.MaxRetries
}

func (s *DefaultRetryStrategy) Retries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}

// LastError returns the failure most recently passed to Backoff.
func (s *DefaultRetryStrategy) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *DefaultRetryStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries = 0
	s.stopped = false
	s.lastErr = nil
}

// StopRetrying makes the strategy report exhaustion from now on.
func (s *DefaultRetryStrategy) StopRetrying() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

// ExhaustedError builds the error a fiber fails with when strategy refuses
// another attempt.
func ExhaustedError(strategy RetryStrategy) error {
	e := &RetriesExhaustedError{Retries: strategy.Retries()}
	if le, ok := strategy.(interface{ LastError() error }); ok {
		e.Cause = le.LastError()
	}
	return e
}
