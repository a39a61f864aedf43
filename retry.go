package skein

import (
	"time"

	"github.com/petrijr/skein/pkg/api"
)

// RetryBuilder provides a fluent way to construct RetryPolicy values
// for use with ChainBuilder.RequestWithRetry.
type RetryBuilder struct {
	policy RetryPolicy
}

// Retry creates a RetryBuilder permitting maxRetries failures, with the
// default jittered delays.
//
// maxRetries <= 0 is treated as 1 (the first failure is final).
func Retry(maxRetries int) RetryBuilder {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	p := DefaultRetryPolicy()
	p.MaxRetries = maxRetries
	return RetryBuilder{policy: p}
}

// DefaultRetryPolicy returns the policy used by request steps when none is
// configured.
func DefaultRetryPolicy() RetryPolicy {
	return api.DefaultRetryPolicy()
}

// WithJitter draws each delay as scale multiplied by a random integer in
// [low, high).
//
// Example:
//
//	Retry(3).WithJitter(1, 4, time.Second) // 1s, 2s or 3s
func (r RetryBuilder) WithJitter(low, high int, scale time.Duration) RetryBuilder {
	p := r.policy
	if high < low {
		high = low
	}
	p.Low, p.High, p.Scale = low, high, scale
	return RetryBuilder{policy: p}
}

// WithMaxDelay caps every delay; if <= 0, there is no cap.
func (r RetryBuilder) WithMaxDelay(max time.Duration) RetryBuilder {
	p := r.policy
	p.MaxDelay = max
	if max < 0 {
		p.MaxDelay = 0
	}
	return RetryBuilder{policy: p}
}

// WithConstantDelay waits exactly delay between attempts.
func (r RetryBuilder) WithConstantDelay(delay time.Duration) RetryBuilder {
	p := r.policy
	p.Low, p.High, p.Scale = 1, 1, delay
	p.MaxDelay = 0
	return RetryBuilder{policy: p}
}

// Immediate disables any delay between retries.
// Retries will still respect the retry limit.
func (r RetryBuilder) Immediate() RetryBuilder {
	p := r.policy
	p.Low, p.High, p.Scale, p.MaxDelay = 0, 0, 0, 0
	return RetryBuilder{policy: p}
}

// Policy returns the underlying RetryPolicy.
func (r RetryBuilder) Policy() RetryPolicy {
	return r.policy
}
