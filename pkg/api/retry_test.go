package api

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyDelayBounds(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, Low: 10, High: 30, Scale: 100 * time.Millisecond}

	for i := 0; i < 500; i++ {
		d := p.Delay()
		require.GreaterOrEqual(t, d, time.Second)
		require.Less(t, d, 3*time.Second)
		require.Zero(t, d%(100*time.Millisecond), "delay is a multiple of scale")
	}
}

func TestRetryPolicyDelayIsJittered(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, Low: 10, High: 30, Scale: 100 * time.Millisecond}

	seen := make(map[time.Duration]struct{})
	for i := 0; i < 200; i++ {
		seen[p.Delay()] = struct{}{}
	}
	assert.Greater(t, len(seen), 1, "identical policies must not produce a constant delay")

	s := p.NewStrategy()
	strategySeen := make(map[time.Duration]struct{})
	for i := 0; i < 200; i++ {
		s.Reset()
		d, ok := s.Backoff(errors.New("boom"))
		require.True(t, ok)
		strategySeen[d] = struct{}{}
	}
	assert.Greater(t, len(strategySeen), 1)
}

func TestRetryPolicyMaxDelayCapsRandomDraws(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, Low: 10, High: 50, Scale: 100 * time.Millisecond, MaxDelay: 2 * time.Second}

	capped := 0
	for i := 0; i < 500; i++ {
		d := p.Delay()
		require.LessOrEqual(t, d, p.MaxDelay)
		require.GreaterOrEqual(t, d, time.Second)
		if d == p.MaxDelay {
			capped++
		}
	}
	assert.Positive(t, capped, "draws above the cap are clamped to MaxDelay")
}

func TestRetryPolicyDelayEdges(t *testing.T) {
	tests := []struct {
		name   string
		policy RetryPolicy
		draw   int
		want   time.Duration
	}{
		{"fixed", RetryPolicy{Low: 5, High: 5, Scale: time.Millisecond}, 0, 5 * time.Millisecond},
		{"inverted range uses low", RetryPolicy{Low: 5, High: 2, Scale: time.Millisecond}, 0, 5 * time.Millisecond},
		{"top of range", RetryPolicy{Low: 1, High: 4, Scale: time.Second}, 2, 3 * time.Second},
		{"capped", RetryPolicy{Low: 10, High: 20, Scale: time.Second, MaxDelay: 2 * time.Second}, 5, 2 * time.Second},
		{"zero scale", RetryPolicy{Low: 10, High: 20}, 3, 0},
		{"negative clamps", RetryPolicy{Low: -4, High: -4, Scale: time.Second}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.delay(func(n int) int {
				require.Positive(t, n)
				return tt.draw
			})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultRetryStrategyBudget(t *testing.T) {
	s := RetryPolicy{MaxRetries: 3, Low: 1, High: 1, Scale: time.Millisecond}.NewStrategy()
	errA, errB := errors.New("a"), errors.New("b")

	d, ok := s.Backoff(errA)
	assert.True(t, ok)
	assert.Equal(t, time.Millisecond, d)
	_, ok = s.Backoff(errB)
	assert.True(t, ok)
	assert.False(t, s.Exhausted())

	_, ok = s.Backoff(errB)
	assert.False(t, ok, "third failure reaches the limit")
	assert.True(t, s.Exhausted())
	assert.Equal(t, 3, s.Retries())
	assert.Equal(t, errB, s.LastError())

	exhausted := ExhaustedError(s)
	assert.ErrorIs(t, exhausted, ErrRetriesExhausted)
	assert.ErrorIs(t, exhausted, errB)
	assert.Contains(t, exhausted.Error(), "3 retries")

	s.Reset()
	assert.False(t, s.Exhausted())
	assert.Zero(t, s.Retries())
	assert.NoError(t, s.LastError())
}

func TestDefaultRetryStrategyStopRetrying(t *testing.T) {
	s := NewRetryStrategy(DefaultRetryPolicy())
	var listener RetryStrategyListener = s

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			listener.StopRetrying()
		}()
	}
	wg.Wait()

	assert.True(t, s.Exhausted())
	_, ok := s.Backoff(errors.New("down"))
	assert.False(t, ok)
	assert.Zero(t, s.Retries(), "a stopped strategy does not count failures")

	s.Reset()
	assert.False(t, s.Exhausted())
}

func TestZeroMaxRetriesRefusesImmediately(t *testing.T) {
	s := NewRetryStrategy(RetryPolicy{})
	assert.True(t, s.Exhausted())
	_, ok := s.Backoff(errors.New("x"))
	assert.False(t, ok)
}

func TestDefaultRetryPolicyRange(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 5, p.MaxRetries)
	assert.Equal(t, time.Second, time.Duration(p.Low)*p.Scale)
	assert.Equal(t, 5*time.Second, time.Duration(p.High)*p.Scale)
}
