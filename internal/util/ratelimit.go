package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter bounds outbound calls to maxCalls per trailing window. It keeps
// the timestamps of recent calls and blocks callers until issuing one more
// call would stay inside the quota. The quota is provider-wide, so one
// limiter instance is shared by every worker.
type RateLimiter struct {
	maxCalls int
	window   time.Duration
	mu       sync.Mutex
	calls    []time.Time

	now func() time.Time // swapped out in tests
}

// NewRateLimiter creates a RateLimiter allowing maxCalls per trailing window.
func NewRateLimiter(maxCalls int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxCalls: maxCalls,
		window:   window,
		now:      time.Now,
	}
}

// Acquire blocks until one more call fits inside the trailing window, then
// records the call. The bookkeeping holds the lock only briefly; the sleep
// happens outside it, so a waiting caller never blocks eviction by others.
// Returns early with the context's error on cancellation.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := rl.now()
		rl.evict(now)

		if len(rl.calls) < rl.maxCalls {
			rl.calls = append(rl.calls, now)
			rl.mu.Unlock()
			return nil
		}

		// Full window: sleep until the oldest retained call ages out, plus a
		// one-second margin against clock skew on the provider side.
		wait := rl.window - now.Sub(rl.calls[0]) + time.Second
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Pending returns how many calls are currently counted inside the window.
func (rl *RateLimiter) Pending() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.evict(rl.now())
	return len(rl.calls)
}

// evict drops call records older than now-window. Caller holds rl.mu.
func (rl *RateLimiter) evict(now time.Time) {
	cutoff := now.Add(-rl.window)
	i := 0
	for i < len(rl.calls) && rl.calls[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		rl.calls = append(rl.calls[:0], rl.calls[i:]...)
	}
}
