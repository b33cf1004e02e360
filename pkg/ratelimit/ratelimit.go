package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter spaces successive operations at least interval apart, incorporating
// optional jitter. The first Wait never blocks. It is safe for concurrent use
// by multiple goroutines.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	jitter   float64 // 0.0 to 1.0
	last     time.Time
	now      func() time.Time
}

// Every creates a limiter that enforces a minimum delay between successive
// operations. A delay <= 0 disables pacing for Wait.
func Every(delay time.Duration, jitter float64) *Limiter {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	if delay < 0 {
		delay = 0
	}
	return &Limiter{
		interval: delay,
		jitter:   jitter,
		now:      time.Now,
	}
}

// Wait blocks until the configured interval has passed since the previous
// operation, or until the context is canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.WaitFor(ctx, l.interval)
}

// WaitFor is Wait with a per-call interval, for callers whose required spacing
// depends on how the next operation will be performed. Jitter only ever
// lengthens the wait.
func (l *Limiter) WaitFor(ctx context.Context, interval time.Duration) error {
	l.mu.Lock()
	now := l.now()
	var sleep time.Duration
	if interval > 0 && !l.last.IsZero() {
		next := l.last.Add(interval + l.jitterFor(interval))
		if next.After(now) {
			sleep = next.Sub(now)
		}
	}
	// Reserve the slot before releasing the lock so concurrent callers queue up.
	l.last = now.Add(sleep)
	l.mu.Unlock()

	if sleep == 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (l *Limiter) jitterFor(interval time.Duration) time.Duration {
	if l.jitter == 0 {
		return 0
	}
	return time.Duration(float64(interval) * l.jitter * rand.Float64())
}
