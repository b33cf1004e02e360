package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_NoBlockWhenZeroDelay(t *testing.T) {
	limiter := Every(0, 0.5)

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := limiter.Wait(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("limiter with zero delay should not block")
	}
}

func TestLimiter_FirstWaitImmediate(t *testing.T) {
	limiter := Every(time.Second, 0)

	start := time.Now()
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("first wait should not block, took %v", time.Since(start))
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := Every(100*time.Millisecond, 0)

	ctx := context.Background()
	_ = limiter.Wait(ctx)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	duration := time.Since(start)
	if duration < 80*time.Millisecond || duration > 200*time.Millisecond {
		t.Errorf("expected wait around 100ms, took %v", duration)
	}
}

func TestLimiter_ElapsedWorkCountsTowardsDelay(t *testing.T) {
	limiter := Every(50*time.Millisecond, 0)
	ctx := context.Background()

	_ = limiter.Wait(ctx)
	time.Sleep(60 * time.Millisecond) // simulated slow fetch

	start := time.Now()
	_ = limiter.Wait(ctx)
	if time.Since(start) > 15*time.Millisecond {
		t.Errorf("expected no extra wait after slow operation, took %v", time.Since(start))
	}
}

func TestLimiter_ContextCancellation(t *testing.T) {
	limiter := Every(time.Second, 0)
	_ = limiter.Wait(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Fatalf("expected context canceled error")
	}
}

func TestLimiter_Jitter(t *testing.T) {
	limiter := Every(100*time.Millisecond, 0.5) // up to +50ms
	ctx := context.Background()

	_ = limiter.Wait(ctx)

	start := time.Now()
	_ = limiter.Wait(ctx)

	duration := time.Since(start)
	if duration < 80*time.Millisecond || duration > 300*time.Millisecond {
		t.Errorf("expected jittered wait roughly between 100ms and 150ms, took %v", duration)
	}
}

func TestEvery_ClampsInput(t *testing.T) {
	l := Every(-time.Second, 7)
	if l.interval != 0 {
		t.Errorf("expected negative delay to clamp to 0, got %v", l.interval)
	}
	if l.jitter != 1 {
		t.Errorf("expected jitter clamp to 1, got %v", l.jitter)
	}
}

func TestLimiter_WaitForPerCallInterval(t *testing.T) {
	limiter := Every(time.Hour, 0)
	ctx := context.Background()

	_ = limiter.WaitFor(ctx, 0)

	start := time.Now()
	if err := limiter.WaitFor(ctx, 60*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d := time.Since(start); d < 50*time.Millisecond || d > 500*time.Millisecond {
		t.Errorf("expected the per-call interval to apply, took %v", d)
	}

	start = time.Now()
	if err := limiter.WaitFor(ctx, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d := time.Since(start); d > 15*time.Millisecond {
		t.Errorf("expected zero interval not to block, took %v", d)
	}
}

func TestLimiter_JitterScalesWithCallInterval(t *testing.T) {
	l := Every(time.Hour, 1)
	for i := 0; i < 20; i++ {
		if j := l.jitterFor(10 * time.Millisecond); j < 0 || j > 10*time.Millisecond {
			t.Fatalf("jitter %v outside [0, interval]", j)
		}
	}
}
