package rpc

import (
	"context"
	"testing"
	"time"
)

func waitWithin(limiter *RateLimiter, d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return limiter.Wait(ctx)
}

func TestRateLimiterBurst(t *testing.T) {
	limiter := NewRateLimiter(3, time.Hour)
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		if err := waitWithin(limiter, 10*time.Millisecond); err != nil {
			t.Errorf("Should be able to acquire token %d: %v", i+1, err)
		}
	}

	if err := waitWithin(limiter, 10*time.Millisecond); err != context.DeadlineExceeded {
		t.Errorf("Should not be able to acquire 4th token, got %v", err)
	}
}

func TestRateLimiterRefill(t *testing.T) {
	limiter := NewRateLimiter(1, 20*time.Millisecond)
	defer limiter.Stop()

	if err := waitWithin(limiter, 10*time.Millisecond); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	if err := waitWithin(limiter, time.Second); err != nil {
		t.Errorf("Should be able to acquire token after replenishment: %v", err)
	}
}

func TestRateLimiterWaitCancelled(t *testing.T) {
	limiter := NewRateLimiter(1, time.Hour)
	defer limiter.Stop()

	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := limiter.Wait(ctx); err != context.Canceled {
		t.Errorf("expected context canceled, got %v", err)
	}
}

func TestRateLimiterStop(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	limiter.Stop()
	limiter.Stop()

	if err := limiter.Wait(context.Background()); err != ErrLimiterStopped {
		t.Errorf("expected ErrLimiterStopped, got %v", err)
	}
}
