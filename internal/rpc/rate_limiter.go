package rpc

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLimiterStopped is returned by Wait after Stop.
var ErrLimiterStopped = errors.New("rate limiter is stopped")

// RateLimiter is a token bucket bounding outbound node calls.
//
// The bucket starts full so a page render that needs a burst of calls (the
// latest-blocks feed) does not stall. One token is returned every
// interval/burst; with burst=60 and interval=1min that is one call per second
// sustained.
type RateLimiter struct {
	tokens  chan struct{}
	ticker  *time.Ticker
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

// NewRateLimiter creates a limiter allowing burst calls per interval.
func NewRateLimiter(burst int, interval time.Duration) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		tokens: make(chan struct{}, burst),
		done:   make(chan struct{}),
	}
	for i := 0; i < burst; i++ {
		rl.tokens <- struct{}{}
	}

	rl.ticker = time.NewTicker(interval / time.Duration(burst))
	rl.wg.Add(1)
	go rl.refill()

	return rl
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.RLock()
	stopped := rl.stopped
	rl.mu.RUnlock()
	if stopped {
		return ErrLimiterStopped
	}

	select {
	case <-rl.tokens:
		return nil
	case <-rl.done:
		return ErrLimiterStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop halts refilling and releases blocked waiters. Safe to call twice.
func (rl *RateLimiter) Stop() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.stopped {
		return
	}
	rl.stopped = true
	close(rl.done)
	rl.ticker.Stop()
	rl.wg.Wait()
}

func (rl *RateLimiter) refill() {
	defer rl.wg.Done()
	for {
		select {
		case <-rl.done:
			return
		case <-rl.ticker.C:
			select {
			case rl.tokens <- struct{}{}:
			default:
				// bucket full
			}
		}
	}
}
