package ratelimit

import (
	"sync"
	"time"
)

// Limiter defines the interface for client-side request pacing
type Limiter interface {
	// Allow checks if a request is allowed under the current rate limit
	Allow() bool
	// Wait blocks until the rate limit allows another request
	Wait()
	// Reset restores the limiter to its initial state
	Reset()
}

// TokenBucket paces requests at one token per refill interval, with a
// burst of up to capacity tokens. A bucket created with capacity 10 and a
// one second interval allows 10 immediate requests and then one per second.
type TokenBucket struct {
	capacity       int
	tokens         int
	refillInterval time.Duration // time to earn one token
	lastRefill     time.Time
	mu             sync.Mutex
}

// NewTokenBucket creates a token bucket that starts full.
func NewTokenBucket(capacity int, refillInterval time.Duration) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	if refillInterval <= 0 {
		refillInterval = time.Millisecond
	}
	return &TokenBucket{
		capacity:       capacity,
		tokens:         capacity,
		refillInterval: refillInterval,
		lastRefill:     time.Now(),
	}
}

// Allow consumes a token if one is available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(time.Now())

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available.
func (tb *TokenBucket) Wait() {
	for {
		tb.mu.Lock()
		now := time.Now()
		tb.refill(now)
		if tb.tokens > 0 {
			tb.tokens--
			tb.mu.Unlock()
			return
		}
		wait := tb.refillInterval - now.Sub(tb.lastRefill)
		tb.mu.Unlock()

		if wait <= 0 {
			wait = time.Millisecond
		}
		time.Sleep(wait)
	}
}

// Reset restores the bucket to full capacity.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
}

// refill credits one token per elapsed interval, capped at capacity.
// Callers must hold mu.
func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill)
	if elapsed < tb.refillInterval {
		return
	}

	earned := int(elapsed / tb.refillInterval)
	tb.tokens += earned
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	// Advance by whole intervals so partial progress toward the next
	// token is not lost
	tb.lastRefill = tb.lastRefill.Add(time.Duration(earned) * tb.refillInterval)
}
