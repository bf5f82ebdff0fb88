package gemini

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER - Token Bucket
// Keeps enrichment traffic under the API quota.
// ══════════════════════════════════════════════════════════════════════════════

// ErrRateLimited is returned when a token does not become available in time.
var ErrRateLimited = errors.New("gemini: rate limit exceeded")

// RateLimiterConfig contains configuration for the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained request rate.
	RequestsPerSecond float64

	// BurstSize is the bucket capacity.
	BurstSize int

	// WaitTimeout is the longest Wait blocks for a token.
	WaitTimeout time.Duration
}

// DefaultRateLimiterConfig returns defaults sized for the free API tier.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 0.25,
		BurstSize:         5,
		WaitTimeout:       time.Second,
	}
}

// RateLimiter is a token bucket.
type RateLimiter struct {
	mu sync.Mutex

	capacity    float64
	refillRate  float64
	tokens      float64
	lastRefill  time.Time
	waitTimeout time.Duration
	now         func() time.Time
}

// NewRateLimiter creates a limiter with a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	return &RateLimiter{
		capacity:    float64(config.BurstSize),
		refillRate:  config.RequestsPerSecond,
		tokens:      float64(config.BurstSize),
		lastRefill:  time.Now(),
		waitTimeout: config.WaitTimeout,
		now:         time.Now,
	}
}

// TryAcquire takes a token without blocking.
func (rl *RateLimiter) TryAcquire() bool {
	_, ok := rl.reserve()
	return ok
}

// Wait blocks until a token is available, ctx is done or WaitTimeout elapses.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	deadline := rl.now().Add(rl.waitTimeout)

	for {
		wait, ok := rl.reserve()
		if ok {
			return nil
		}
		if wait < 0 || rl.now().Add(wait).After(deadline) {
			return ErrRateLimited
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Available returns the current token count.
func (rl *RateLimiter) Available() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

// reserve consumes a token or reports how long until one is available.
// A negative wait means the bucket never refills.
func (rl *RateLimiter) reserve() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens >= 1 {
		rl.tokens--
		return 0, true
	}
	if rl.refillRate <= 0 {
		return -1, false
	}
	need := 1 - rl.tokens
	return time.Duration(need / rl.refillRate * float64(time.Second)), false
}

// refill must be called with mu held.
func (rl *RateLimiter) refill() {
	now := rl.now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.tokens = min(rl.capacity, rl.tokens+elapsed*rl.refillRate)
	rl.lastRefill = now
}
