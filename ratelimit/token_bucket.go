/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// TokenBucket implements the token bucket rate limiting algorithm for a single subject.
// The bucket starts full, holds at most maxRate.Count tokens, and replenishes them
// continuously over maxRate.Duration. Each allowed event spends exactly one token.
//
// Accrual is real-valued: fractional tokens accumulate between calls, so slow rates
// (capacity smaller than the window in milliseconds) are not truncated to a zero
// refill. Tokens never exceed the capacity and never go below zero.
type TokenBucket struct {
	maxRate    Rate
	refillRate float64 // tokens per nanosecond
	clock      Clock

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

var _ Limiter = (*TokenBucket)(nil)

// TokenBucketOpts represents an options for TokenBucket.
type TokenBucketOpts struct {
	// Clock is a time source for the bucket. time.Now is used if it's not specified.
	Clock Clock
}

// NewTokenBucket creates a new fully charged TokenBucket.
func NewTokenBucket(maxRate Rate) (*TokenBucket, error) {
	return NewTokenBucketWithOpts(maxRate, TokenBucketOpts{})
}

// NewTokenBucketWithOpts is a more configurable version of NewTokenBucket.
func NewTokenBucketWithOpts(maxRate Rate, opts TokenBucketOpts) (*TokenBucket, error) {
	if maxRate.Count <= 0 {
		return nil, fmt.Errorf("rate count must be positive, got %d", maxRate.Count)
	}
	if maxRate.Duration <= 0 {
		return nil, fmt.Errorf("rate duration must be positive, got %s", maxRate.Duration)
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}
	return &TokenBucket{
		maxRate:    maxRate,
		refillRate: float64(maxRate.Count) / float64(maxRate.Duration),
		clock:      clock,
		tokens:     float64(maxRate.Count),
		lastRefill: clock.Now(),
	}, nil
}

// Allow reports whether the next event may proceed, spending one token on success.
// Implements Limiter.
func (b *TokenBucket) Allow() bool {
	now := b.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Clone returns a new fully charged TokenBucket with the same rate and clock
// but its own independent counters. Implements Limiter.
func (b *TokenBucket) Clone() Limiter {
	clone, _ := NewTokenBucketWithOpts(b.maxRate, TokenBucketOpts{Clock: b.clock}) // Rate was already validated, error is always nil here.
	return clone
}

// MaxRate returns the configured rate of the bucket.
func (b *TokenBucket) MaxRate() Rate {
	return b.maxRate
}

// Remaining returns the number of currently available tokens.
// It's a snapshot and may change immediately due to concurrent access.
func (b *TokenBucket) Remaining() float64 {
	now := b.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)
	return b.tokens
}

// RetryAfter returns an estimate of how long the caller should wait
// until one token is available. It returns 0 if an event may proceed right away.
func (b *TokenBucket) RetryAfter() time.Duration {
	now := b.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)
	if b.tokens >= 1 {
		return 0
	}
	return time.Duration(math.Ceil((1 - b.tokens) / b.refillRate))
}

// refill accrues tokens for the time passed since the last refill, capped at the capacity.
// A clock that ran backward yields no accrual and doesn't move lastRefill back,
// so the same interval can never be accrued twice.
// Must be called with b.mu held.
func (b *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.tokens += float64(elapsed) * b.refillRate
	if b.tokens > float64(b.maxRate.Count) {
		b.tokens = float64(b.maxRate.Count)
	}
	b.lastRefill = now
}
