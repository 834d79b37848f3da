/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"time"
)

// Rate describes the frequency of requests:
// Count tokens fully replenish over Duration.
type Rate struct {
	Count    int
	Duration time.Duration
}

// Limiter interface defines the rate limiting contract for a single subject.
type Limiter interface {
	// Allow reports whether the next unit-cost event may proceed,
	// spending one token on success. It never fails, the decision is final
	// and immediate (no queueing or waiting for a future token).
	Allow() bool

	// Clone returns a new limiter with the same configuration and its own
	// independent state, initialized as if freshly constructed.
	Clone() Limiter
}
