/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"time"
)

// Clock abstracts the time source used by limiters.
// It allows tests to simulate elapsed time deterministically instead of sleeping.
// The clock should be monotonic; limiters tolerate a clock that runs backward
// by treating negative elapsed time as zero.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// SystemClock returns a Clock based on time.Now.
func SystemClock() Clock {
	return systemClock{}
}
