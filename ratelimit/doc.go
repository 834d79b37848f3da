/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides single-subject rate limiting primitives.
//
// The central type is TokenBucket: a bounded reservoir of tokens that is
// spent per admitted event and continuously replenished at a fixed rate up
// to its capacity. A bucket serves exactly one subject; multi-subject
// routing (one bucket per client) is built on top of it by cloning a
// configured bucket per subject, see the admission package.
//
// Key features:
//   - Continuous (fractional) token accrual, lazily computed on each call
//   - Injectable clock for deterministic time handling in tests
//   - Goroutine-safe: concurrent calls on the same bucket serialize,
//     different buckets share no state
package ratelimit
