/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

// Package admission provides per-client request admission control
// on top of the ratelimit package.
//
// A Registry holds one independently-owned rate limiter per recognized
// client identifier and answers, for each incoming request, one of three
// outcomes: admitted, rate-limited, or unknown client. Membership is fixed
// at construction time; clients never share mutable limiter state, so a
// client exhausting its own budget can't affect anyone else.
//
// Key features:
//   - Token bucket rate limiting with per-client isolation
//   - Configuration loadable in YAML/JSON formats (via config.Loader from
//     the github.com/acronis/go-appkit/config package, viper, or
//     json/yaml unmarshaling directly)
//   - Prometheus metrics for admission decisions
//   - HTTP middleware with configurable client identification, trusted-client
//     bypass, and go-appkit-style error responses
package admission
