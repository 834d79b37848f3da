/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"fmt"
	"time"

	"github.com/acronis/go-admitkit/ratelimit"
)

// Result represents the outcome of an admission decision.
type Result int

// Admission decision outcomes. Rate-limited and unknown-client are normal,
// expected outcomes, not errors.
const (
	// ResultAdmitted means the request may proceed.
	ResultAdmitted Result = iota

	// ResultRateLimited means the client is recognized but has exhausted its
	// request budget; the request is dropped, not delayed.
	ResultRateLimited

	// ResultUnknownClient means no limiter exists for the client identifier.
	ResultUnknownClient
)

// String returns a string representation of the admission decision outcome.
// Implements fmt.Stringer interface.
func (r Result) String() string {
	switch r {
	case ResultAdmitted:
		return "admitted"
	case ResultRateLimited:
		return "rate_limited"
	case ResultUnknownClient:
		return "unknown_client"
	}
	return fmt.Sprintf("unknown result (%d)", int(r))
}

// Registry routes each incoming request to the limiter owned by the requesting
// client, or rejects it immediately if the client is not recognized.
//
// Every member gets its own limiter cloned from a single template, so limiters
// never share mutable state and concurrent decisions for different clients
// proceed without contention. Membership is immutable for the life of the
// registry; Evaluate is safe for concurrent use.
type Registry struct {
	members map[string]ratelimit.Limiter
	metrics MetricsCollector
}

// RegistryOpts represents an options for Registry.
type RegistryOpts struct {
	// MetricsCollector is a collector of admission decision metrics.
	// Metrics are disabled if it's not specified.
	MetricsCollector MetricsCollector
}

// NewRegistry creates a new Registry with one independent limiter per passed
// client identifier, each cloned from the template.
func NewRegistry(clients []string, template ratelimit.Limiter) *Registry {
	return NewRegistryWithOpts(clients, template, RegistryOpts{})
}

// NewRegistryWithOpts is a more configurable version of NewRegistry.
func NewRegistryWithOpts(clients []string, template ratelimit.Limiter, opts RegistryOpts) *Registry {
	metrics := opts.MetricsCollector
	if metrics == nil {
		metrics = disabledMetrics{}
	}
	members := make(map[string]ratelimit.Limiter, len(clients))
	for _, clientID := range clients {
		members[clientID] = template.Clone()
	}
	return &Registry{members: members, metrics: metrics}
}

// NewRegistryFromConfig creates a new Registry based on the passed configuration.
func NewRegistryFromConfig(cfg *Config, opts RegistryOpts) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	template, err := ratelimit.NewTokenBucket(ratelimit.Rate{
		Count:    cfg.RateLimit.Count,
		Duration: cfg.RateLimit.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("new token bucket: %w", err)
	}
	return NewRegistryWithOpts(cfg.Clients, template, opts), nil
}

// Evaluate decides the fate of a single request from the given client.
// An unknown identifier is rejected without consulting or allocating any
// limiter; otherwise exactly one limiter (the client's own) changes state.
func (r *Registry) Evaluate(clientID string) Result {
	limiter, ok := r.members[clientID]
	if !ok {
		r.metrics.IncUnknownClientRejects()
		return ResultUnknownClient
	}
	if limiter.Allow() {
		r.metrics.IncAdmits(clientID)
		return ResultAdmitted
	}
	r.metrics.IncRateLimitRejects(clientID)
	return ResultRateLimited
}

// EstimateRetryAfter returns an estimate of how long the given client should
// wait before its next request may be admitted. It returns 0 for unknown
// clients and for limiters that don't provide an estimate.
func (r *Registry) EstimateRetryAfter(clientID string) time.Duration {
	limiter, ok := r.members[clientID]
	if !ok {
		return 0
	}
	if estimator, ok := limiter.(interface{ RetryAfter() time.Duration }); ok {
		return estimator.RetryAfter()
	}
	return 0
}

// Len returns the number of recognized clients.
func (r *Registry) Len() int {
	return len(r.members)
}
