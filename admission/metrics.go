/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

package admission

import "github.com/prometheus/client_golang/prometheus"

const metricsLabelClient = "client"

// MetricsCollector is a collector of metrics for admission decisions.
type MetricsCollector interface {
	// IncAdmits increments the counter of admitted requests for the given client.
	IncAdmits(clientID string)

	// IncRateLimitRejects increments the counter of requests rejected
	// due to the exhausted rate limit for the given client.
	IncRateLimitRejects(clientID string)

	// IncUnknownClientRejects increments the counter of requests rejected
	// because the client identifier is not recognized.
	IncUnknownClientRejects()
}

// PrometheusMetrics represents collector of metrics for admission decisions.
type PrometheusMetrics struct {
	Admits               *prometheus.CounterVec
	RateLimitRejects     *prometheus.CounterVec
	UnknownClientRejects prometheus.Counter
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new instance of PrometheusMetrics.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	admits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admission_admits_total",
		Help:      "Number of admitted requests.",
	}, []string{metricsLabelClient})

	rateLimitRejects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admission_rate_limit_rejects_total",
		Help:      "Number of rejected requests due to rate limit exceeded.",
	}, []string{metricsLabelClient})

	unknownClientRejects := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admission_unknown_client_rejects_total",
		Help:      "Number of rejected requests from unrecognized clients.",
	})

	return &PrometheusMetrics{
		Admits:               admits,
		RateLimitRejects:     rateLimitRejects,
		UnknownClientRejects: unknownClientRejects,
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.Admits,
		pm.RateLimitRejects,
		pm.UnknownClientRejects,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.Admits)
	prometheus.Unregister(pm.RateLimitRejects)
	prometheus.Unregister(pm.UnknownClientRejects)
}

// IncAdmits increments the counter of admitted requests for the given client.
func (pm *PrometheusMetrics) IncAdmits(clientID string) {
	pm.Admits.With(prometheus.Labels{metricsLabelClient: clientID}).Inc()
}

// IncRateLimitRejects increments the counter of rate-limited requests for the given client.
func (pm *PrometheusMetrics) IncRateLimitRejects(clientID string) {
	pm.RateLimitRejects.With(prometheus.Labels{metricsLabelClient: clientID}).Inc()
}

// IncUnknownClientRejects increments the counter of requests from unrecognized clients.
func (pm *PrometheusMetrics) IncUnknownClientRejects() {
	pm.UnknownClientRejects.Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) IncAdmits(string)           {}
func (disabledMetrics) IncRateLimitRejects(string) {}
func (disabledMetrics) IncUnknownClientRejects()   {}
