// Package metrics holds the proxy's Prometheus collectors.
//
// Every recording method is safe on a nil *Metrics so components can be
// built without instrumentation in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Upstream metrics
	StrategyAttempts *prometheus.CounterVec
	Challenges       *prometheus.CounterVec

	// Cache metrics
	CacheEvents *prometheus.CounterVec

	// Session metrics
	SessionsActive prometheus.Gauge
}

// New creates collectors registered on a private registry. A private
// registry keeps parallel tests from colliding on metric names.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_http_requests_total",
				Help: "Total number of proxied HTTP requests",
			},
			[]string{"method", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mirror_http_request_duration_seconds",
				Help:    "Proxied request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		StrategyAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_upstream_attempts_total",
				Help: "Upstream fetch attempts by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		Challenges: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_challenges_total",
				Help: "Interstitial challenges seen, by outcome",
			},
			[]string{"outcome"},
		),
		CacheEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_cache_events_total",
				Help: "Response cache hits, misses and evictions",
			},
			[]string{"event"},
		),
		SessionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "mirror_sessions_active",
				Help: "Number of live client sessions",
			},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records one proxied request.
func (m *Metrics) RecordRequest(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// RecordAttempt records one strategy attempt; outcome is "ok" or "error".
func (m *Metrics) RecordAttempt(strategy, outcome string) {
	if m == nil {
		return
	}
	m.StrategyAttempts.WithLabelValues(strategy, outcome).Inc()
}

// RecordChallenge records a challenge page; outcome is "solved" or "unsolved".
func (m *Metrics) RecordChallenge(outcome string) {
	if m == nil {
		return
	}
	m.Challenges.WithLabelValues(outcome).Inc()
}

// RecordCache records a cache event: "hit", "miss", "expired" or "evicted".
func (m *Metrics) RecordCache(event string) {
	if m == nil {
		return
	}
	m.CacheEvents.WithLabelValues(event).Inc()
}

// SetSessions reports the live session count.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}
