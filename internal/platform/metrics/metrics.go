// Package metrics holds all Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the counters and histograms the services record.
// All methods tolerate a nil receiver so tests can skip registration.
type Metrics struct {
	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec
	OTPRequests     prometheus.Counter
	OTPOutcomes     *prometheus.CounterVec
	FactsWritten    prometheus.Counter
	FactsSuppressed prometheus.Counter
	RequestDuration *prometheus.HistogramVec
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all metrics on the given registerer. Tests pass a
// throwaway registry to avoid duplicate-registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recall_cache_hits_total",
			Help: "Cache hits by tier (session, subject, distributed)",
		}, []string{"tier"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recall_cache_misses_total",
			Help: "Cache misses by tier",
		}, []string{"tier"}),
		OTPRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "recall_otp_requests_total",
			Help: "Verification codes requested",
		}),
		OTPOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recall_otp_verifications_total",
			Help: "Verification attempts by outcome",
		}, []string{"outcome"}),
		FactsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "recall_facts_written_total",
			Help: "Facts persisted after policy and dedupe filtering",
		}),
		FactsSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "recall_facts_suppressed_total",
			Help: "Facts dropped by policy, dedupe, or per-subject caps",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recall_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// CacheHit records a hit on the named tier.
func (m *Metrics) CacheHit(tier string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(tier).Inc()
}

// CacheMiss records a miss on the named tier.
func (m *Metrics) CacheMiss(tier string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(tier).Inc()
}

// OTPRequested records a verification challenge dispatch.
func (m *Metrics) OTPRequested() {
	if m == nil {
		return
	}
	m.OTPRequests.Inc()
}

// OTPOutcome records a verification attempt result
// (verified, invalid, expired, locked, not_started).
func (m *Metrics) OTPOutcome(outcome string) {
	if m == nil {
		return
	}
	m.OTPOutcomes.WithLabelValues(outcome).Inc()
}

// FactWritten records n persisted facts.
func (m *Metrics) FactWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FactsWritten.Add(float64(n))
}

// FactSuppressed records n facts dropped before persist.
func (m *Metrics) FactSuppressed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FactsSuppressed.Add(float64(n))
}

// ObserveRequest records one HTTP request's latency.
func (m *Metrics) ObserveRequest(route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route, status).Observe(d.Seconds())
}
