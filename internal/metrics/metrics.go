// Package metrics exposes Prometheus instruments for lookups, source
// adapters, the cache, registry refreshes, and state registry checks. A nil *Metrics is a no-op.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the service's instruments.
type Metrics struct {
	LookupOutcome  *prometheus.CounterVec
	LookupLatency  prometheus.Histogram
	SourceOutcome  *prometheus.CounterVec
	SourceLatency  *prometheus.HistogramVec
	CacheResult    *prometheus.CounterVec
	BreakerState   *prometheus.GaugeVec
	SnapshotOrgs   prometheus.Gauge
	RefreshOutcome *prometheus.CounterVec
	StateCheck     *prometheus.CounterVec
}

// New registers every instrument on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LookupOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nonprofit_lookup_outcomes_total",
			Help: "Lookups by terminal outcome",
		}, []string{"outcome"}), // found, not_found, unavailable, invalid

		LookupLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nonprofit_lookup_duration_seconds",
			Help:    "End-to-end lookup latency including cache",
			Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		SourceOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nonprofit_source_results_total",
			Help: "Source adapter results by origin and status",
		}, []string{"origin", "status"}),

		SourceLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nonprofit_source_duration_seconds",
			Help:    "Source adapter fetch latency by origin",
			Buckets: []float64{0.0005, 0.005, 0.05, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"origin"}),

		CacheResult: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nonprofit_cache_results_total",
			Help: "Cache reads by result",
		}, []string{"result"}), // hit, tombstone, miss, error

		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nonprofit_breaker_open",
			Help: "1 when the origin's circuit breaker is open or half-open",
		}, []string{"origin"}),

		SnapshotOrgs: f.NewGauge(prometheus.GaugeOpts{
			Name: "nonprofit_registry_snapshot_orgs",
			Help: "Organizations in the active registry snapshot",
		}),

		RefreshOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nonprofit_registry_refresh_total",
			Help: "Registry snapshot refreshes by status",
		}, []string{"status"}),

		StateCheck: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nonprofit_state_registry_checks_total",
			Help: "State charity registry checks by state and result",
		}, []string{"state", "result"}), // registered, absent, cached, failed
	}
}

// ObserveLookup records a finished lookup.
func (m *Metrics) ObserveLookup(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.LookupOutcome.WithLabelValues(outcome).Inc()
	m.LookupLatency.Observe(d.Seconds())
}

// ObserveSource records one adapter fetch.
func (m *Metrics) ObserveSource(origin, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.SourceOutcome.WithLabelValues(origin, status).Inc()
	m.SourceLatency.WithLabelValues(origin).Observe(d.Seconds())
}

// IncCache records a cache read result.
func (m *Metrics) IncCache(result string) {
	if m != nil {
		m.CacheResult.WithLabelValues(result).Inc()
	}
}

// SetBreakerOpen flags whether origin's breaker is rejecting calls.
func (m *Metrics) SetBreakerOpen(origin string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.BreakerState.WithLabelValues(origin).Set(v)
}

// ObserveRefresh records a registry refresh and the resulting snapshot size.
func (m *Metrics) ObserveRefresh(status string, orgs int) {
	if m == nil {
		return
	}
	m.RefreshOutcome.WithLabelValues(status).Inc()
	if status == "complete" || status == "restored" {
		m.SnapshotOrgs.Set(float64(orgs))
	}
}

// IncStateCheck records one state registry check.
func (m *Metrics) IncStateCheck(state, result string) {
	if m != nil {
		m.StateCheck.WithLabelValues(state, result).Inc()
	}
}
