// Package metrics exposes prometheus counters for the sync jobs and the source client.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pollution"

// Source request outcomes.
const (
	OutcomeSuccess        = "success"
	OutcomeRetried        = "retried"
	OutcomeRetryExhausted = "retry_exhausted"
	OutcomeAuthFailed     = "auth_failed"
	OutcomeSoftFailed     = "soft_failed"
)

// Cache lookup results.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheExpired = "expired"
)

// Ingestion and enrichment results.
const (
	ResultCreated   = "created"
	ResultUpdated   = "updated"
	ResultFailed    = "failed"
	ResultActive    = "active"
	ResultInvalid   = "invalid"
	ResultSucceeded = "succeeded"
)

// Metrics groups every collector the service registers.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	sourceRequests *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	ingestedCities *prometheus.CounterVec
	enrichedCities *prometheus.CounterVec
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
}

// New builds the collectors and registers them on registerer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		sourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Pollution API page fetches by outcome.",
		}, []string{"outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by result.",
		}, []string{"result"}),
		ingestedCities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_cities_total",
			Help:      "Cities reconciled by the ingestion job.",
		}, []string{"country", "result"}),
		enrichedCities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enriched_cities_total",
			Help:      "Cities processed by the enrichment job by outcome.",
		}, []string{"result"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job executions by result.",
		}, []string{"job", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduled job wall-clock duration.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"job"}),
	}

	registerer.MustRegister(
		m.sourceRequests,
		m.cacheLookups,
		m.ingestedCities,
		m.enrichedCities,
		m.jobRuns,
		m.jobDuration,
	)

	return m
}

func (m *Metrics) SourceRequest(outcome string) {
	if m == nil {
		return
	}
	m.sourceRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) IngestedCity(country, result string) {
	if m == nil {
		return
	}
	m.ingestedCities.WithLabelValues(country, result).Inc()
}

func (m *Metrics) EnrichedCity(result string) {
	if m == nil {
		return
	}
	m.enrichedCities.WithLabelValues(result).Inc()
}

// JobRun records one finished job execution.
func (m *Metrics) JobRun(job string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := ResultSucceeded
	if err != nil {
		result = ResultFailed
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
	m.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}
