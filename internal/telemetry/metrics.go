// Package telemetry exposes Prometheus instrumentation for the discovery
// engine. Collectors are created against an injectable registry so tests can
// run in isolation.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector the engine emits.
type Metrics struct {
	SearchDuration   *prometheus.HistogramVec
	SearchesTotal    *prometheus.CounterVec
	DegradedSearches prometheus.Counter
	KeywordFallbacks prometheus.Counter
	EmbedRequests    *prometheus.CounterVec
	IndexSize        prometheus.Gauge
	CacheHits        *prometheus.CounterVec
	UploadJobs       *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors. Pass
// prometheus.DefaultRegisterer outside of tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SearchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "smartcart",
			Name:      "search_duration_seconds",
			Help:      "End-to-end search latency.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 1.5, 2.5},
		}, []string{"path"}),
		SearchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartcart",
			Name:      "searches_total",
			Help:      "Searches by outcome.",
		}, []string{"outcome"}),
		DegradedSearches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smartcart",
			Name:      "degraded_searches_total",
			Help:      "Searches served with the deterministic fallback embedder.",
		}),
		KeywordFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smartcart",
			Name:      "keyword_fallbacks_total",
			Help:      "Searches answered by the keyword fallback path.",
		}),
		EmbedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartcart",
			Name:      "embed_requests_total",
			Help:      "Embedding requests by provider and status.",
		}, []string{"provider", "status"}),
		IndexSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "smartcart",
			Name:      "vector_index_size",
			Help:      "Number of vectors in the in-process index.",
		}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartcart",
			Name:      "cache_requests_total",
			Help:      "Cache requests by cache name and result.",
		}, []string{"cache", "result"}),
		UploadJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartcart",
			Name:      "upload_jobs_total",
			Help:      "Catalog upload jobs by terminal status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.SearchDuration,
		m.SearchesTotal,
		m.DegradedSearches,
		m.KeywordFallbacks,
		m.EmbedRequests,
		m.IndexSize,
		m.CacheHits,
		m.UploadJobs,
	)
	return m
}

// NewNopMetrics creates unregistered collectors for callers that do not wire
// telemetry, such as short-lived CLI commands.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// ObserveSearch records one completed search.
func (m *Metrics) ObserveSearch(path string, outcome string, duration time.Duration) {
	m.SearchDuration.WithLabelValues(path).Observe(duration.Seconds())
	m.SearchesTotal.WithLabelValues(outcome).Inc()
}
