package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveSearch("semantic", "ok", 120*time.Millisecond)
	m.DegradedSearches.Inc()
	m.KeywordFallbacks.Inc()
	m.IndexSize.Set(42)
	m.CacheHits.WithLabelValues("weights", "hit").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	assert.InDelta(t, 1.0,
		testutil.ToFloat64(m.SearchesTotal.WithLabelValues("ok")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.DegradedSearches), 1e-9)
	assert.InDelta(t, 42.0, testutil.ToFloat64(m.IndexSize), 1e-9)
}

func TestNopMetricsSafe(t *testing.T) {
	m := NewNopMetrics()
	assert.NotPanics(t, func() {
		m.ObserveSearch("keyword", "fallback", time.Millisecond)
		m.UploadJobs.WithLabelValues("completed").Inc()
	})
}
