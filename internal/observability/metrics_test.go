package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/rainfall-idf-service/internal/config"
)

func TestNewMetricsForTesting_Independent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.RequestsConsumed.Add(3)
	assert.InDelta(t, 3, testutil.ToFloat64(a.RequestsConsumed), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(b.RequestsConsumed), 0)
}

func TestMetrics_Names(t *testing.T) {
	m := newMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(m.Analyses))
	require.NoError(t, reg.Register(m.ResultCache))

	m.Analyses.WithLabelValues("failed", "annual_maxima").Inc()
	m.ResultCache.WithLabelValues("hit").Add(2)

	expected := `
# HELP idf_result_cache_total Result cache lookups by result.
# TYPE idf_result_cache_total counter
idf_result_cache_total{result="hit"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "idf_result_cache_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Analyses))
}

func TestMetrics_AllCollectorsRegister(t *testing.T) {
	m := newMetrics()
	reg := prometheus.NewRegistry()
	for _, c := range m.collectors() {
		require.NoError(t, reg.Register(c))
	}
	assert.Len(t, m.collectors(), 11)
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(&config.Config{LogLevel: "debug", LogFormat: "text"})
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(t.Context(), -4))
}
