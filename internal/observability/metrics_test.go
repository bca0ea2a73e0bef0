package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.SourcesProcessed.WithLabelValues("success").Inc()
	m.MissingDates.WithLabelValues("castnet").Set(12)
	m.GeocodeCache.WithLabelValues("reverse", "hit").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["gap_etl_sources_processed_total"])
	assert.True(t, names["gap_etl_missing_dates"])
	assert.True(t, names["gap_etl_geocode_cache_total"])
	assert.InDelta(t, 12.0, testutil.ToFloat64(m.MissingDates.WithLabelValues("castnet")), 1e-9)
}

func TestNewMetricsForTesting_Independent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.RunsCompleted.Inc()
	assert.InDelta(t, 1.0, testutil.ToFloat64(a.RunsCompleted), 1e-9)
	assert.InDelta(t, 0.0, testutil.ToFloat64(b.RunsCompleted), 1e-9)
}
