package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("rollup:warmup").End(nil))
	failure := errors.New("erp unavailable")
	assert.ErrorIs(t, m.Track("rollup:warmup").End(failure), failure)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("rollup:warmup", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("rollup:warmup", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("rollup:warmup")))
}

func TestAddWarmed(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddWarmed("vendor", 2)
	m.AddWarmed("", 1)
	m.AddWarmed("month", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.warmed.WithLabelValues("vendor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.warmed.WithLabelValues("summary")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.warmed, "rollup_warmed_reports_total"))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	err := errors.New("boom")
	assert.ErrorIs(t, m.Track("job").End(err), err)
	m.AddWarmed("vendor", 1)
}
