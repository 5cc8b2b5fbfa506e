package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatherValue returns the first sample value of the named family.
func gatherValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		require.NotEmpty(t, f.GetMetric())
		m := f.GetMetric()[0]
		switch {
		case m.GetGauge() != nil:
			return m.GetGauge().GetValue()
		case m.GetCounter() != nil:
			return m.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestInitPrometheusMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := InitPrometheusMetrics("galleryclean", reg)

	m.RecordCatalogLoad("ok", 12)
	m.RecordScan("duplicates", 3, 50*time.Millisecond)
	m.RecordDeletion("direct", "success", 2)
	m.IncHashFailures()
	m.SetReclaimableBytes(4096)

	assert.Equal(t, float64(12), gatherValue(t, reg, "galleryclean_catalog_items"))
	assert.Equal(t, float64(3), gatherValue(t, reg, "galleryclean_cleanup_groups"))
	assert.Equal(t, float64(2), gatherValue(t, reg, "galleryclean_deleted_items_total"))
	assert.Equal(t, float64(1), gatherValue(t, reg, "galleryclean_cleanup_hash_failures_total"))
	assert.Equal(t, float64(4096), gatherValue(t, reg, "galleryclean_reclaimable_bytes"))
}

func TestRecordCatalogLoad_FailureKeepsItemCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := InitPrometheusMetrics("gc", reg)

	m.RecordCatalogLoad("ok", 5)
	m.RecordCatalogLoad("error", 0)

	assert.Equal(t, float64(5), gatherValue(t, reg, "gc_catalog_items"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCatalogLoad("ok", 1)
		m.SetCatalogItems(1)
		m.RecordScan("old_media", 1, time.Second)
		m.IncHashFailures()
		m.RecordDeletion("host", "cancelled", 0)
		m.SetReclaimableBytes(1)
	})
}
