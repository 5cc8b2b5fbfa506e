package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry         prometheus.Registerer
	catalogItems     prometheus.Gauge
	catalogLoads     *prometheus.CounterVec
	detectGroups     *prometheus.GaugeVec
	detectDuration   *prometheus.HistogramVec
	hashFailures     prometheus.Counter
	deletions        *prometheus.CounterVec
	deletedItems     *prometheus.CounterVec
	reclaimableBytes prometheus.Gauge
}

func InitPrometheusMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		registry: reg,
		catalogItems: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "catalog_items",
				Help:      "Number of media items in the loaded catalog snapshot",
			},
		),
		catalogLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_loads_total",
				Help:      "Catalog loads by result",
			},
			[]string{"status"},
		),
		detectGroups: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cleanup_groups",
				Help:      "Cleanup groups found by the last scan, per category",
			},
			[]string{"category"},
		),
		detectDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cleanup_scan_duration_seconds",
				Help:      "Duration of cleanup scans",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"category"},
		),
		hashFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cleanup_hash_failures_total",
				Help:      "Items fingerprinted by locator because their content was unreadable",
			},
		),
		deletions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deletions_total",
				Help:      "Deletion requests by tier and outcome",
			},
			[]string{"tier", "status"},
		),
		deletedItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deleted_items_total",
				Help:      "Media items removed, by tier",
			},
			[]string{"tier"},
		),
		reclaimableBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reclaimable_bytes",
				Help:      "Total size of all current cleanup groups",
			},
		),
	}

	reg.MustRegister(
		m.catalogItems,
		m.catalogLoads,
		m.detectGroups,
		m.detectDuration,
		m.hashFailures,
		m.deletions,
		m.deletedItems,
		m.reclaimableBytes,
	)

	return m
}

func (m *Metrics) RecordCatalogLoad(status string, items int) {
	if m == nil {
		return
	}
	m.catalogLoads.WithLabelValues(status).Inc()
	if status == "ok" {
		m.catalogItems.Set(float64(items))
	}
}

func (m *Metrics) SetCatalogItems(items int) {
	if m == nil {
		return
	}
	m.catalogItems.Set(float64(items))
}

func (m *Metrics) RecordScan(category string, groups int, duration time.Duration) {
	if m == nil {
		return
	}
	m.detectGroups.WithLabelValues(category).Set(float64(groups))
	m.detectDuration.WithLabelValues(category).Observe(duration.Seconds())
}

func (m *Metrics) IncHashFailures() {
	if m == nil {
		return
	}
	m.hashFailures.Inc()
}

func (m *Metrics) RecordDeletion(tier, status string, deleted int) {
	if m == nil {
		return
	}
	m.deletions.WithLabelValues(tier, status).Inc()
	if deleted > 0 {
		m.deletedItems.WithLabelValues(tier).Add(float64(deleted))
	}
}

func (m *Metrics) SetReclaimableBytes(bytes int64) {
	if m == nil {
		return
	}
	m.reclaimableBytes.Set(float64(bytes))
}
