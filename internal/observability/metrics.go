// Package observability provides Prometheus metrics for molluscadb and the
// /metrics handler that exposes them.
package observability

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector of the process on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	snapshotsTotal    *prometheus.CounterVec
	snapshotRecords   *prometheus.GaugeVec
	exportsTotal      *prometheus.CounterVec
	exportRows        *prometheus.HistogramVec
	importRowsTotal   *prometheus.CounterVec
	publishTotal      *prometheus.CounterVec
	sessionsActive    prometheus.Gauge
}

// NewMetrics creates and registers the molluscadb collectors plus the Go
// runtime and process collectors.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "molluscadb_store_operations_total",
			Help: "Total number of store operations by outcome",
		},
		[]string{"operation", "status"},
	)
	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "molluscadb_store_operation_duration_seconds",
			Help:    "Time taken for store operations",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"operation"},
	)
	m.snapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "molluscadb_snapshots_applied_total",
			Help: "Collection snapshots applied by consumers",
		},
		[]string{"collection"},
	)
	m.snapshotRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "molluscadb_collection_records",
			Help: "Record count of the most recent snapshot per collection",
		},
		[]string{"collection"},
	)
	m.exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "molluscadb_csv_exports_total",
			Help: "CSV exports by view and whether they were archived",
		},
		[]string{"view", "archived"},
	)
	m.exportRows = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "molluscadb_csv_export_rows",
			Help:    "Data rows per CSV export",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"view"},
	)
	m.importRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "molluscadb_import_rows_total",
			Help: "CSV import rows by collection and outcome",
		},
		[]string{"collection", "status"},
	)
	m.publishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "molluscadb_changefeed_publish_total",
			Help: "Change feed messages published by collection and outcome",
		},
		[]string{"collection", "status"},
	)
	m.sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "molluscadb_sessions_active",
		Help: "Signed-in sessions currently cached",
	})

	for _, c := range []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.snapshotsTotal,
		m.snapshotRecords,
		m.exportsTotal,
		m.exportRows,
		m.importRowsTotal,
		m.publishTotal,
		m.sessionsActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Observe implements core.MetricsRecorder.
func (m *Metrics) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	m.operationsTotal.WithLabelValues(operation, status(success)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSnapshot counts an applied snapshot and its size.
func (m *Metrics) RecordSnapshot(collection string, records int) {
	m.snapshotsTotal.WithLabelValues(collection).Inc()
	m.snapshotRecords.WithLabelValues(collection).Set(float64(records))
}

// RecordExport counts a CSV export.
func (m *Metrics) RecordExport(view string, rows int, archived bool) {
	label := "false"
	if archived {
		label = "true"
	}
	m.exportsTotal.WithLabelValues(view, label).Inc()
	m.exportRows.WithLabelValues(view).Observe(float64(rows))
}

// RecordImportRow counts one imported or rejected CSV row.
func (m *Metrics) RecordImportRow(collection string, success bool) {
	m.importRowsTotal.WithLabelValues(collection, status(success)).Inc()
}

// RecordPublish counts one change feed publish attempt.
func (m *Metrics) RecordPublish(collection string, success bool) {
	m.publishTotal.WithLabelValues(collection, status(success)).Inc()
}

// SetActiveSessions reports the current session count.
func (m *Metrics) SetActiveSessions(n int) {
	m.sessionsActive.Set(float64(n))
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// RegisterHandlers registers the metrics endpoint with the provided mux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", m.Handler())
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
