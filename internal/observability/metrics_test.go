package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsObserve(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.Observe(context.Background(), "create_extractions", true, 3*time.Millisecond)
	m.Observe(context.Background(), "create_extractions", false, time.Millisecond)
	m.Observe(context.Background(), "", true, time.Millisecond)

	if got := testutil.ToFloat64(m.operationsTotal.WithLabelValues("create_extractions", "success")); got != 1 {
		t.Fatalf("expected one success, got %v", got)
	}
	if got := testutil.ToFloat64(m.operationsTotal.WithLabelValues("create_extractions", "error")); got != 1 {
		t.Fatalf("expected one error, got %v", got)
	}
}

func TestMetricsRecorders(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordSnapshot("extractions", 12)
	m.RecordExport("all", 2, true)
	m.RecordImportRow("primers", false)
	m.RecordPublish("storage", true)
	m.SetActiveSessions(3)

	if got := testutil.ToFloat64(m.snapshotRecords.WithLabelValues("extractions")); got != 12 {
		t.Fatalf("expected 12 records, got %v", got)
	}
	if got := testutil.ToFloat64(m.exportsTotal.WithLabelValues("all", "true")); got != 1 {
		t.Fatalf("expected archived export count, got %v", got)
	}
	if got := testutil.ToFloat64(m.importRowsTotal.WithLabelValues("primers", "error")); got != 1 {
		t.Fatalf("expected rejected import row, got %v", got)
	}
	if got := testutil.ToFloat64(m.sessionsActive); got != 3 {
		t.Fatalf("expected 3 sessions, got %v", got)
	}
}

func TestMetricsHandlerServesExposition(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordPublish("storage", true)
	mux := http.NewServeMux()
	m.RegisterHandlers(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "molluscadb_changefeed_publish_total") {
		t.Fatalf("expected changefeed metric in exposition")
	}
}
