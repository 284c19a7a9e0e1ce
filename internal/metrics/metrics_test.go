package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/notesync/internal/syncer"
	"github.com/mohammad-safakhou/notesync/models"
)

func TestObserveCountsOutcomes(t *testing.T) {
	m := New()
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m.Observe(&syncer.Result{
		State:      syncer.StateDone,
		Watermark:  started,
		TotalFiles: 12,
		Stats: models.SyncStats{
			StartedAt: started, Duration: 3 * time.Second,
			Processed: 4, Created: 2, Updated: 1, Skipped: 1, TranscriptsFetched: 3, TranscriptsFailed: 1,
		},
	})
	m.Observe(&syncer.Result{State: syncer.StateFailed, Err: errors.New("boom"), Stats: models.SyncStats{StartedAt: started}})

	if got := value(t, m, "notesync_runs_total", "succeeded"); got != 1 {
		t.Fatalf("expected one successful run, got %v", got)
	}
	if got := value(t, m, "notesync_runs_total", "failed"); got != 1 {
		t.Fatalf("expected one failed run, got %v", got)
	}
	if got := value(t, m, "notesync_documents_total", "created"); got != 2 {
		t.Fatalf("expected 2 created, got %v", got)
	}
	if got := value(t, m, "notesync_vault_notes", ""); got != 0 {
		t.Fatalf("expected vault gauge from last pass, got %v", got)
	}
	if got := value(t, m, "notesync_last_success_timestamp_seconds", ""); got != float64(started.Unix()) {
		t.Fatalf("unexpected last success %v", got)
	}
}

func TestHandlerAndTextfile(t *testing.T) {
	m := New()
	m.Observe(&syncer.Result{State: syncer.StateDone, Stats: models.SyncStats{StartedAt: time.Now()}})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "notesync_runs_total") {
		t.Fatalf("unexpected metrics response %d: %s", rec.Code, rec.Body.String())
	}

	path := filepath.Join(t.TempDir(), "notesync.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(raw), `notesync_runs_total{status="succeeded"} 1`) {
		t.Fatalf("unexpected textfile content %q (%v)", raw, err)
	}
}

// value returns the sample of name whose only label value is label, or the
// unlabelled sample when label is empty.
func value(t *testing.T, m *Metrics, name, label string) float64 {
	t.Helper()
	families, err := m.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := metric.GetLabel()
			if label != "" && (len(labels) != 1 || labels[0].GetValue() != label) {
				continue
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s{%s} not found", name, label)
	return 0
}
