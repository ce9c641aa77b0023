package dashboard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tapeview/internal/core"
	"tapeview/internal/infra/persistence/memory"
	"tapeview/internal/render"
	"tapeview/pkg/domain"
)

func scenarioStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	peak := func(dataset, well string, area, conc float64) domain.PeakRow {
		return domain.PeakRow{
			DatasetID:               dataset,
			WellID:                  well,
			PeakID:                  domain.Int(domain.StrongestPeakID),
			SampleDescription:       domain.String("sample"),
			IntegratedAreaPct:       domain.Float(area),
			CalibratedConcentration: domain.Float(conc),
			Size:                    domain.Float(area * 10),
			PeakMolarity:            domain.Float(conc * 3),
		}
	}
	peaks := []domain.PeakRow{
		peak("A", "A1", 40, 5),
		peak("A", "A2", 10, 5),
		peak("B", "B1", 60, 15),
		peak("B", "B2", 80, 25),
		peak("C", "C1", 90, 5),
	}
	regions := []domain.RegionRow{{DatasetID: "B", WellID: "B1", AvgRegionSize: domain.Float(640)}}
	if err := store.Seed(context.Background(), peaks, regions); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store
}

func newTestService(t *testing.T, store domain.RecordSource) *core.Service {
	t.Helper()
	svc, err := core.NewService(store, core.WithConsumerFactory(render.NewFactory(render.WithSize(160, 120))))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func openSession(t *testing.T, h *Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d: %s", rec.Code, rec.Body.String())
	}
	location := rec.Header().Get("Location")
	if !strings.HasPrefix(location, "/sessions/") {
		t.Fatalf("unexpected redirect %s", location)
	}
	return strings.TrimPrefix(location, "/sessions/")
}

func waitForExport(t *testing.T, exports ExportScheduler, id string) ExportRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		record, ok := exports.GetExport(id)
		if ok && (record.Status == ExportStatusSucceeded || record.Status == ExportStatusFailed) {
			return record
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("export %s did not finish", id)
	return ExportRecord{}
}
