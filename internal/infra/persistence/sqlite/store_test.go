package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tapeview/pkg/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(context.Background(), filepath.Join(t.TempDir(), "nested", "tape.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSeedAndReadPreservesOrderAndNulls(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	peaks := []domain.PeakRow{
		{DatasetID: "2", WellID: "B1", PeakID: domain.Int(1), SampleDescription: domain.String("liver"),
			PeakMolarity: domain.Float(120.5), IntegratedAreaPct: domain.Float(44), Size: domain.Float(310), CalibratedConcentration: domain.Float(8.25)},
		{DatasetID: "1", WellID: "A1", PeakID: domain.Int(2)},
		{DatasetID: "1", WellID: "A2", PeakID: domain.Int(1), SampleDescription: domain.String(domain.LadderSampleDescription), Size: domain.Float(25)},
	}
	regions := []domain.RegionRow{
		{DatasetID: "2", WellID: "B1", AvgRegionSize: domain.Float(298)},
		{DatasetID: "3", WellID: "C4"},
	}
	if err := store.Seed(ctx, peaks, regions); err != nil {
		t.Fatalf("seed: %v", err)
	}

	gotPeaks, err := store.PeakRows(ctx)
	if err != nil {
		t.Fatalf("peaks: %v", err)
	}
	if diff := cmp.Diff(peaks, gotPeaks); diff != "" {
		t.Fatalf("peak rows mismatch (-want +got):\n%s", diff)
	}
	gotRegions, err := store.RegionRows(ctx)
	if err != nil {
		t.Fatalf("regions: %v", err)
	}
	if diff := cmp.Diff(regions, gotRegions); diff != "" {
		t.Fatalf("region rows mismatch (-want +got):\n%s", diff)
	}
}

func TestReopenKeepsRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tape.db")
	store, err := NewStore(ctx, path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Seed(ctx, nil, []domain.RegionRow{{DatasetID: "7", WellID: "H12", AvgRegionSize: domain.Float(1500)}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_ = store.Close()

	reopened, err := NewStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if reopened.Path() != path {
		t.Fatalf("expected path %s, got %s", path, reopened.Path())
	}
	regions, err := reopened.RegionRows(ctx)
	if err != nil || len(regions) != 1 {
		t.Fatalf("expected one region after reopen, got %v %v", regions, err)
	}
}

func TestClosedStoreReportsUnavailable(t *testing.T) {
	store := newTestStore(t)
	_ = store.Close()
	_, err := store.PeakRows(context.Background())
	var unavailable domain.ErrStoreUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if unavailable.Driver != "sqlite" {
		t.Fatalf("unexpected driver %q", unavailable.Driver)
	}
	if _, err := store.RegionRows(context.Background()); err == nil {
		t.Fatalf("expected region read error on closed store")
	}
	if err := store.Seed(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected seed error on closed store")
	}
}
