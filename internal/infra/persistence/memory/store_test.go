package memory

import (
	"context"
	"errors"
	"testing"

	"tapeview/pkg/domain"
)

func TestSeedAndReadReturnsCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if err := store.Seed(ctx, []domain.PeakRow{{DatasetID: "1", WellID: "A1", Size: domain.Float(100)}}, []domain.RegionRow{{DatasetID: "1", WellID: "A1"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	peaks, err := store.PeakRows(ctx)
	if err != nil || len(peaks) != 1 {
		t.Fatalf("peaks: %v %v", peaks, err)
	}
	peaks[0].Size = domain.Float(1)
	again, _ := store.PeakRows(ctx)
	if v, _ := again[0].Size.Get(); v != 100 {
		t.Fatalf("store rows mutated through returned slice: %v", v)
	}
	regions, err := store.RegionRows(ctx)
	if err != nil || len(regions) != 1 {
		t.Fatalf("regions: %v %v", regions, err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestFailWith(t *testing.T) {
	store := NewStore()
	cause := errors.New("connection refused")
	store.FailWith(cause)
	_, err := store.PeakRows(context.Background())
	var unavailable domain.ErrStoreUnavailable
	if !errors.As(err, &unavailable) || !errors.Is(err, cause) {
		t.Fatalf("expected unavailable wrapping cause, got %v", err)
	}
	store.FailWith(nil)
	if _, err := store.RegionRows(context.Background()); err != nil {
		t.Fatalf("expected reads to recover, got %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewStore().RegionRows(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
