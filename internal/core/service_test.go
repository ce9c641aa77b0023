package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tapeview/internal/infra/persistence/memory"
	"tapeview/pkg/domain"
)

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	peaks := []domain.PeakRow{
		{DatasetID: "7", WellID: "A1", PeakID: domain.Int(1), SampleDescription: domain.String("liver"),
			IntegratedAreaPct: domain.Float(55), CalibratedConcentration: domain.Float(2.5), Size: domain.Float(310), PeakMolarity: domain.Float(12)},
		{DatasetID: "7", WellID: "A1", PeakID: domain.Int(2), SampleDescription: domain.String("liver"),
			IntegratedAreaPct: domain.Float(20), CalibratedConcentration: domain.Float(1), Size: domain.Float(900)},
		{DatasetID: "7", WellID: "EL1", PeakID: domain.Int(1), SampleDescription: domain.String(domain.LadderSampleDescription),
			IntegratedAreaPct: domain.Float(99), Size: domain.Float(25)},
		{DatasetID: "8", WellID: "B4", PeakID: domain.Int(1),
			IntegratedAreaPct: domain.Float(70), CalibratedConcentration: domain.Float(9), Size: domain.Float(450), PeakMolarity: domain.Float(30)},
	}
	regions := []domain.RegionRow{
		{DatasetID: "7", WellID: "A1", AvgRegionSize: domain.Float(330)},
		{DatasetID: "9", WellID: "C2", AvgRegionSize: domain.Float(1200)},
	}
	if err := store.Seed(context.Background(), peaks, regions); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store
}

func TestServiceOpenSession(t *testing.T) {
	var published []string
	svc, err := NewService(seededStore(t), WithConsumerFactory(func(id string, b *Baseline) Consumer {
		return ConsumerFunc(func(l LiveSet) { published = append(published, fmt.Sprintf("%s:%d", id, l.Len())) })
	}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.newID = func() string { return "fixed" }

	session, err := svc.OpenSession(context.Background())
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	want := []domain.Record{
		{DatasetID: "7", WellID: "A1", IntegratedAreaPct: domain.Float(55), CalibratedConcentration: domain.Float(2.5),
			Size: domain.Float(310), PeakMolarity: domain.Float(12), AvgRegionSize: domain.Float(330)},
		{DatasetID: "8", WellID: "B4", IntegratedAreaPct: domain.Float(70), CalibratedConcentration: domain.Float(9),
			Size: domain.Float(450), PeakMolarity: domain.Float(30)},
		{DatasetID: "9", WellID: "C2", AvgRegionSize: domain.Float(1200)},
	}
	if diff := cmp.Diff(want, session.Baseline().Rows()); diff != "" {
		t.Fatalf("baseline mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"fixed:3"}, published); diff != "" {
		t.Fatalf("initial publication mismatch (-want +got):\n%s", diff)
	}
	got, ok := svc.Session("fixed")
	if !ok || got != session {
		t.Fatalf("expected session to be registered")
	}
	if !svc.CloseSession("fixed") || svc.OpenSessions() != 0 {
		t.Fatalf("expected session to close")
	}
	if _, ok := svc.Session("fixed"); ok {
		t.Fatalf("closed session still reachable")
	}
}

func TestServiceSessionsShareNothingMutable(t *testing.T) {
	svc, err := NewService(seededStore(t))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	first, err := svc.OpenSession(context.Background())
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	second, err := svc.OpenSession(context.Background())
	if err != nil {
		t.Fatalf("open second: %v", err)
	}
	if first.ID() == second.ID() {
		t.Fatalf("expected distinct session ids")
	}
	if _, err := first.SetSelectedDatasetIDs(nil); err != nil {
		t.Fatalf("set selection: %v", err)
	}
	if second.Live().Len() != 3 {
		t.Fatalf("mutation leaked across sessions")
	}
}

func TestServiceStoreUnavailable(t *testing.T) {
	store := seededStore(t)
	store.FailWith(errors.New("disk gone"))
	metrics := &captureMetricsRecorder{}
	svc, err := NewService(store, WithMetrics(metrics))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	_, err = svc.OpenSession(context.Background())
	var unavailable domain.ErrStoreUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if svc.OpenSessions() != 0 {
		t.Fatalf("failed open must not register a session")
	}
	if !metrics.has(OpOpenSession, false) {
		t.Fatalf("expected failure metric for open_session")
	}
}

type failingSource struct{ err error }

func (f failingSource) PeakRows(context.Context) ([]domain.PeakRow, error)     { return nil, f.err }
func (f failingSource) RegionRows(context.Context) ([]domain.RegionRow, error) { return nil, nil }

func TestServiceWrapsBareSourceErrors(t *testing.T) {
	cause := errors.New("connection refused")
	svc, err := NewService(failingSource{err: cause})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	_, err = svc.LoadBaseline(context.Background())
	var unavailable domain.ErrStoreUnavailable
	if !errors.As(err, &unavailable) || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestServiceDuplicateKeysAbortSession(t *testing.T) {
	store := memory.NewStore()
	dup := domain.PeakRow{DatasetID: "1", WellID: "A1", PeakID: domain.Int(1)}
	if err := store.Seed(context.Background(), []domain.PeakRow{dup, dup}, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	_, err = svc.OpenSession(context.Background())
	var duplicate domain.ErrDuplicateKey
	if !errors.As(err, &duplicate) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestServiceSessionCapacity(t *testing.T) {
	svc, err := NewService(seededStore(t), WithSessionCapacity(2))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	var ids []string
	for i := 0; i < 3; i++ {
		s, err := svc.OpenSession(context.Background())
		if err != nil {
			t.Fatalf("open session %d: %v", i, err)
		}
		ids = append(ids, s.ID())
	}
	if svc.OpenSessions() != 2 {
		t.Fatalf("expected capacity to bound sessions, got %d", svc.OpenSessions())
	}
	if _, ok := svc.Session(ids[0]); ok {
		t.Fatalf("expected oldest session to be dropped")
	}
}

func TestNewServiceValidation(t *testing.T) {
	if _, err := NewService(nil); err == nil {
		t.Fatalf("expected nil source to fail")
	}
	if _, err := NewService(memory.NewStore(), WithSessionCapacity(0)); err == nil {
		t.Fatalf("expected zero capacity to fail")
	}
}
