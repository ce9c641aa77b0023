// Package memory implements an in-process record store for tests and demos.
package memory

import (
	"context"
	"sync"

	"tapeview/pkg/domain"
)

var _ domain.RecordStore = (*Store)(nil)

// Store keeps peak and region rows in memory. Reads return copies.
type Store struct {
	mu      sync.RWMutex
	peaks   []domain.PeakRow
	regions []domain.RegionRow
	err     error
}

// NewStore returns an empty store.
func NewStore() *Store { return &Store{} }

// FailWith makes subsequent reads return err wrapped as ErrStoreUnavailable.
// A nil err restores normal reads.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// PeakRows implements domain.RecordSource.
func (s *Store) PeakRows(ctx context.Context) ([]domain.PeakRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.PeakRow, len(s.peaks))
	copy(out, s.peaks)
	return out, nil
}

// RegionRows implements domain.RecordSource.
func (s *Store) RegionRows(ctx context.Context) ([]domain.RegionRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.RegionRow, len(s.regions))
	copy(out, s.regions)
	return out, nil
}

// Seed appends rows to both tables.
func (s *Store) Seed(_ context.Context, peaks []domain.PeakRow, regions []domain.RegionRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peaks = append(s.peaks, peaks...)
	s.regions = append(s.regions, regions...)
	return nil
}

// Close implements domain.RecordStore.
func (s *Store) Close() error { return nil }

func (s *Store) check(ctx context.Context) error {
	if s.err != nil {
		return domain.ErrStoreUnavailable{Driver: "memory", Err: s.err}
	}
	if err := ctx.Err(); err != nil {
		return domain.ErrStoreUnavailable{Driver: "memory", Err: err}
	}
	return nil
}
