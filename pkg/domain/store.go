package domain

import "context"

// RecordSource supplies the two raw tables the dashboard merges. Rows are
// returned in storage order. Implementations report connection and query
// failures as ErrStoreUnavailable.
type RecordSource interface {
	PeakRows(ctx context.Context) ([]PeakRow, error)
	RegionRows(ctx context.Context) ([]RegionRow, error)
}

// RecordStore is a RecordSource that can also be loaded, used by imports and tests.
type RecordStore interface {
	RecordSource
	Seed(ctx context.Context, peaks []PeakRow, regions []RegionRow) error
	Close() error
}
