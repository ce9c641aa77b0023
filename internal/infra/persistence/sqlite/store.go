// Package sqlite reads TapeStation peak and region tables from an embedded
// SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"tapeview/internal/sqlbundle"
	"tapeview/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.RecordStore = (*Store)(nil)

const (
	driverName  = "sqlite"
	defaultPath = "tapestation.db"

	selectPeaks   = `SELECT ` + sqlbundle.PeakColumns + ` FROM peaks ORDER BY rowid`
	selectRegions = `SELECT ` + sqlbundle.RegionColumns + ` FROM regions ORDER BY rowid`
	insertPeak    = `INSERT INTO peaks(` + sqlbundle.PeakColumns + `) VALUES(?,?,?,?,?,?,?,?)`
	insertRegion  = `INSERT INTO regions(` + sqlbundle.RegionColumns + `) VALUES(?,?,?)`
)

// Store reads records from a SQLite file. Rows come back in insertion order.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating when absent) the SQLite file at path and ensures
// the record tables exist.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, unavailable(fmt.Errorf("create dirs: %w", err))
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, unavailable(fmt.Errorf("open sqlite: %w", err))
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable(fmt.Errorf("ping sqlite: %w", err))
	}
	if err := sqlbundle.Apply(ctx, db, sqlbundle.SQLite()); err != nil {
		_ = db.Close()
		return nil, unavailable(err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying sql.DB for tests.
func (s *Store) DB() *sql.DB { return s.db }

// PeakRows implements domain.RecordSource.
func (s *Store) PeakRows(ctx context.Context) ([]domain.PeakRow, error) {
	rows, err := sqlbundle.QueryPeaks(ctx, s.db, selectPeaks)
	if err != nil {
		return nil, unavailable(err)
	}
	return rows, nil
}

// RegionRows implements domain.RecordSource.
func (s *Store) RegionRows(ctx context.Context) ([]domain.RegionRow, error) {
	rows, err := sqlbundle.QueryRegions(ctx, s.db, selectRegions)
	if err != nil {
		return nil, unavailable(err)
	}
	return rows, nil
}

// Seed appends rows to both tables in one transaction.
func (s *Store) Seed(ctx context.Context, peaks []domain.PeakRow, regions []domain.RegionRow) error {
	if err := sqlbundle.Insert(ctx, s.db, insertPeak, insertRegion, peaks, regions); err != nil {
		return unavailable(err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func unavailable(err error) error {
	return domain.ErrStoreUnavailable{Driver: driverName, Err: err}
}
