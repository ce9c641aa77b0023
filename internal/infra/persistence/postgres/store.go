// Package postgres reads TapeStation peak and region tables from a Postgres
// server through the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"tapeview/internal/sqlbundle"
	"tapeview/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ domain.RecordStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/tapestation?sslmode=disable"

	selectPeaks   = `SELECT ` + sqlbundle.PeakColumns + ` FROM peaks ORDER BY row_id`
	selectRegions = `SELECT ` + sqlbundle.RegionColumns + ` FROM regions ORDER BY row_id`
	insertPeak    = `INSERT INTO peaks(` + sqlbundle.PeakColumns + `) VALUES($1,$2,$3,$4,$5,$6,$7,$8)`
	insertRegion  = `INSERT INTO regions(` + sqlbundle.RegionColumns + `) VALUES($1,$2,$3)`
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// OverrideSQLOpen replaces the sql.Open hook for tests and returns a restore func.
func OverrideSQLOpen(fn func(driverName, dsn string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}

// Store reads records from Postgres. Rows come back in load order.
type Store struct {
	db *sql.DB
}

// NewStore connects using dsn (falls back to defaultDSN) and ensures the
// record tables exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, unavailable(fmt.Errorf("open postgres: %w", err))
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable(fmt.Errorf("ping postgres: %w", err))
	}
	if err := sqlbundle.Apply(ctx, db, sqlbundle.Postgres()); err != nil {
		_ = db.Close()
		return nil, unavailable(err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
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

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func unavailable(err error) error {
	return domain.ErrStoreUnavailable{Driver: "postgres", Err: err}
}
