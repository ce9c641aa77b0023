// Package sqlbundle exposes the record-table DDL and the row codecs shared by
// the SQL record stores.
package sqlbundle

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"strings"

	sqldocs "tapeview/docs/schema/sql"
	"tapeview/pkg/domain"
)

// PeakColumns and RegionColumns list the columns read and written, in scan order.
const (
	PeakColumns   = "ts_data_id, well_id, peak_id, samp_desc, peak_mol, int_area, size, cal_conc"
	RegionColumns = "ts_data_id, well_id, avg_size"
)

// SQLite returns the SQLite DDL for the record tables.
func SQLite() string {
	return sqldocs.SQLite
}

// Postgres returns the Postgres DDL for the record tables.
func Postgres() string {
	return sqldocs.Postgres
}

// SplitStatements splits a semicolon-terminated DDL script into executable statements.
// It drops blank lines and single-line comments that start with "--".
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}

	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}

	return stmts
}

// Apply executes every statement of ddl.
func Apply(ctx context.Context, db *sql.DB, ddl string) error {
	for _, stmt := range SplitStatements(ddl) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// QueryPeaks runs query and scans PeakColumns rows.
func QueryPeaks(ctx context.Context, db *sql.DB, query string) ([]domain.PeakRow, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select peaks: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.PeakRow
	for rows.Next() {
		var p domain.PeakRow
		if err := rows.Scan(&p.DatasetID, &p.WellID, &p.PeakID, &p.SampleDescription,
			&p.PeakMolarity, &p.IntegratedAreaPct, &p.Size, &p.CalibratedConcentration); err != nil {
			return nil, fmt.Errorf("scan peak: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate peaks: %w", err)
	}
	return out, nil
}

// QueryRegions runs query and scans RegionColumns rows.
func QueryRegions(ctx context.Context, db *sql.DB, query string) ([]domain.RegionRow, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select regions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.RegionRow
	for rows.Next() {
		var r domain.RegionRow
		if err := rows.Scan(&r.DatasetID, &r.WellID, &r.AvgRegionSize); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate regions: %w", err)
	}
	return out, nil
}

// Insert writes peaks and regions inside one transaction using the given
// statements, which must take PeakColumns and RegionColumns arguments in order.
func Insert(ctx context.Context, db *sql.DB, insertPeak, insertRegion string, peaks []domain.PeakRow, regions []domain.RegionRow) (retErr error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, p := range peaks {
		if _, err := tx.ExecContext(ctx, insertPeak, p.DatasetID, p.WellID, p.PeakID, p.SampleDescription,
			p.PeakMolarity, p.IntegratedAreaPct, p.Size, p.CalibratedConcentration); err != nil {
			return fmt.Errorf("insert peak %s: %w", p.Key(), err)
		}
	}
	for _, r := range regions {
		if _, err := tx.ExecContext(ctx, insertRegion, r.DatasetID, r.WellID, r.AvgRegionSize); err != nil {
			return fmt.Errorf("insert region %s: %w", r.Key(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
