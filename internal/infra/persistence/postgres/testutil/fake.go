// Package testutil provides a fake Postgres connection that understands the
// statements the record store issues against the peaks and regions tables.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"tapeview/internal/sqlbundle"
)

// Row is a stored table row. ID plays the role of the BIGSERIAL row_id.
type Row struct {
	ID     int64
	Values []driver.Value
}

// Conn is a single fake connection shared by every handle of its sql.DB.
// Inserts issued inside a transaction become visible on commit. Row ids are
// taken from one sequence and are not returned on rollback.
type Conn struct {
	FailPing   bool
	FailTables map[string]bool
	FailCommit bool

	mu         sync.Mutex
	statements []string
	tables     map[string][]Row
	pending    map[string][]Row
	nextID     int64
}

var (
	tableColumns = map[string][]string{
		"peaks":   splitColumns(sqlbundle.PeakColumns),
		"regions": splitColumns(sqlbundle.RegionColumns),
	}

	createRe = regexp.MustCompile(`(?is)^CREATE TABLE IF NOT EXISTS (\w+)\s*\(`)
	insertRe = regexp.MustCompile(`(?is)^INSERT INTO (\w+)\s*\(([^)]*)\)\s*VALUES`)
	selectRe = regexp.MustCompile(`(?is)^SELECT (.+) FROM (\w+)(.*)$`)
	orderRe  = regexp.MustCompile(`(?is)^\s*ORDER BY row_id\s*$`)

	registered atomic.Int64
)

// NewFakeDB registers a fresh driver and returns a sql.DB over a new Conn.
func NewFakeDB() (*sql.DB, *Conn) {
	conn := &Conn{tables: map[string][]Row{"peaks": nil, "regions": nil}}
	name := fmt.Sprintf("fakepg%d", registered.Add(1))
	sql.Register(name, fakeDriver{conn: conn})
	db, err := sql.Open(name, "fake")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type fakeDriver struct{ conn *Conn }

func (d fakeDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Statements returns every statement executed so far, DDL included.
func (c *Conn) Statements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.statements)
}

// Rows returns the committed rows of table in storage order.
func (c *Conn) Rows(table string) []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.tables[table])
}

// PutRow stores a committed row with an explicit id. Rows keep the order they
// were put in, so ids may be stored out of order.
func (c *Conn) PutRow(table string, id int64, values ...driver.Value) error {
	cols, ok := tableColumns[table]
	if !ok {
		return fmt.Errorf("unknown table %q", table)
	}
	if len(values) != len(cols) {
		return fmt.Errorf("%s takes %d values, got %d", table, len(cols), len(values))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[table] = append(c.tables[table], Row{ID: id, Values: values})
	if id >= c.nextID {
		c.nextID = id
	}
	return nil
}

// Prepare implements driver.Conn; every statement runs through ExecContext
// or QueryContext.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

// Close implements driver.Conn.
func (c *Conn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *Conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx implements driver.ConnBeginTx.
func (c *Conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return nil, errors.New("transaction already open")
	}
	c.pending = make(map[string][]Row)
	return fakeTx{conn: c}, nil
}

// Ping implements driver.Pinger.
func (c *Conn) Ping(context.Context) error {
	if c.FailPing {
		return errors.New("connection refused")
	}
	return nil
}

// ExecContext implements driver.ExecerContext.
func (c *Conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	query = strings.TrimSpace(query)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statements = append(c.statements, query)

	if m := createRe.FindStringSubmatch(query); m != nil {
		if _, ok := tableColumns[strings.ToLower(m[1])]; !ok {
			return nil, fmt.Errorf("unexpected table %q", m[1])
		}
		return driver.RowsAffected(0), nil
	}
	m := insertRe.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("unsupported statement: %s", query)
	}
	table := strings.ToLower(m[1])
	if err := c.checkColumns(table, m[2]); err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("insert into %s: disk full", table)
	}
	if len(args) != len(tableColumns[table]) {
		return nil, fmt.Errorf("insert into %s: %d args for %d columns", table, len(args), len(tableColumns[table]))
	}
	values := make([]driver.Value, len(args))
	for i, arg := range args {
		values[i] = arg.Value
	}
	c.nextID++
	row := Row{ID: c.nextID, Values: values}
	if c.pending != nil {
		c.pending[table] = append(c.pending[table], row)
	} else {
		c.tables[table] = append(c.tables[table], row)
	}
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext. Reads must select the
// table's full column list and order by row_id.
func (c *Conn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	query = strings.TrimSpace(query)
	m := selectRe.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	table := strings.ToLower(m[2])
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkColumns(table, m[1]); err != nil {
		return nil, err
	}
	if !orderRe.MatchString(m[3]) {
		return nil, fmt.Errorf("select from %s: rows have no defined order without ORDER BY row_id", table)
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("select from %s: relation is locked", table)
	}
	rows := slices.Clone(c.tables[table])
	slices.SortStableFunc(rows, func(a, b Row) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return &fakeRows{cols: tableColumns[table], rows: rows}, nil
}

func (c *Conn) checkColumns(table, list string) error {
	want, ok := tableColumns[table]
	if !ok {
		return fmt.Errorf("relation %q does not exist", table)
	}
	if got := splitColumns(list); !slices.Equal(got, want) {
		return fmt.Errorf("%s columns %v, want %v", table, got, want)
	}
	return nil
}

type fakeTx struct{ conn *Conn }

func (t fakeTx) Commit() error {
	c := t.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := c.pending
	c.pending = nil
	if c.FailCommit {
		return errors.New("could not serialize access")
	}
	for table, rows := range pending {
		c.tables[table] = append(c.tables[table], rows...)
	}
	return nil
}

func (t fakeTx) Rollback() error {
	t.conn.mu.Lock()
	t.conn.pending = nil
	t.conn.mu.Unlock()
	return nil
}

type fakeRows struct {
	cols []string
	rows []Row
	idx  int
}

func (r *fakeRows) Columns() []string { return r.cols }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx].Values)
	r.idx++
	return nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
