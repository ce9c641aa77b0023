// Package sqldocs exposes the record-table SQL bundles directly from the docs tree.
package sqldocs

import _ "embed"

// SQLite contains the SQLite DDL for the peaks and regions tables.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the Postgres DDL for the peaks and regions tables.
//
//go:embed postgres.sql
var Postgres string
