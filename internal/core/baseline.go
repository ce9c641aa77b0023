package core

import (
	"math"

	"tapeview/pkg/domain"
)

// Baseline is the immutable merged record set of a session. It is built once
// by Merge and only ever read afterwards, so it may be shared freely between
// goroutines and sessions.
type Baseline struct {
	rows       []domain.Record
	datasetIDs []string
	concBounds Range
	hasConc    bool
}

func newBaseline(rows []domain.Record) *Baseline {
	b := &Baseline{rows: rows}
	seen := make(map[string]struct{})
	for _, row := range rows {
		if _, ok := seen[row.DatasetID]; !ok {
			seen[row.DatasetID] = struct{}{}
			b.datasetIDs = append(b.datasetIDs, row.DatasetID)
		}
	}
	b.concBounds, b.hasConc = b.Extent(func(r domain.Record) domain.NullFloat { return r.CalibratedConcentration })
	return b
}

// Len returns the number of baseline rows.
func (b *Baseline) Len() int { return len(b.rows) }

// Row returns a copy of the row at position i.
func (b *Baseline) Row(i int) domain.Record { return b.rows[i] }

// Rows returns a copy of all rows in baseline order.
func (b *Baseline) Rows() []domain.Record {
	out := make([]domain.Record, len(b.rows))
	copy(out, b.rows)
	return out
}

// DatasetIDs returns the distinct dataset ids in order of first appearance.
func (b *Baseline) DatasetIDs() []string {
	out := make([]string, len(b.datasetIDs))
	copy(out, b.datasetIDs)
	return out
}

// ConcentrationBounds returns the observed calibrated concentration extent.
// The boolean is false when no row carries a concentration.
func (b *Baseline) ConcentrationBounds() (Range, bool) { return b.concBounds, b.hasConc }

// Extent returns the minimum and maximum of the present values selected by field.
func (b *Baseline) Extent(field func(domain.Record) domain.NullFloat) (Range, bool) {
	r := Range{Min: math.Inf(1), Max: math.Inf(-1)}
	found := false
	for _, row := range b.rows {
		v, ok := field(row).Get()
		if !ok {
			continue
		}
		found = true
		r.Min = math.Min(r.Min, v)
		r.Max = math.Max(r.Max, v)
	}
	if !found {
		return Range{}, false
	}
	return r, true
}
