package core

import "tapeview/pkg/domain"

// LiveSet is the subset of a baseline that satisfies a Controls value. It
// records baseline positions, so membership is by row identity and row values
// are always read from the baseline unchanged.
type LiveSet struct {
	baseline   *Baseline
	index      []int
	controls   Controls
	generation uint64
}

// Recompute derives the live set for c from the full baseline. It never
// consults a previous live set, which makes the result independent of the
// order in which controls were changed.
//
// A row with a missing value is excluded by a term that reads that value
// while the term is restricting. The area term restricts once the cutoff is
// above zero; the concentration term restricts once a range has been set.
// Membership of a row therefore depends on its own values and c only.
func Recompute(b *Baseline, c Controls) LiveSet {
	p := newPredicate(c)
	index := make([]int, 0, len(b.rows))
	for i := range b.rows {
		if p.match(&b.rows[i]) {
			index = append(index, i)
		}
	}
	return LiveSet{baseline: b, index: index, controls: c}
}

type predicate struct {
	c           Controls
	cutoffOn    bool
	concRangeOn bool
}

func newPredicate(c Controls) predicate {
	return predicate{
		c:           c,
		cutoffOn:    c.areaCutoff > minAreaCutoff,
		concRangeOn: c.concRangeOn,
	}
}

func (p predicate) match(r *domain.Record) bool {
	if !p.c.IsSelected(r.DatasetID) {
		return false
	}
	if p.cutoffOn {
		v, ok := r.IntegratedAreaPct.Get()
		if !ok || v < p.c.areaCutoff {
			return false
		}
	}
	if p.concRangeOn {
		v, ok := r.CalibratedConcentration.Get()
		if !ok || !p.c.concRange.Contains(v) {
			return false
		}
	}
	return true
}

// Len returns the number of live rows.
func (l LiveSet) Len() int { return len(l.index) }

// Row returns the i-th live row.
func (l LiveSet) Row(i int) domain.Record { return l.baseline.rows[l.index[i]] }

// BaselineIndex returns the baseline position of the i-th live row.
func (l LiveSet) BaselineIndex(i int) int { return l.index[i] }

// Rows returns copies of the live rows in baseline order.
func (l LiveSet) Rows() []domain.Record {
	out := make([]domain.Record, len(l.index))
	for i, at := range l.index {
		out[i] = l.baseline.rows[at]
	}
	return out
}

// Baseline returns the baseline the set was derived from.
func (l LiveSet) Baseline() *Baseline { return l.baseline }

// Controls returns the control state the set was derived from.
func (l LiveSet) Controls() Controls { return l.controls }

// Generation counts the publications of a session; the initial set is 1.
func (l LiveSet) Generation() uint64 { return l.generation }
