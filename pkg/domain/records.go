// Package domain defines the fragment-analysis records, value types, and
// error kinds shared by the tapeview stores, filter engine, and adapters.
package domain

import "fmt"

// LadderSampleDescription marks electronic ladder wells, which carry sizing
// standards rather than sample fragments and never reach the baseline.
const LadderSampleDescription = "Electronic Ladder"

// StrongestPeakID is the peak number assigned to the strongest peak of a well.
const StrongestPeakID = 1

// Key identifies a merged record. Peak and region rows are joined on it.
type Key struct {
	DatasetID string `json:"dataset_id"`
	WellID    string `json:"well_id"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.DatasetID, k.WellID)
}

// PeakRow is one row of the peaks table as stored.
type PeakRow struct {
	DatasetID               string     `json:"dataset_id"`
	WellID                  string     `json:"well_id"`
	PeakID                  NullInt    `json:"peak_id"`
	SampleDescription       NullString `json:"samp_desc"`
	PeakMolarity            NullFloat  `json:"peak_mol"`
	IntegratedAreaPct       NullFloat  `json:"int_area"`
	Size                    NullFloat  `json:"size"`
	CalibratedConcentration NullFloat  `json:"cal_conc"`
}

// Key returns the join key of the row.
func (p PeakRow) Key() Key { return Key{DatasetID: p.DatasetID, WellID: p.WellID} }

// IsLadder reports whether the row belongs to the reserved ladder category.
// Rows without a sample description are samples.
func (p PeakRow) IsLadder() bool {
	v, ok := p.SampleDescription.Get()
	return ok && v == LadderSampleDescription
}

// IsStrongest reports whether the row is the first (strongest) peak of its well.
func (p PeakRow) IsStrongest() bool {
	v, ok := p.PeakID.Get()
	return ok && v == StrongestPeakID
}

// RegionRow is the projection of the regions table used by the dashboard.
type RegionRow struct {
	DatasetID     string    `json:"dataset_id"`
	WellID        string    `json:"well_id"`
	AvgRegionSize NullFloat `json:"avg_size"`
}

// Key returns the join key of the row.
func (r RegionRow) Key() Key { return Key{DatasetID: r.DatasetID, WellID: r.WellID} }

// Record is one merged row. Every measurement is optional because the merge
// is an outer join and either side may be missing.
type Record struct {
	DatasetID               string    `json:"dataset_id"`
	WellID                  string    `json:"well_id"`
	PeakMolarity            NullFloat `json:"peak_mol"`
	IntegratedAreaPct       NullFloat `json:"int_area"`
	Size                    NullFloat `json:"size"`
	CalibratedConcentration NullFloat `json:"cal_conc"`
	AvgRegionSize           NullFloat `json:"avg_size"`
}

// Key returns the join key of the record.
func (r Record) Key() Key { return Key{DatasetID: r.DatasetID, WellID: r.WellID} }
