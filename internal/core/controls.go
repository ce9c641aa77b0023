package core

import (
	"fmt"
	"math"
	"sort"

	"tapeview/pkg/domain"
)

// Control names used in ErrInvalidControlValue.
const (
	ControlAreaCutoff         = "area_cutoff"
	ControlConcentrationRange = "concentration_range"
	ControlSelectedDatasets   = "selected_dataset_ids"
)

const (
	minAreaCutoff = 0
	maxAreaCutoff = 100
)

// Range is a closed numeric interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies within the closed interval.
func (r Range) Contains(v float64) bool { return r.Min <= v && v <= r.Max }

// Controls holds the value of the three dashboard controls. The zero value
// selects nothing; use DefaultControls for the session start state.
//
// Controls is a value type. Setters replace the selection set rather than
// editing it, so copies handed out never change underneath their holder.
//
// The concentration range only restricts once it has been set. Until then it
// reports the observed bounds for display and lets every row through.
type Controls struct {
	areaCutoff  float64
	concRange   Range
	concRangeOn bool
	selected    map[string]struct{}
}

// DefaultControls returns the start state for a baseline: no area cutoff,
// an unrestricted concentration range showing the observed bounds, and every
// dataset selected.
func DefaultControls(b *Baseline) Controls {
	bounds, _ := b.ConcentrationBounds()
	c := Controls{concRange: bounds}
	c.selected = toSet(b.DatasetIDs())
	return c
}

// AreaCutoff returns the inclusive lower bound on integrated area percent.
func (c Controls) AreaCutoff() float64 { return c.areaCutoff }

// ConcentrationRange returns the closed calibrated concentration interval.
func (c Controls) ConcentrationRange() Range { return c.concRange }

// ConcentrationRangeActive reports whether the range has been set and so
// restricts rows.
func (c Controls) ConcentrationRangeActive() bool { return c.concRangeOn }

// SelectedDatasetIDs returns the selected dataset ids in sorted order.
func (c Controls) SelectedDatasetIDs() []string {
	out := make([]string, 0, len(c.selected))
	for id := range c.selected {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsSelected reports whether rows of the dataset may appear in the live set.
func (c Controls) IsSelected(datasetID string) bool {
	_, ok := c.selected[datasetID]
	return ok
}

// SetAreaCutoff sets the integrated area threshold. It must be a percentage.
func (c *Controls) SetAreaCutoff(v float64) error {
	if math.IsNaN(v) || v < minAreaCutoff || v > maxAreaCutoff {
		return domain.ErrInvalidControlValue{
			Control: ControlAreaCutoff,
			Reason:  fmt.Sprintf("%g outside [%d, %d]", v, minAreaCutoff, maxAreaCutoff),
		}
	}
	c.areaCutoff = v
	return nil
}

// SetConcentrationRange sets the concentration interval. Bounds are never swapped.
func (c *Controls) SetConcentrationRange(r Range) error {
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) {
		return domain.ErrInvalidControlValue{Control: ControlConcentrationRange, Reason: "bounds must be numbers"}
	}
	if r.Min > r.Max {
		return domain.ErrInvalidControlValue{
			Control: ControlConcentrationRange,
			Reason:  fmt.Sprintf("min %g greater than max %g", r.Min, r.Max),
		}
	}
	c.concRange = r
	c.concRangeOn = true
	return nil
}

// SetSelectedDatasetIDs replaces the selection. An empty selection is valid.
func (c *Controls) SetSelectedDatasetIDs(ids []string) error {
	c.selected = toSet(ids)
	return nil
}

// ControlsView is the serialisable form of Controls.
type ControlsView struct {
	AreaCutoff               float64  `json:"area_cutoff"`
	ConcentrationRange       Range    `json:"concentration_range"`
	ConcentrationRangeActive bool     `json:"concentration_range_active"`
	SelectedDatasetIDs       []string `json:"selected_dataset_ids"`
}

// View returns a serialisable copy of the controls.
func (c Controls) View() ControlsView {
	return ControlsView{
		AreaCutoff:               c.areaCutoff,
		ConcentrationRange:       c.concRange,
		ConcentrationRangeActive: c.concRangeOn,
		SelectedDatasetIDs:       c.SelectedDatasetIDs(),
	}
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
