package core

import (
	"testing"

	"tapeview/pkg/domain"
)

// scenarioBaseline builds the five-row baseline:
// A:(40,5) A:(10,5) B:(60,15) B:(80,25) C:(90,5) as (area %, concentration).
func scenarioBaseline(t *testing.T) *Baseline {
	t.Helper()
	peaks := []domain.PeakRow{
		scenarioPeak("A", "A1", 40, 5),
		scenarioPeak("A", "A2", 10, 5),
		scenarioPeak("B", "B1", 60, 15),
		scenarioPeak("B", "B2", 80, 25),
		scenarioPeak("C", "C1", 90, 5),
	}
	b, err := Merge(peaks, nil)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	return b
}

func scenarioPeak(dataset, well string, area, conc float64) domain.PeakRow {
	return domain.PeakRow{
		DatasetID:               dataset,
		WellID:                  well,
		PeakID:                  domain.Int(1),
		IntegratedAreaPct:       domain.Float(area),
		CalibratedConcentration: domain.Float(conc),
		Size:                    domain.Float(area * 10),
		PeakMolarity:            domain.Float(conc * 2),
	}
}

func wells(l LiveSet) []string {
	out := make([]string, 0, l.Len())
	for _, r := range l.Rows() {
		out = append(out, r.WellID)
	}
	return out
}

func mustSet(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected control error: %v", err)
	}
}
