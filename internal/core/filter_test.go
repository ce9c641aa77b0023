package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"tapeview/pkg/domain"
)

func TestRecomputeScenario(t *testing.T) {
	b := scenarioBaseline(t)
	c := DefaultControls(b)

	steps := []struct {
		name  string
		apply func(*Controls) error
		want  []string
	}{
		{"defaults", func(*Controls) error { return nil }, []string{"A1", "A2", "B1", "B2", "C1"}},
		{"cutoff 50", func(c *Controls) error { return c.SetAreaCutoff(50) }, []string{"B1", "B2", "C1"}},
		{"range 10-20", func(c *Controls) error { return c.SetConcentrationRange(Range{Min: 10, Max: 20}) }, []string{"B1"}},
		{"select A", func(c *Controls) error { return c.SetSelectedDatasetIDs([]string{"A"}) }, []string{}},
		{"select all", func(c *Controls) error { return c.SetSelectedDatasetIDs([]string{"A", "B", "C"}) }, []string{"B1"}},
	}
	for _, step := range steps {
		mustSet(t, step.apply(&c))
		got := wells(Recompute(b, c))
		if diff := cmp.Diff(step.want, got); diff != "" {
			t.Fatalf("%s: live wells mismatch (-want +got):\n%s", step.name, diff)
		}
	}
}

func TestRecomputeDefaultIsIdentity(t *testing.T) {
	b, err := Merge(
		[]domain.PeakRow{
			{DatasetID: "1", WellID: "A1", IntegratedAreaPct: domain.Float(12), CalibratedConcentration: domain.Float(3)},
			{DatasetID: "1", WellID: "A2"},
		},
		[]domain.RegionRow{{DatasetID: "2", WellID: "B1", AvgRegionSize: domain.Float(400)}},
	)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	live := Recompute(b, DefaultControls(b))
	if diff := cmp.Diff(b.Rows(), live.Rows()); diff != "" {
		t.Fatalf("default live set differs from baseline (-want +got):\n%s", diff)
	}
}

func TestRecomputeExcludesNullsOnlyForRestrictingTerms(t *testing.T) {
	b, err := Merge(
		[]domain.PeakRow{
			{DatasetID: "1", WellID: "A1", IntegratedAreaPct: domain.Float(40), CalibratedConcentration: domain.Float(3)},
			{DatasetID: "1", WellID: "A2", CalibratedConcentration: domain.Float(4)},
			{DatasetID: "1", WellID: "A3", IntegratedAreaPct: domain.Float(70)},
		},
		nil,
	)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	c := DefaultControls(b)
	mustSet(t, c.SetAreaCutoff(10))
	if diff := cmp.Diff([]string{"A1", "A3"}, wells(Recompute(b, c))); diff != "" {
		t.Fatalf("null area should be excluded by cutoff (-want +got):\n%s", diff)
	}

	c = DefaultControls(b)
	mustSet(t, c.SetConcentrationRange(Range{Min: 3.5, Max: 10}))
	if diff := cmp.Diff([]string{"A2"}, wells(Recompute(b, c))); diff != "" {
		t.Fatalf("null concentration should be excluded by narrowed range (-want +got):\n%s", diff)
	}

	c = DefaultControls(b)
	mustSet(t, c.SetConcentrationRange(Range{Min: 0, Max: 100}))
	if diff := cmp.Diff([]string{"A1", "A2"}, wells(Recompute(b, c))); diff != "" {
		t.Fatalf("a set range excludes null concentrations even when wide (-want +got):\n%s", diff)
	}
}

func TestRecomputeMembershipIgnoresOtherRows(t *testing.T) {
	rows := func(lowest float64) []domain.PeakRow {
		return []domain.PeakRow{
			{DatasetID: "1", WellID: "N"},
			{DatasetID: "1", WellID: "X", CalibratedConcentration: domain.Float(lowest)},
			{DatasetID: "1", WellID: "Y", CalibratedConcentration: domain.Float(10)},
		}
	}
	var got [][]string
	for _, lowest := range []float64{3, 2} {
		b, err := Merge(rows(lowest), nil)
		if err != nil {
			t.Fatalf("merge: %v", err)
		}
		c := DefaultControls(b)
		mustSet(t, c.SetConcentrationRange(Range{Min: 3, Max: 10}))
		live := wells(Recompute(b, c))
		for _, w := range live {
			if w == "N" {
				t.Fatalf("null concentration row N passed a set range: %v", live)
			}
		}
		got = append(got, live)
	}
	if diff := cmp.Diff([][]string{{"X", "Y"}, {"Y"}}, got); diff != "" {
		t.Fatalf("unexpected live sets (-want +got):\n%s", diff)
	}
}

func TestRecomputeIsSubsetOfBaselineAndDoesNotMutate(t *testing.T) {
	b := scenarioBaseline(t)
	before := b.Rows()
	c := DefaultControls(b)
	mustSet(t, c.SetAreaCutoff(35))
	mustSet(t, c.SetSelectedDatasetIDs([]string{"A", "C"}))
	live := Recompute(b, c)
	for i := 0; i < live.Len(); i++ {
		if live.Row(i) != b.Row(live.BaselineIndex(i)) {
			t.Fatalf("live row %d differs from its baseline row", i)
		}
		if i > 0 && live.BaselineIndex(i) <= live.BaselineIndex(i-1) {
			t.Fatalf("live set not in baseline order")
		}
	}
	if diff := cmp.Diff(before, b.Rows()); diff != "" {
		t.Fatalf("baseline mutated:\n%s", diff)
	}
}

func TestRecomputeMonotonicCutoff(t *testing.T) {
	b := scenarioBaseline(t)
	prev := b.Len() + 1
	for cutoff := 0.0; cutoff <= 100; cutoff += 5 {
		c := DefaultControls(b)
		mustSet(t, c.SetAreaCutoff(cutoff))
		n := Recompute(b, c).Len()
		if n > prev {
			t.Fatalf("raising cutoff to %g grew the live set from %d to %d", cutoff, prev, n)
		}
		prev = n
	}
}

func TestRecomputeMonotonicRangeAndSelection(t *testing.T) {
	b := scenarioBaseline(t)
	wide := DefaultControls(b)
	narrow := wide
	mustSet(t, narrow.SetConcentrationRange(Range{Min: 5, Max: 15}))
	mustSet(t, narrow.SetSelectedDatasetIDs([]string{"A", "B"}))
	wideSet := map[string]bool{}
	for _, w := range wells(Recompute(b, wide)) {
		wideSet[w] = true
	}
	for _, w := range wells(Recompute(b, narrow)) {
		if !wideSet[w] {
			t.Fatalf("narrowed controls admitted %s", w)
		}
	}
}

func TestRecomputeOrderIndependent(t *testing.T) {
	b := scenarioBaseline(t)
	cutoff := func(c *Controls) error { return c.SetAreaCutoff(30) }
	conc := func(c *Controls) error { return c.SetConcentrationRange(Range{Min: 4, Max: 16}) }
	sel := func(c *Controls) error { return c.SetSelectedDatasetIDs([]string{"A", "B"}) }

	orders := [][]func(*Controls) error{
		{cutoff, conc, sel},
		{sel, conc, cutoff},
		{conc, sel, cutoff},
	}
	var want []string
	for i, order := range orders {
		c := DefaultControls(b)
		for _, fn := range order {
			mustSet(t, fn(&c))
		}
		got := wells(Recompute(b, c))
		if i == 0 {
			want = got
			continue
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("order %d changed live set (-want +got):\n%s", i, diff)
		}
	}
	if diff := cmp.Diff([]string{"A1", "B1"}, want); diff != "" {
		t.Fatalf("unexpected live set (-want +got):\n%s", diff)
	}
}

func TestRecomputeLossless(t *testing.T) {
	b := scenarioBaseline(t)
	c := DefaultControls(b)
	initial := wells(Recompute(b, c))

	mustSet(t, c.SetAreaCutoff(95))
	mustSet(t, c.SetConcentrationRange(Range{Min: 24, Max: 24}))
	mustSet(t, c.SetSelectedDatasetIDs(nil))
	if n := Recompute(b, c).Len(); n != 0 {
		t.Fatalf("expected empty live set, got %d", n)
	}

	mustSet(t, c.SetAreaCutoff(0))
	mustSet(t, c.SetConcentrationRange(Range{Min: 5, Max: 25}))
	mustSet(t, c.SetSelectedDatasetIDs(b.DatasetIDs()))
	if diff := cmp.Diff(initial, wells(Recompute(b, c))); diff != "" {
		t.Fatalf("restoring controls lost rows (-want +got):\n%s", diff)
	}
}

func TestRecomputeUnknownDatasetSelectsNothing(t *testing.T) {
	b := scenarioBaseline(t)
	c := DefaultControls(b)
	mustSet(t, c.SetSelectedDatasetIDs([]string{"Z"}))
	if n := Recompute(b, c).Len(); n != 0 {
		t.Fatalf("expected no rows, got %d", n)
	}
}

func TestRecomputeInclusiveBounds(t *testing.T) {
	b := scenarioBaseline(t)
	c := DefaultControls(b)
	mustSet(t, c.SetAreaCutoff(40))
	mustSet(t, c.SetConcentrationRange(Range{Min: 5, Max: 5}))
	if diff := cmp.Diff([]string{"A1", "C1"}, wells(Recompute(b, c))); diff != "" {
		t.Fatalf("bounds should be inclusive (-want +got):\n%s", diff)
	}
}
