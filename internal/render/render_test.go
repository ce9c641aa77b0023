package render

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"tapeview/internal/core"
	"tapeview/pkg/domain"
)

func testBaseline(t *testing.T) *core.Baseline {
	t.Helper()
	b, err := core.Merge(
		[]domain.PeakRow{
			{DatasetID: "1", WellID: "A1", Size: domain.Float(300), PeakMolarity: domain.Float(12), IntegratedAreaPct: domain.Float(40)},
			{DatasetID: "1", WellID: "A2", Size: domain.Float(520), PeakMolarity: domain.Float(31), IntegratedAreaPct: domain.Float(80)},
		},
		[]domain.RegionRow{
			{DatasetID: "1", WellID: "A1", AvgRegionSize: domain.Float(330)},
			{DatasetID: "2", WellID: "B1", AvgRegionSize: domain.Float(900)},
		},
	)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	return b
}

func TestRenderProducesPNG(t *testing.T) {
	b := testBaseline(t)
	live := core.Recompute(b, core.DefaultControls(b))
	for _, plot := range Plots {
		var buf bytes.Buffer
		if _, err := Render(&buf, plot, live, 320, 240); err != nil {
			t.Fatalf("render %s: %v", plot, err)
		}
		img, err := png.Decode(&buf)
		if err != nil {
			t.Fatalf("decode %s: %v", plot, err)
		}
		if img.Bounds().Dx() != 320 || img.Bounds().Dy() != 240 {
			t.Fatalf("unexpected %s bounds %v", plot, img.Bounds())
		}
	}
}

func TestRenderEmptyLiveSet(t *testing.T) {
	b := testBaseline(t)
	c := core.DefaultControls(b)
	if err := c.SetSelectedDatasetIDs(nil); err != nil {
		t.Fatalf("select: %v", err)
	}
	live := core.Recompute(b, c)
	if live.Len() != 0 {
		t.Fatalf("expected empty live set")
	}
	var buf bytes.Buffer
	if _, err := Render(&buf, PlotSize, live, 200, 200); err != nil {
		t.Fatalf("render empty set: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected image bytes")
	}
}

func TestRenderEmptyBaseline(t *testing.T) {
	b, err := core.Merge(nil, nil)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	var buf bytes.Buffer
	if _, err := Render(&buf, PlotMolarity, core.Recompute(b, core.DefaultControls(b)), 200, 200); err != nil {
		t.Fatalf("render empty baseline: %v", err)
	}
}

func TestRenderUnknownPlot(t *testing.T) {
	b := testBaseline(t)
	var buf bytes.Buffer
	if _, err := Render(&buf, Plot("histogram"), core.Recompute(b, core.DefaultControls(b)), 200, 200); err == nil {
		t.Fatalf("expected unknown plot error")
	}
	if _, err := ParsePlot("histogram"); err == nil {
		t.Fatalf("expected parse error")
	}
	if p, err := ParsePlot("size"); err != nil || p != PlotSize {
		t.Fatalf("parse size: %v %v", p, err)
	}
}

func TestPlotterFollowsPublications(t *testing.T) {
	plotter := NewPlotter(WithSize(200, 150))
	if _, _, err := plotter.PNG(PlotMolarity); err == nil {
		t.Fatalf("expected no image before first publication")
	}
	session := core.NewSession("s1", testBaseline(t), plotter)
	first, gen, err := plotter.PNG(PlotMolarity)
	if err != nil || gen != 1 || len(first) == 0 {
		t.Fatalf("expected initial image, gen=%d err=%v", gen, err)
	}
	if _, err := session.SetAreaCutoff(50); err != nil {
		t.Fatalf("set cutoff: %v", err)
	}
	second, gen, err := plotter.PNG(PlotMolarity)
	if err != nil || gen != 2 {
		t.Fatalf("expected second image, gen=%d err=%v", gen, err)
	}
	if bytes.Equal(first, second) {
		t.Fatalf("expected image to change after filtering")
	}
	if _, _, err := plotter.PNG(PlotSize); err != nil {
		t.Fatalf("size plot: %v", err)
	}
	spots, gen := plotter.Hotspots(PlotMolarity)
	if gen != 2 || len(spots) != 1 || spots[0].Row.WellID != "A2" {
		t.Fatalf("expected hotspot for A2 only at generation 2, got %d %+v", gen, spots)
	}
}

func TestFactoryBuildsPlotterPerSession(t *testing.T) {
	factory := NewFactory(WithSize(120, 90))
	b := testBaseline(t)
	first := factory("a", b)
	second := factory("b", b)
	if first == second {
		t.Fatalf("expected distinct plotters")
	}
	if _, ok := first.(*Plotter); !ok {
		t.Fatalf("expected *Plotter, got %T", first)
	}
}

func TestRenderHotspotsMatchDrawnPoints(t *testing.T) {
	b := testBaseline(t)
	live := core.Recompute(b, core.DefaultControls(b))
	var buf bytes.Buffer
	spots, err := Render(&buf, PlotMolarity, live, 320, 240)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(spots) != 2 || spots[0].Row.WellID != "A1" || spots[1].Row.WellID != "A2" {
		t.Fatalf("expected hotspots for A1 and A2, got %+v", spots)
	}
	if spots[1].X <= spots[0].X || spots[1].Y >= spots[0].Y {
		t.Fatalf("larger size and molarity should sit right of and above: %+v", spots)
	}
	for _, spot := range spots {
		red, _, blue, _ := img.At(spot.X, spot.Y).RGBA()
		if blue>>8 < red>>8+50 {
			t.Fatalf("no point drawn at %d,%d for %s", spot.X, spot.Y, spot.Row.WellID)
		}
	}
	want := "TS Data ID: 1\nWell: A1\nSize [bp]: 300\nPeak Molarity [pmol/l]: 12\n" +
		"Calibrated Concentration [pg/µl]: NaN\n% Integrated Area: 40"
	if spots[0].Tooltip != want {
		t.Fatalf("unexpected tooltip %q", spots[0].Tooltip)
	}

	buf.Reset()
	spots, err = Render(&buf, PlotSize, live, 320, 240)
	if err != nil {
		t.Fatalf("render size: %v", err)
	}
	if len(spots) != 1 || !strings.HasSuffix(spots[0].Tooltip, "Avg size [bp]: 330") {
		t.Fatalf("expected one size hotspot for A1, got %+v", spots)
	}
}
