// Package render draws the dashboard scatter plots from published live sets.
package render

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"go.uber.org/zap"

	"tapeview/internal/core"
	"tapeview/pkg/domain"
)

// Plot names one of the dashboard figures.
type Plot string

const (
	// PlotMolarity is size against peak molarity of the strongest peaks.
	PlotMolarity Plot = "molarity"
	// PlotSize is strongest peak size against average region size.
	PlotSize Plot = "size"
)

// Plots lists every figure in page order.
var Plots = []Plot{PlotMolarity, PlotSize}

// ParsePlot resolves a plot name.
func ParsePlot(name string) (Plot, error) {
	switch Plot(name) {
	case PlotMolarity, PlotSize:
		return Plot(name), nil
	default:
		return "", fmt.Errorf("unknown plot %q", name)
	}
}

const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	pointColor     = drawing.ColorFromHex("1f77b4")
	referenceColor = drawing.ColorFromHex("FB8072")
)

type figure struct {
	title   string
	xName   string
	yName   string
	x, y    func(domain.Record) domain.NullFloat
	square  bool
	tooltip []tooltipField
}

type tooltipField struct {
	label string
	value func(domain.Record) string
}

func size(r domain.Record) domain.NullFloat          { return r.Size }
func molarity(r domain.Record) domain.NullFloat      { return r.PeakMolarity }
func avgSize(r domain.Record) domain.NullFloat       { return r.AvgRegionSize }
func concentration(r domain.Record) domain.NullFloat { return r.CalibratedConcentration }
func area(r domain.Record) domain.NullFloat          { return r.IntegratedAreaPct }

func numeric(field func(domain.Record) domain.NullFloat) func(domain.Record) string {
	return func(r domain.Record) string {
		v, ok := field(r).Get()
		if !ok {
			return "NaN"
		}
		return strconv.FormatFloat(v, 'g', 6, 64)
	}
}

var (
	tipDataset = tooltipField{"TS Data ID", func(r domain.Record) string { return r.DatasetID }}
	tipWell    = tooltipField{"Well", func(r domain.Record) string { return r.WellID }}
	tipSize    = tooltipField{"Size [bp]", numeric(size)}
)

var figures = map[Plot]figure{
	PlotMolarity: {
		title:   "Size vs Peak Molarity of Strongest Peaks",
		xName:   "Size [bp]",
		yName:   "Peak Molarity [pmol/l]",
		x:       size,
		y:       molarity,
		tooltip: []tooltipField{
			tipDataset, tipWell, tipSize,
			{"Peak Molarity [pmol/l]", numeric(molarity)},
			{"Calibrated Concentration [pg/µl]", numeric(concentration)},
			{"% Integrated Area", numeric(area)},
		},
	},
	PlotSize: {
		title:   "Size of Strongest Peak vs Avg Size of Region [bp]",
		xName:   "Size of Strongest Peak [bp]",
		yName:   "Avg Size of Region [bp]",
		x:       size,
		y:       avgSize,
		square:  true,
		tooltip: []tooltipField{
			tipDataset, tipWell, tipSize,
			{"Avg size [bp]", numeric(avgSize)},
		},
	},
}

// Hotspot is the pixel position of a drawn point, measured from the top left
// of the image, with the hover text of the row it shows.
type Hotspot struct {
	X, Y    int
	Row     domain.Record
	Tooltip string
}

// Render writes plot as a PNG of the live set and returns where each point
// was drawn. Axis ranges come from the baseline so the frame stays put while
// controls change and an empty live set still renders. Rows missing either
// coordinate are not drawn.
func Render(w io.Writer, plot Plot, live core.LiveSet, width, height int) ([]Hotspot, error) {
	fig, ok := figures[plot]
	if !ok {
		return nil, fmt.Errorf("unknown plot %q", plot)
	}
	b := live.Baseline()
	xr := axisRange(b, fig.x)
	yr := axisRange(b, fig.y)
	if fig.square {
		xr = union(xr, yr)
		yr = xr
	}

	var (
		xs, ys []float64
		drawn  []domain.Record
	)
	for i := 0; i < live.Len(); i++ {
		row := live.Row(i)
		x, okx := fig.x(row).Get()
		y, oky := fig.y(row).Get()
		if !okx || !oky {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, y)
		drawn = append(drawn, row)
	}
	var spots []Hotspot

	series := []chart.Series{frame(xr, yr)}
	if fig.square {
		lo := math.Max(0, xr.Min)
		series = append(series, chart.ContinuousSeries{
			Name:    "y = x",
			XValues: []float64{lo, xr.Max},
			YValues: []float64{lo, xr.Max},
			Style:   chart.Style{StrokeWidth: 1.5, StrokeColor: referenceColor},
		})
	}
	if len(xs) > 0 {
		series = append(series, chart.ContinuousSeries{
			Name:    "wells",
			XValues: xs,
			YValues: ys,
			Style:   chart.Style{StrokeWidth: chart.Disabled, DotWidth: 4, DotColor: pointColor},
		}, hotspotSeries{xs: xs, ys: ys, rows: drawn, fig: fig, out: &spots})
	}

	ch := chart.Chart{
		Title:      fig.title,
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 24, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.XAxis{Name: fig.xName, Range: &chart.ContinuousRange{Min: xr.Min, Max: xr.Max}},
		YAxis:      chart.YAxis{Name: fig.yName, Range: &chart.ContinuousRange{Min: yr.Min, Max: yr.Max}},
		Series:     series,
	}
	if err := ch.Render(chart.PNG, w); err != nil {
		return nil, fmt.Errorf("render %s plot: %w", plot, err)
	}
	return spots, nil
}

// hotspotSeries draws nothing. go-chart hands it the final canvas box and
// axis ranges, which it uses to record where each point landed.
type hotspotSeries struct {
	xs, ys []float64
	rows   []domain.Record
	fig    figure
	out    *[]Hotspot
}

func (s hotspotSeries) GetName() string           { return "hotspots" }
func (s hotspotSeries) GetYAxis() chart.YAxisType { return chart.YAxisPrimary }
func (s hotspotSeries) GetStyle() chart.Style     { return chart.Style{} }
func (s hotspotSeries) Validate() error           { return nil }

func (s hotspotSeries) Render(_ chart.Renderer, box chart.Box, xrange, yrange chart.Range, _ chart.Style) {
	spots := make([]Hotspot, len(s.xs))
	for i := range s.xs {
		spots[i] = Hotspot{
			X:       box.Left + xrange.Translate(s.xs[i]),
			Y:       box.Bottom - yrange.Translate(s.ys[i]),
			Row:     s.rows[i],
			Tooltip: s.fig.describe(s.rows[i]),
		}
	}
	*s.out = spots
}

func (f figure) describe(r domain.Record) string {
	lines := make([]string, len(f.tooltip))
	for i, field := range f.tooltip {
		lines[i] = field.label + ": " + field.value(r)
	}
	return strings.Join(lines, "\n")
}

// frame pins the plot corners with an invisible series; go-chart refuses a
// chart without at least one non-empty series.
func frame(xr, yr core.Range) chart.ContinuousSeries {
	return chart.ContinuousSeries{
		Name:    "frame",
		XValues: []float64{xr.Min, xr.Max},
		YValues: []float64{yr.Min, yr.Max},
		Style: chart.Style{
			StrokeWidth: chart.Disabled,
			StrokeColor: drawing.ColorTransparent,
			DotWidth:    chart.Disabled,
		},
	}
}

func axisRange(b *core.Baseline, field func(domain.Record) domain.NullFloat) core.Range {
	r, ok := b.Extent(field)
	if !ok {
		return core.Range{Min: 0, Max: 1}
	}
	pad := (r.Max - r.Min) * 0.05
	if pad == 0 {
		pad = math.Max(math.Abs(r.Min)*0.05, 1)
	}
	return core.Range{Min: r.Min - pad, Max: r.Max + pad}
}

func union(a, b core.Range) core.Range {
	return core.Range{Min: math.Min(a.Min, b.Min), Max: math.Max(a.Max, b.Max)}
}

// Option configures a Plotter.
type Option func(*Plotter)

// WithSize sets the image dimensions in pixels.
func WithSize(width, height int) Option {
	return func(p *Plotter) {
		if width > 0 && height > 0 {
			p.width, p.height = width, height
		}
	}
}

// WithLogger sets the plotter logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Plotter) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Plotter is a core.Consumer that re-renders both plots on every publication
// and serves the most recent images.
type Plotter struct {
	width, height int
	logger        *zap.Logger

	mu         sync.RWMutex
	images     map[Plot][]byte
	hotspots   map[Plot][]Hotspot
	generation uint64
	err        error
}

var _ core.Consumer = (*Plotter)(nil)

// NewPlotter returns a plotter with no images until the first publication.
func NewPlotter(opts ...Option) *Plotter {
	p := &Plotter{
		width:  DefaultWidth,
		height: DefaultHeight,
		logger: zap.NewNop(),
		images: make(map[Plot][]byte, len(Plots)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish implements core.Consumer. A render failure is kept and returned
// by PNG rather than propagated, since publication cannot fail.
func (p *Plotter) Publish(live core.LiveSet) {
	images := make(map[Plot][]byte, len(Plots))
	hotspots := make(map[Plot][]Hotspot, len(Plots))
	var renderErr error
	for _, plot := range Plots {
		var buf bytes.Buffer
		spots, err := Render(&buf, plot, live, p.width, p.height)
		if err != nil {
			renderErr = err
			p.logger.Error("plot render failed",
				zap.String("plot", string(plot)),
				zap.Uint64("generation", live.Generation()),
				zap.Error(err))
			continue
		}
		images[plot] = buf.Bytes()
		hotspots[plot] = spots
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.images = images
	p.hotspots = hotspots
	p.generation = live.Generation()
	p.err = renderErr
}

// PNG returns the latest image of plot and the live set generation it shows.
func (p *Plotter) PNG(plot Plot) ([]byte, uint64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	img, ok := p.images[plot]
	if !ok {
		if p.err != nil {
			return nil, p.generation, p.err
		}
		return nil, p.generation, fmt.Errorf("plot %s not rendered", plot)
	}
	return img, p.generation, nil
}

// Hotspots returns the point positions of the latest image of plot and the
// live set generation they belong to.
func (p *Plotter) Hotspots(plot Plot) ([]Hotspot, uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hotspots[plot], p.generation
}

// NewFactory returns a core.ConsumerFactory giving every session its own Plotter.
func NewFactory(opts ...Option) core.ConsumerFactory {
	return func(sessionID string, _ *core.Baseline) core.Consumer {
		return NewPlotter(append(append([]Option(nil), opts...), func(p *Plotter) {
			p.logger = p.logger.With(zap.String("session", sessionID))
		})...)
	}
}
