package dashboard

import (
	"bytes"
	"html/template"
	"net/http"
	"strconv"

	"tapeview/internal/core"
	"tapeview/internal/render"
	"tapeview/pkg/domain"
)

var pageTemplate = template.Must(template.New("page").Funcs(template.FuncMap{
	"value": func(v domain.NullFloat) string {
		f, ok := v.Get()
		if !ok {
			return "NaN"
		}
		return strconv.FormatFloat(f, 'g', 6, 64)
	},
	"number": func(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>TapeStation dashboard</title>
<style>
body { font-family: sans-serif; margin: 1.5em; }
.error { color: #b00020; }
.controls label { display: block; margin: 0.5em 0; }
.plots img { margin-right: 1em; border: 1px solid #ddd; }
table { border-collapse: collapse; font-size: 0.9em; }
td, th { padding: 0.2em 0.6em; border-bottom: 1px solid #eee; text-align: right; }
</style>
</head>
<body>
<h1>TapeStation dashboard</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{if .SessionID}}
<p class="readme">Both plots show the strongest peak of each well. The first plots size against
peak molarity, the second plots size against the average size of the region. Hover a point for
its values. "TS data ids" selects which datasets are plotted, the calibrated concentration range
limits the concentration of the strongest peak, and the integrated area cutoff sets the minimum
% integrated area of the strongest peak.</p>
<form class="controls" method="post" action="/sessions/{{.SessionID}}/controls">
<label>Integrated area cutoff [%]
<input type="number" name="area_cutoff" min="0" max="100" step="1" value="{{number .Controls.AreaCutoff}}"></label>
{{if .HasBounds}}
<label>Calibrated concentration [pg/µl] from
<input type="number" name="conc_min" step="any" min="{{number .Bounds.Min}}" max="{{number .Bounds.Max}}" value="{{number .Controls.ConcentrationRange.Min}}">
to
<input type="number" name="conc_max" step="any" min="{{number .Bounds.Min}}" max="{{number .Bounds.Max}}" value="{{number .Controls.ConcentrationRange.Max}}"></label>
{{end}}
<input type="hidden" name="datasets_present" value="1">
<label>TS data ids
<select name="datasets" multiple size="{{.SelectSize}}">
{{range .Datasets}}<option value="{{.ID}}"{{if .Selected}} selected{{end}}>{{.ID}}</option>
{{end}}</select></label>
<button type="submit">Apply</button>
</form>
<p>{{.LiveRows}} of {{.BaselineRows}} wells shown (update {{.Generation}}).</p>
<div class="plots">
{{range .Plots}}<img src="/sessions/{{$.SessionID}}/plots/{{.Name}}.png?g={{$.Generation}}" alt="{{.Name}} plot"{{if .Areas}} usemap="#{{.Name}}-points"{{end}}>
{{if .Areas}}<map name="{{.Name}}-points">
{{range .Areas}}<area shape="circle" coords="{{.X}},{{.Y}},{{$.HotspotRadius}}" title="{{.Tooltip}}" alt="{{.Tooltip}}">
{{end}}</map>
{{end}}{{end}}</div>
<table>
<thead><tr><th>TS Data ID</th><th>Well</th><th>Size [bp]</th><th>Peak Molarity [pmol/l]</th><th>Calibrated Concentration [pg/µl]</th><th>% Integrated Area</th><th>Avg Size [bp]</th></tr></thead>
<tbody>
{{range .Rows}}<tr><td>{{.DatasetID}}</td><td>{{.WellID}}</td><td>{{value .Size}}</td><td>{{value .PeakMolarity}}</td><td>{{value .CalibratedConcentration}}</td><td>{{value .IntegratedAreaPct}}</td><td>{{value .AvgRegionSize}}</td></tr>
{{end}}</tbody>
</table>
{{else}}
<p><a href="/">Start a new session</a></p>
{{end}}
</body>
</html>
`))

type datasetOption struct {
	ID       string
	Selected bool
}

// HotspotSource reports where the points of the latest plot images were
// drawn. The render.Plotter attached as session consumer implements it.
type HotspotSource interface {
	Hotspots(plot render.Plot) ([]render.Hotspot, uint64)
}

// hotspotRadius is the hover radius in pixels around a drawn point.
const hotspotRadius = 5

type plotView struct {
	Name  render.Plot
	Areas []render.Hotspot
}

type pageData struct {
	SessionID     string
	Generation    uint64
	Controls      core.ControlsView
	Bounds        core.Range
	HasBounds     bool
	Datasets      []datasetOption
	SelectSize    int
	Plots         []plotView
	HotspotRadius int
	Rows          []domain.Record
	LiveRows      int
	BaselineRows  int
	Error         string
}

func newPageData(session *core.Session, message string) pageData {
	live := session.Live()
	b := session.Baseline()
	controls := live.Controls()
	data := pageData{
		SessionID:    session.ID(),
		Generation:   live.Generation(),
		Controls:     controls.View(),
		Rows:         live.Rows(),
		LiveRows:     live.Len(),
		BaselineRows: b.Len(),
		Error:        message,
	}
	data.Bounds, data.HasBounds = b.ConcentrationBounds()
	data.HotspotRadius = hotspotRadius
	source, _ := session.Consumer().(HotspotSource)
	for _, plot := range render.Plots {
		view := plotView{Name: plot}
		// areas of an older or newer image would point at the wrong rows
		if source != nil {
			if spots, generation := source.Hotspots(plot); generation == live.Generation() {
				view.Areas = spots
			}
		}
		data.Plots = append(data.Plots, view)
	}
	for _, id := range b.DatasetIDs() {
		data.Datasets = append(data.Datasets, datasetOption{ID: id, Selected: controls.IsSelected(id)})
	}
	data.SelectSize = min(max(len(data.Datasets), 2), 10)
	return data
}

func renderPage(w http.ResponseWriter, status int, session *core.Session, message string) {
	writeHTML(w, status, newPageData(session, message))
}

func renderFailure(w http.ResponseWriter, status int, err error) {
	writeHTML(w, status, pageData{Error: err.Error()})
}

func writeHTML(w http.ResponseWriter, status int, data pageData) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
