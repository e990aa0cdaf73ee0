package analysis

import (
	"bytes"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/richinex/delphi/artifact"
)

const (
	chartWidth  = 6 * vg.Inch
	chartHeight = 4 * vg.Inch
)

// chartRenderer renders plot outputs for a single execution. It is created
// per run and closed unconditionally when the run ends, so no chart state
// outlives the execution that produced it.
type chartRenderer struct {
	store *artifact.Store
}

func newRenderer(store *artifact.Store) *chartRenderer {
	return &chartRenderer{store: store}
}

// Close ends the execution's rendering. Each chart is a local value with no
// shared state behind it, so there is currently nothing to release.
func (r *chartRenderer) Close() {}

// Render builds the requested chart from the record set, writes it as a PNG
// artifact and returns the reference. The caller puts the reference, never
// the image bytes, into the result mapping.
func (r *chartRenderer) Render(name string, records []map[string]any, spec *PlotSpec) (artifact.Ref, error) {
	p := plot.New()
	p.Title.Text = spec.Title
	if spec.X != "" {
		p.X.Label.Text = spec.X
	}
	p.Y.Label.Text = spec.Y

	ys := fieldNumbers(records, spec.Y)
	if len(ys) == 0 {
		return artifact.Ref{}, fmt.Errorf("no numeric values in field %q to plot", spec.Y)
	}

	switch spec.Kind {
	case "bar":
		bars, err := plotter.NewBarChart(plotter.Values(ys), vg.Points(18))
		if err != nil {
			return artifact.Ref{}, fmt.Errorf("build bar chart: %w", err)
		}
		p.Add(bars)
		if spec.X != "" {
			p.NominalX(fieldLabels(records, spec.X, len(ys))...)
		}
	case "line":
		line, err := plotter.NewLine(xyPoints(records, spec))
		if err != nil {
			return artifact.Ref{}, fmt.Errorf("build line chart: %w", err)
		}
		p.Add(line)
	case "scatter":
		points, err := plotter.NewScatter(xyPoints(records, spec))
		if err != nil {
			return artifact.Ref{}, fmt.Errorf("build scatter chart: %w", err)
		}
		p.Add(points)
	case "histogram":
		hist, err := plotter.NewHist(plotter.Values(ys), 16)
		if err != nil {
			return artifact.Ref{}, fmt.Errorf("build histogram: %w", err)
		}
		p.Add(hist)
	default:
		return artifact.Ref{}, fmt.Errorf("unknown plot kind %q", spec.Kind)
	}

	writer, err := p.WriterTo(chartWidth, chartHeight, "png")
	if err != nil {
		return artifact.Ref{}, fmt.Errorf("render chart: %w", err)
	}
	var buf bytes.Buffer
	if _, err := writer.WriteTo(&buf); err != nil {
		return artifact.Ref{}, fmt.Errorf("encode chart: %w", err)
	}
	return r.store.Save(name+".png", buf.Bytes(), artifact.CategoryImage)
}

// xyPoints pairs x and y values per record. Without an x field the record
// index is used.
func xyPoints(records []map[string]any, spec *PlotSpec) plotter.XYs {
	var pts plotter.XYs
	for i, rec := range records {
		y, ok := asFloat(rec[spec.Y])
		if !ok {
			continue
		}
		x := float64(i)
		if spec.X != "" {
			if xv, ok := asFloat(rec[spec.X]); ok {
				x = xv
			}
		}
		pts = append(pts, plotter.XY{X: x, Y: y})
	}
	return pts
}

func fieldLabels(records []map[string]any, field string, n int) []string {
	labels := make([]string, 0, n)
	for _, rec := range records {
		if len(labels) == n {
			break
		}
		labels = append(labels, fmt.Sprintf("%v", rec[field]))
	}
	for len(labels) < n {
		labels = append(labels, "")
	}
	return labels
}
