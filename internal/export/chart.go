package export

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"math"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ChartStyle controls the PNG rendering.
type ChartStyle struct {
	Title     string
	Width     int
	Height    int
	LineColor string
}

// DefaultChartStyle matches the built-in display profile.
func DefaultChartStyle() ChartStyle {
	return ChartStyle{Title: "Anomaly scores", Width: 1024, Height: 640, LineColor: "#1f77b4"}
}

// PNG renders two stacked charts: the value series on top and the score
// series below, each score dot drawn in its stored point color with the
// threshold as a dashed line.
func PNG(w io.Writer, doc Document, style ChartStyle) error {
	if len(doc.Values) == 0 {
		return ErrNoPoints
	}
	if len(doc.Scores) != len(doc.Values) {
		return fmt.Errorf("export: %d values but %d scores", len(doc.Values), len(doc.Scores))
	}
	if style.Width <= 0 || style.Height <= 0 {
		def := DefaultChartStyle()
		style.Width, style.Height = def.Width, def.Height
	}
	half := style.Height / 2

	xs := labelAxis(doc)
	xRange := padRange(xs[0], xs[len(xs)-1])
	line := drawing.ParseColor(style.LineColor)

	top := chart.Chart{
		Title:      style.Title,
		Width:      style.Width,
		Height:     half,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.XAxis{Range: xRange},
		YAxis:      chart.YAxis{Name: "value", Range: seriesRange(doc.Values)},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "value",
				XValues: xs,
				YValues: doc.Values,
				Style:   chart.Style{StrokeWidth: 1.5, StrokeColor: line},
			},
		},
	}

	colors := doc.Colors
	scoreRange := seriesRange(append([]float64{doc.Options.Threshold}, doc.Scores...))
	bottom := chart.Chart{
		Width:      style.Width,
		Height:     style.Height - half,
		Background: chart.Style{Padding: chart.Box{Top: 16, Left: 16, Right: 16, Bottom: 24}},
		XAxis:      chart.XAxis{Name: "label", Range: xRange},
		YAxis:      chart.YAxis{Name: "score", Range: scoreRange},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "score",
				XValues: xs,
				YValues: doc.Scores,
				Style: chart.Style{
					StrokeWidth: 1,
					StrokeColor: drawing.Color{A: 64},
					DotWidth:    3,
					DotColorProvider: func(_, _ chart.Range, index int, _, _ float64) drawing.Color {
						if index < len(colors) {
							return drawing.ParseColor(colors[index])
						}
						return drawing.ColorTransparent
					},
				},
			},
			chart.ContinuousSeries{
				Name:    "threshold",
				XValues: []float64{xs[0], xs[len(xs)-1]},
				YValues: []float64{doc.Options.Threshold, doc.Options.Threshold},
				Style: chart.Style{
					StrokeWidth:     1,
					StrokeColor:     drawing.ParseColor(doc.Options.AlarmColor),
					StrokeDashArray: []float64{4, 4},
				},
			},
		},
	}

	canvas := image.NewRGBA(image.Rect(0, 0, style.Width, style.Height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	for i, c := range []chart.Chart{top, bottom} {
		img, err := renderChart(c)
		if err != nil {
			return fmt.Errorf("export: render chart %d: %w", i, err)
		}
		at := image.Pt(0, i*half)
		draw.Draw(canvas, img.Bounds().Add(at), img, img.Bounds().Min, draw.Over)
	}
	if err := png.Encode(w, canvas); err != nil {
		return fmt.Errorf("export: encode png: %w", err)
	}
	return nil
}

func renderChart(c chart.Chart) (image.Image, error) {
	var buf bytes.Buffer
	if err := c.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return png.Decode(&buf)
}

// labelAxis returns numeric x positions; labels are the buffer's point labels.
func labelAxis(doc Document) []float64 {
	xs := make([]float64, len(doc.Values))
	for i := range xs {
		xs[i] = float64(i)
		if i < len(doc.Labels) {
			if label, err := strconv.Atoi(doc.Labels[i]); err == nil {
				xs[i] = float64(label)
			}
		}
	}
	return xs
}

func seriesRange(vs []float64) *chart.ContinuousRange {
	low, high := vs[0], vs[0]
	for _, v := range vs[1:] {
		low = math.Min(low, v)
		high = math.Max(high, v)
	}
	return padRange(low, high)
}

// padRange widens a degenerate range so go-chart accepts single points.
func padRange(low, high float64) *chart.ContinuousRange {
	if high-low == 0 {
		low, high = low-1, high+1
	}
	return &chart.ContinuousRange{Min: low, Max: high}
}
