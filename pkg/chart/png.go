package chart

import (
	"image/color"
	"io"
	"math"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/seasonal/forecastd/pkg/models"
)

// Figure geometry
const (
	figureWidth     = 10 * vg.Inch
	figureHeight    = 6 * vg.Inch
	componentHeight = 3 * vg.Inch
	timeFormat      = "2006-01-02\n15:04"
)

var (
	forecastColor    = color.RGBA{R: 0x00, G: 0x72, B: 0xB2, A: 0xFF}
	bandColor        = color.RGBA{R: 0x00, G: 0x72, B: 0xB2, A: 0x40}
	historyColor     = color.RGBA{A: 0xFF}
	changepointColor = color.RGBA{R: 0xD6, G: 0x27, B: 0x28, A: 0xFF}
)

func unixX(t time.Time) float64 {
	return float64(t.Unix())
}

func newTimePlot(title, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "ds"
	p.Y.Label.Text = ylabel
	p.X.Tick.Marker = plot.TimeTicks{Format: timeFormat}
	p.Add(plotter.NewGrid())
	return p
}

// clip restricts the visible x range to [from, until]
func clip(p *plot.Plot, from *time.Time, until time.Time) {
	if from == nil {
		return
	}
	p.X.Min = unixX(*from)
	p.X.Max = unixX(until)
}

func renderForecastPNG(w io.Writer, s *Series, opts models.RenderOptions) error {
	until := lastTimestamp(s.Rows)
	rows := visibleRows(s.Rows, opts.VisibleWindowStart)
	if len(rows) == 0 {
		return errors.New("visible window contains no predicted rows")
	}
	history := visibleHistory(s.History, opts.VisibleWindowStart, until)

	p := newTimePlot(s.Title, "y")

	if opts.ShowUncertaintyBand {
		ring := make(plotter.XYs, 0, 2*len(rows))
		for _, row := range rows {
			ring = append(ring, plotter.XY{X: unixX(row.Timestamp), Y: row.YHatUpper})
		}
		for i := len(rows) - 1; i >= 0; i-- {
			ring = append(ring, plotter.XY{X: unixX(rows[i].Timestamp), Y: rows[i].YHatLower})
		}
		band, err := plotter.NewPolygon(ring)
		if err != nil {
			return errors.Wrap(err, "uncertainty band")
		}
		band.Color = bandColor
		band.LineStyle.Width = 0
		p.Add(band)
		if opts.IncludeLegend {
			p.Legend.Add("uncertainty", band)
		}
	}

	if len(history) > 0 {
		xys := make(plotter.XYs, len(history))
		for i, pt := range history {
			xys[i] = plotter.XY{X: unixX(pt.T), Y: pt.Y}
		}
		scatter, err := plotter.NewScatter(xys)
		if err != nil {
			return errors.Wrap(err, "history")
		}
		scatter.GlyphStyle.Color = historyColor
		scatter.GlyphStyle.Radius = vg.Points(1)
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(scatter)
		if opts.IncludeLegend {
			p.Legend.Add("observed", scatter)
		}
	}

	yhat := make(plotter.XYs, len(rows))
	for i, row := range rows {
		yhat[i] = plotter.XY{X: unixX(row.Timestamp), Y: row.YHat}
	}
	line, err := plotter.NewLine(yhat)
	if err != nil {
		return errors.Wrap(err, "forecast line")
	}
	line.LineStyle.Color = forecastColor
	line.LineStyle.Width = vg.Points(1.5)
	p.Add(line)
	if opts.IncludeLegend {
		p.Legend.Add("forecast", line)
	}

	if opts.ShowTrendChangepoints {
		if err := addChangepoints(p, s, rows, opts); err != nil {
			return err
		}
	}

	if opts.IncludeLegend {
		p.Legend.Top = true
		p.Legend.Left = true
	}

	clip(p, opts.VisibleWindowStart, until)

	wt, err := p.WriterTo(figureWidth, figureHeight, "png")
	if err != nil {
		return errors.Wrap(err, "encode png")
	}
	_, err = wt.WriteTo(w)
	return errors.Wrap(err, "write png")
}

// addChangepoints overlays the trend and a dashed vertical line at every significant
// changepoint that falls inside the visible range
func addChangepoints(p *plot.Plot, s *Series, rows []models.PredictionRow, opts models.RenderOptions) error {
	trend := make(plotter.XYs, len(rows))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, row := range rows {
		trend[i] = plotter.XY{X: unixX(row.Timestamp), Y: row.Trend}
		lo = math.Min(lo, row.YHatLower)
		hi = math.Max(hi, row.YHatUpper)
	}
	for _, pt := range s.History {
		lo = math.Min(lo, pt.Y)
		hi = math.Max(hi, pt.Y)
	}

	trendLine, err := plotter.NewLine(trend)
	if err != nil {
		return errors.Wrap(err, "trend line")
	}
	trendLine.LineStyle.Color = changepointColor
	trendLine.LineStyle.Width = vg.Points(1)
	p.Add(trendLine)
	if opts.IncludeLegend {
		p.Legend.Add("trend", trendLine)
	}

	first := true
	for _, cp := range s.Changepoints {
		if opts.VisibleWindowStart != nil && cp.Before(*opts.VisibleWindowStart) {
			continue
		}
		x := unixX(cp)
		marker, err := plotter.NewLine(plotter.XYs{{X: x, Y: lo}, {X: x, Y: hi}})
		if err != nil {
			return errors.Wrap(err, "changepoint marker")
		}
		marker.LineStyle.Color = changepointColor
		marker.LineStyle.Width = vg.Points(0.75)
		marker.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(marker)
		if first && opts.IncludeLegend {
			p.Legend.Add("changepoints", marker)
			first = false
		}
	}
	return nil
}

// renderComponentsPNG stacks one panel for the trend and one per seasonal component.
// Legend and changepoint options do not apply to this chart.
func renderComponentsPNG(w io.Writer, s *Series, opts models.RenderOptions) error {
	until := lastTimestamp(s.Rows)
	rows := visibleRows(s.Rows, opts.VisibleWindowStart)
	if len(rows) == 0 {
		return errors.New("visible window contains no predicted rows")
	}

	names := append([]string{"trend"}, s.Components...)
	plots := make([][]*plot.Plot, len(names))
	for i, name := range names {
		xys := make(plotter.XYs, len(rows))
		for j, row := range rows {
			v := row.Trend
			if name != "trend" {
				v = row.Components[name]
			}
			xys[j] = plotter.XY{X: unixX(row.Timestamp), Y: v}
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return errors.Wrapf(err, "component %s", name)
		}
		line.LineStyle.Color = forecastColor
		line.LineStyle.Width = vg.Points(1.5)

		p := newTimePlot("", name)
		p.Add(line)
		clip(p, opts.VisibleWindowStart, until)
		plots[i] = []*plot.Plot{p}
	}
	if s.Title != "" {
		plots[0][0].Title.Text = s.Title
	}

	img := vgimg.New(figureWidth, componentHeight*vg.Length(len(names)))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      len(names),
		Cols:      1,
		PadX:      vg.Millimeter,
		PadY:      vg.Millimeter * 4,
		PadTop:    vg.Points(4),
		PadBottom: vg.Points(4),
		PadLeft:   vg.Points(4),
		PadRight:  vg.Points(8),
	}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	png := vgimg.PngCanvas{Canvas: img}
	_, err := png.WriteTo(w)
	return errors.Wrap(err, "write png")
}
