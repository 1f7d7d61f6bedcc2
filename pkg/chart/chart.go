// Package chart draws forecasts as PNG images (gonum/plot) or as plain-text line
// charts (asciigraph).
package chart

import (
	"bytes"
	"time"

	"github.com/pkg/errors"

	"github.com/seasonal/forecastd/pkg/forecaster"
	"github.com/seasonal/forecastd/pkg/models"
)

// Series is everything a chart needs: the observed history, the predicted rows and
// the model's structural metadata.
type Series struct {
	Title        string
	History      []forecaster.Point
	Rows         []models.PredictionRow
	Changepoints []time.Time
	Components   []string
}

// Render draws s in the format selected by opts. The returned reader holds the complete
// encoded chart.
func Render(s *Series, opts models.RenderOptions) (r *bytes.Reader, err error) {
	if s == nil || len(s.Rows) == 0 {
		return nil, errors.New("nothing to render: no predicted rows")
	}

	defer func() {
		if p := recover(); p != nil {
			r, err = nil, errors.Errorf("chart rendering panicked: %v", p)
		}
	}()

	var buf bytes.Buffer
	switch opts.Format {
	case models.RenderText:
		err = renderText(&buf, s, opts)
	case models.RenderPNG, "":
		if opts.DecomposeIntoComponents {
			err = renderComponentsPNG(&buf, s, opts)
		} else {
			err = renderForecastPNG(&buf, s, opts)
		}
	default:
		err = errors.Errorf("unsupported render format %q", opts.Format)
	}
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(buf.Bytes()), nil
}

// visibleRows returns the rows at or after the window start, or all rows if unset
func visibleRows(rows []models.PredictionRow, from *time.Time) []models.PredictionRow {
	if from == nil {
		return rows
	}
	out := make([]models.PredictionRow, 0, len(rows))
	for _, row := range rows {
		if !row.Timestamp.Before(*from) {
			out = append(out, row)
		}
	}
	return out
}

// visibleHistory returns the observations inside [from, until], or all of them when
// no window is set
func visibleHistory(points []forecaster.Point, from *time.Time, until time.Time) []forecaster.Point {
	if from == nil {
		return points
	}
	out := make([]forecaster.Point, 0, len(points))
	for _, p := range points {
		if p.T.Before(*from) || p.T.After(until) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func lastTimestamp(rows []models.PredictionRow) time.Time {
	last := rows[0].Timestamp
	for _, row := range rows[1:] {
		if row.Timestamp.After(last) {
			last = row.Timestamp
		}
	}
	return last
}
