package chart

import (
	"fmt"
	"io"

	"github.com/guptarohit/asciigraph"
	"github.com/pkg/errors"

	"github.com/seasonal/forecastd/pkg/models"
)

const (
	textHeight = 20
	textWidth  = 100
)

// renderText plots the point estimates, or the trend when components are requested
func renderText(w io.Writer, s *Series, opts models.RenderOptions) error {
	rows := visibleRows(s.Rows, opts.VisibleWindowStart)
	if len(rows) == 0 {
		return errors.New("visible window contains no predicted rows")
	}

	label := "yhat"
	values := make([]float64, len(rows))
	for i, row := range rows {
		if opts.DecomposeIntoComponents {
			values[i] = row.Trend
		} else {
			values[i] = row.YHat
		}
	}
	if opts.DecomposeIntoComponents {
		label = "trend"
	}

	caption := fmt.Sprintf("%s %s from %s to %s (%d points)", s.Title, label,
		rows[0].Timestamp.UTC().Format(models.TimestampLayout),
		rows[len(rows)-1].Timestamp.UTC().Format(models.TimestampLayout),
		len(rows))

	graph := asciigraph.Plot(values,
		asciigraph.Height(textHeight),
		asciigraph.Width(textWidth),
		asciigraph.Caption(caption),
	)
	_, err := io.WriteString(w, graph+"\n")
	return errors.Wrap(err, "write text chart")
}
