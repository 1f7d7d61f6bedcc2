package forecaster

import (
	"math"
	"time"

	"github.com/seasonal/forecastd/pkg/models"
)

// Predict evaluates the model at each timestamp. Rows are returned in input order.
func (m *Model) Predict(times []time.Time) []models.PredictionRow {
	rows := make([]models.PredictionRow, len(times))
	for i, t := range times {
		rows[i] = m.predictOne(t)
	}
	return rows
}

func (m *Model) predictOne(t time.Time) models.PredictionRow {
	st := m.scaleTime(t)
	g := m.trendAt(st)
	d := epochDays(t)

	row := models.PredictionRow{
		Timestamp:  t,
		Trend:      g * m.YScale,
		Components: make(map[string]float64, len(m.Seasonalities)),
	}

	total := 0.0
	for i := range m.Seasonalities {
		s := &m.Seasonalities[i]
		v := s.value(d)
		total += v
		if m.Mode == models.SeasonalityModeMultiplicative {
			row.Components[s.Name] = g * v * m.YScale
		} else {
			row.Components[s.Name] = v * m.YScale
		}
	}

	if m.Mode == models.SeasonalityModeMultiplicative {
		row.YHat = g * (1 + total) * m.YScale
	} else {
		row.YHat = (g + total) * m.YScale
	}

	beyond := math.Max(0, st-1)
	width := intervalZ * m.Sigma * math.Sqrt(1+beyond)
	row.YHatLower = row.YHat - width
	row.YHatUpper = row.YHat + width
	return row
}

// yhat returns the point estimate at t
func (m *Model) yhat(t time.Time) float64 {
	return m.predictOne(t).YHat
}
