package ingest

import (
	"math/rand"
	"time"

	"github.com/seasonal/forecastd/pkg/models"
)

// SyntheticEpoch is the calendar origin of generated samples; day d is SyntheticEpoch + d days
var SyntheticEpoch = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

const syntheticStep = 5 * time.Minute

// syntheticBase is the deterministic daily shape: a ramp that restarts every 16 hours
func syntheticBase(hour, minute int) float64 {
	return float64((hour%16)*60 + minute)
}

// Synthetic generates the demo series for model: one sample every five minutes for
// days 1..days-1, each value the daily shape with uniform jitter plus a linear daily
// trend, scaled by offHours before 08:00. rng supplies the jitter.
func Synthetic(model string, req models.SeedRequest, rng *rand.Rand) []models.Measurement {
	if req.Days < 2 {
		return nil
	}
	perDay := int(24 * time.Hour / syntheticStep)
	out := make([]models.Measurement, 0, (req.Days-1)*perDay)

	for day := 1; day < req.Days; day++ {
		midnight := SyntheticEpoch.AddDate(0, 0, day)
		for tick := 0; tick < perDay; tick++ {
			ts := midnight.Add(time.Duration(tick) * syntheticStep)
			hour, minute := ts.Hour(), ts.Minute()

			base := syntheticBase(hour, minute)
			lo, hi := base*(1-req.Jitter), base*(1+req.Jitter)
			value := float64(day)*req.TrendFactor + lo + rng.Float64()*(hi-lo)
			if hour < 8 {
				value *= req.OffHoursFactor
			}

			out = append(out, models.Measurement{ModelName: model, Timestamp: ts, Value: value})
		}
	}
	return out
}
