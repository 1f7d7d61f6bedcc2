package models

import (
	"encoding/json"
	"math"
	"time"
)

// Forecast request limits
const (
	DefaultForecastFreq = "h"
	DefaultGraphPeriods = 600
	MaxForecastPeriods  = 100000
)

// ForecastPoint is one projected tick returned by the forecast operation
type ForecastPoint struct {
	Timestamp time.Time
	Value     float64
}

// MarshalJSON writes {"ds": "YYYY-MM-DD HH:MM:SS", "yhat": <2 dp>}
func (p ForecastPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		DS   string  `json:"ds"`
		YHat float64 `json:"yhat"`
	}{
		DS:   p.Timestamp.UTC().Format(TimestampLayout),
		YHat: math.Round(p.Value*100) / 100,
	})
}

// UnmarshalJSON reads the form written by MarshalJSON
func (p *ForecastPoint) UnmarshalJSON(data []byte) error {
	var raw struct {
		DS   string  `json:"ds"`
		YHat float64 `json:"yhat"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := ParseTimestamp(raw.DS)
	if err != nil {
		return err
	}
	p.Timestamp = ts
	p.Value = raw.YHat
	return nil
}

// ForecastResponse is the body returned by the predict endpoint
type ForecastResponse struct {
	Forecast []ForecastPoint `json:"forecast"`
}

// PredictRequest is the body of a forecast query
type PredictRequest struct {
	StartDate string `json:"start_date"`
	Periods   int    `json:"periods"`
	Freq      string `json:"freq,omitempty"`
}

// Validate validates the request and returns the parsed start time
func (r *PredictRequest) Validate() (time.Time, error) {
	if r.StartDate == "" {
		return time.Time{}, InvalidRequest("start_date is required")
	}
	start, err := ParseTimestamp(r.StartDate)
	if err != nil {
		return time.Time{}, InvalidRequest(err.Error())
	}
	if r.Periods < 1 || r.Periods > MaxForecastPeriods {
		return time.Time{}, InvalidRequest("periods must be between 1 and 100000")
	}
	if r.Freq == "" {
		r.Freq = DefaultForecastFreq
	}
	return start, nil
}

// PredictionRow is the full output of the forecasting capability for one timestamp
type PredictionRow struct {
	Timestamp  time.Time          `json:"ds"`
	YHat       float64            `json:"yhat"`
	YHatLower  float64            `json:"yhat_lower"`
	YHatUpper  float64            `json:"yhat_upper"`
	Trend      float64            `json:"trend"`
	Components map[string]float64 `json:"components,omitempty"`
}

// RenderFormat selects the chart encoding
type RenderFormat string

const (
	RenderPNG  RenderFormat = "png"
	RenderText RenderFormat = "text"
)

// RenderOptions controls what the visualization operation draws
type RenderOptions struct {
	IncludeLegend           bool
	ShowUncertaintyBand     bool
	ShowTrendChangepoints   bool
	DecomposeIntoComponents bool
	VisibleWindowStart      *time.Time
	Format                  RenderFormat
}

// DefaultRenderOptions returns the options used when a graph query sets none
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		IncludeLegend:       true,
		ShowUncertaintyBand: true,
		Format:              RenderPNG,
	}
}

// ContentType returns the MIME type of the rendered output
func (o RenderOptions) ContentType() string {
	if o.Format == RenderText {
		return "text/plain; charset=utf-8"
	}
	return "image/png"
}
