// Package forecast serves read-only projections and charts from trained artifacts.
// It never takes the per-model training lock: a forecast issued during a retrain
// reads whichever complete artifact is currently committed.
package forecast

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/seasonal/forecastd/pkg/artifactstore"
	"github.com/seasonal/forecastd/pkg/chart"
	"github.com/seasonal/forecastd/pkg/forecaster"
	"github.com/seasonal/forecastd/pkg/logging"
	"github.com/seasonal/forecastd/pkg/metrics"
	"github.com/seasonal/forecastd/pkg/models"
)

// RenderRequest describes a chart. A nil Start means the first timestamp the model was
// trained on.
type RenderRequest struct {
	Start   *time.Time
	Periods int
	Freq    string
	Options models.RenderOptions
}

// Engine loads artifacts and projects them
type Engine struct {
	artifacts *artifactstore.FileStore
	metrics   *metrics.Metrics
	log       *logging.FieldLogger
}

// NewEngine creates a forecast engine reading from artifacts
func NewEngine(artifacts *artifactstore.FileStore, m *metrics.Metrics) *Engine {
	return &Engine{
		artifacts: artifacts,
		metrics:   m,
		log:       logging.GetLogger().With(logging.Component("forecast")),
	}
}

// predict loads the model and evaluates it on the horizon
func (e *Engine) predict(ctx context.Context, model string, start *time.Time, periods int, freq string) (*forecaster.Model, []models.PredictionRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if periods < 1 || periods > models.MaxForecastPeriods {
		return nil, nil, models.InvalidRequest(fmt.Sprintf("periods must be between 1 and %d", models.MaxForecastPeriods))
	}
	step, err := ParseFrequency(freq)
	if err != nil {
		return nil, nil, err
	}

	m, _, err := e.artifacts.Load(model)
	if err != nil {
		return nil, nil, err
	}

	from := m.HistoryStart()
	if start != nil {
		from = *start
	}
	times, err := FutureTimestamps(from, periods, step)
	if err != nil {
		return nil, nil, err
	}
	return m, m.Predict(times), nil
}

// Forecast returns the point estimate for periods ticks of freq starting at start
func (e *Engine) Forecast(ctx context.Context, model string, start time.Time, periods int, freq string) ([]models.ForecastPoint, error) {
	began := time.Now()
	_, rows, err := e.predict(ctx, model, &start, periods, freq)
	if err != nil {
		e.metrics.Forecast("forecast", "error", time.Since(began))
		return nil, err
	}

	points := make([]models.ForecastPoint, len(rows))
	for i, row := range rows {
		points[i] = models.ForecastPoint{Timestamp: row.Timestamp, Value: row.YHat}
	}

	e.metrics.Forecast("forecast", "ok", time.Since(began))
	e.log.Debug("Forecast served",
		logging.Model(model),
		logging.Int("periods", periods),
		logging.String("freq", freq),
		logging.Duration("duration", time.Since(began)))
	return points, nil
}

// Render draws the forecast for the request. Clipping to the visible window only
// affects what is drawn, not what is predicted.
func (e *Engine) Render(ctx context.Context, model string, req RenderRequest) (*bytes.Reader, error) {
	began := time.Now()
	r, err := e.render(ctx, model, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.metrics.Forecast("render", status, time.Since(began))
	return r, err
}

func (e *Engine) render(ctx context.Context, model string, req RenderRequest) (*bytes.Reader, error) {
	m, rows, err := e.predict(ctx, model, req.Start, req.Periods, req.Freq)
	if err != nil {
		return nil, err
	}

	if w := req.Options.VisibleWindowStart; w != nil && w.After(rows[len(rows)-1].Timestamp) {
		return nil, models.InvalidRequest("dataStart is after the last projected timestamp")
	}

	series := &chart.Series{
		Title:        model,
		History:      m.History,
		Rows:         rows,
		Changepoints: m.ChangepointTimes(forecaster.ChangepointThreshold),
		Components:   m.ComponentNames(),
	}

	out, err := chart.Render(series, req.Options)
	if err != nil {
		e.log.Error("Chart rendering failed", err, logging.Model(model))
		return nil, fmt.Errorf("failed to render chart for %s: %w", model, err)
	}
	e.log.Debug("Chart rendered",
		logging.Model(model),
		logging.String("format", string(req.Options.Format)),
		logging.Int("bytes", out.Len()))
	return out, nil
}
