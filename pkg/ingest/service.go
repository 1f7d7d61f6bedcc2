// Package ingest is every write path into the measurement log: single inserts, CSV
// bulk imports, synthetic seeding and the MQTT stream. Each path registers the model
// name before writing.
package ingest

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/seasonal/forecastd/pkg/logging"
	"github.com/seasonal/forecastd/pkg/metadatastore"
	"github.com/seasonal/forecastd/pkg/metrics"
	"github.com/seasonal/forecastd/pkg/models"
)

// Sources, used as the metrics label
const (
	SourceAPI  = "api"
	SourceCSV  = "csv"
	SourceSeed = "seed"
	SourceMQTT = "mqtt"
)

// Service writes measurements
type Service struct {
	measurements metadatastore.MeasurementLog
	registry     metadatastore.Registry
	metrics      *metrics.Metrics
	log          *logging.FieldLogger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewService creates an ingest service. Synthetic jitter uses a time-seeded source
// unless SetRand is called.
func NewService(measurements metadatastore.MeasurementLog, registry metadatastore.Registry, m *metrics.Metrics) *Service {
	return &Service{
		measurements: measurements,
		registry:     registry,
		metrics:      m,
		log:          logging.GetLogger().With(logging.Component("ingest")),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRand replaces the jitter source
func (s *Service) SetRand(rng *rand.Rand) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	s.rng = rng
}

// Record stores one measurement
func (s *Service) Record(ctx context.Context, model string, ts time.Time, value float64) error {
	if err := models.ValidateModelName(model); err != nil {
		return err
	}
	m := models.Measurement{ModelName: model, Timestamp: ts, Value: value}
	if err := m.Validate(); err != nil {
		return models.InvalidRequest(err.Error())
	}

	if err := s.registry.EnsureModelRegistered(ctx, model); err != nil {
		return err
	}
	if err := s.measurements.Append(ctx, m); err != nil {
		return err
	}

	s.metrics.Ingested(SourceAPI, 1)
	s.log.Debug("Measurement stored", logging.Model(model), logging.Float("value", value))
	return nil
}

// RecordBatch stores rows for model in one all-or-nothing write
func (s *Service) RecordBatch(ctx context.Context, model string, rows []models.Measurement, source string) (int, error) {
	if err := models.ValidateModelName(model); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if err := s.registry.EnsureModelRegistered(ctx, model); err != nil {
		return 0, err
	}
	n, err := s.measurements.AppendBatch(ctx, model, rows)
	if err != nil {
		return 0, err
	}

	s.metrics.Ingested(source, n)
	s.log.Info("Measurements stored",
		logging.Model(model),
		logging.String("source", source),
		logging.Int("rows", n))
	return n, nil
}

// ImportCSV parses a CSV body and stores it
func (s *Service) ImportCSV(ctx context.Context, model string, r io.Reader) (int, error) {
	if err := models.ValidateModelName(model); err != nil {
		return 0, err
	}
	rows, err := ParseCSV(model, r)
	if err != nil {
		return 0, err
	}
	return s.RecordBatch(ctx, model, rows, SourceCSV)
}

// Seed generates and stores the synthetic demo series
func (s *Service) Seed(ctx context.Context, model string, req models.SeedRequest) (int, error) {
	if err := models.ValidateModelName(model); err != nil {
		return 0, err
	}
	if err := req.Validate(); err != nil {
		return 0, err
	}

	s.rngMu.Lock()
	rows := Synthetic(model, req, s.rng)
	s.rngMu.Unlock()

	n, err := s.RecordBatch(ctx, model, rows, SourceSeed)
	if err != nil {
		return 0, fmt.Errorf("failed to seed %s: %w", model, err)
	}
	return n, nil
}
