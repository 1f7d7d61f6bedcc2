package metadatastore

import (
	"context"

	"github.com/seasonal/forecastd/pkg/models"
)

// MeasurementLog is the append-only history of timestamped values per model.
// Rows are returned in no guaranteed order; consumers sort by timestamp.
type MeasurementLog interface {
	Append(ctx context.Context, m models.Measurement) error
	// AppendBatch validates every row before writing any of them
	AppendBatch(ctx context.Context, model string, rows []models.Measurement) (int, error)
	FetchAll(ctx context.Context, model string) ([]models.Measurement, error)
	DeleteAll(ctx context.Context, model string) error
	// ListNames returns the distinct model names that have at least one measurement
	ListNames(ctx context.Context) ([]string, error)
	ResetMeasurements(ctx context.Context) error
	Close() error
}

// ConfigStore holds one hyperparameter row per model
type ConfigStore interface {
	Upsert(ctx context.Context, cfg *models.ModelConfig) error
	// Get returns nil, nil when no row exists
	Get(ctx context.Context, name string) (*models.ModelConfig, error)
	DeleteConfig(ctx context.Context, name string) error
	ResetConfigs(ctx context.Context) error
}

// Registry is the authoritative set of model names ever written to
type Registry interface {
	EnsureModelRegistered(ctx context.Context, name string) error
	ListRegistered(ctx context.Context) ([]string, error)
	Unregister(ctx context.Context, name string) error
	ResetRegistry(ctx context.Context) error
}
