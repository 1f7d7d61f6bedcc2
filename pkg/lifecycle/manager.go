// Package lifecycle coordinates operations that span the stores of a model: the
// registry, its configuration, its measurements and its artifact.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/seasonal/forecastd/pkg/artifactstore"
	"github.com/seasonal/forecastd/pkg/keylock"
	"github.com/seasonal/forecastd/pkg/logging"
	"github.com/seasonal/forecastd/pkg/metadatastore"
	"github.com/seasonal/forecastd/pkg/metrics"
	"github.com/seasonal/forecastd/pkg/models"
	"github.com/seasonal/forecastd/pkg/params"
)

// Manager owns model registration, configuration, deletion and reset
type Manager struct {
	measurements metadatastore.MeasurementLog
	configs      metadatastore.ConfigStore
	registry     metadatastore.Registry
	artifacts    *artifactstore.FileStore
	locks        *keylock.Locker
	metrics      *metrics.Metrics
	log          *logging.FieldLogger
}

// NewManager creates a lifecycle manager. locks must be the locker the training
// orchestrator uses.
func NewManager(
	measurements metadatastore.MeasurementLog,
	configs metadatastore.ConfigStore,
	registry metadatastore.Registry,
	artifacts *artifactstore.FileStore,
	locks *keylock.Locker,
	m *metrics.Metrics,
) *Manager {
	return &Manager{
		measurements: measurements,
		configs:      configs,
		registry:     registry,
		artifacts:    artifacts,
		locks:        locks,
		metrics:      m,
		log:          logging.GetLogger().With(logging.Component("lifecycle")),
	}
}

// EnsureRegistered records name in the registry if it is not there yet
func (m *Manager) EnsureRegistered(ctx context.Context, name string) error {
	if err := models.ValidateModelName(name); err != nil {
		return err
	}
	return m.registry.EnsureModelRegistered(ctx, name)
}

// UpsertConfig validates req and replaces the whole configuration row of name
func (m *Manager) UpsertConfig(ctx context.Context, name string, req *models.ModelConfigRequest) (*models.ModelConfig, error) {
	if err := models.ValidateModelName(name); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cfg := req.ToConfig(name)
	cfg.UpdatedAt = time.Now().UTC()

	if err := m.registry.EnsureModelRegistered(ctx, name); err != nil {
		return nil, err
	}
	if err := m.configs.Upsert(ctx, cfg); err != nil {
		return nil, err
	}

	m.log.Info("Model configuration stored",
		logging.Model(name),
		logging.String("params", params.Resolve(cfg).String()))
	return cfg, nil
}

// Describe returns the stored configuration of name and the parameters training would use
func (m *Manager) Describe(ctx context.Context, name string) (*models.ModelInfo, error) {
	if err := models.ValidateModelName(name); err != nil {
		return nil, err
	}
	cfg, err := m.configs.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return &models.ModelInfo{
		Name:       name,
		Configured: cfg != nil,
		Trained:    m.artifacts.Exists(name),
		Config:     cfg,
		Resolved:   params.Resolve(cfg),
	}, nil
}

// ListNames returns the models that have measurements
func (m *Manager) ListNames(ctx context.Context) ([]string, error) {
	return m.measurements.ListNames(ctx)
}

// ListRegistered returns every model any write path has touched
func (m *Manager) ListRegistered(ctx context.Context) ([]string, error) {
	return m.registry.ListRegistered(ctx)
}

// Delete removes the configuration, measurements, registration and artifact of name.
// Durable rows go first so an interrupted delete leaves at most an orphaned artifact,
// which a repeated delete removes. The model's training lock is held throughout so an
// in-flight retrain cannot write the artifact back afterwards.
func (m *Manager) Delete(ctx context.Context, name string) error {
	if err := models.ValidateModelName(name); err != nil {
		return err
	}

	unlock := m.locks.Lock(name)
	defer unlock()

	if err := m.configs.DeleteConfig(ctx, name); err != nil {
		return fmt.Errorf("failed to delete configuration of %s: %w", name, err)
	}
	if err := m.measurements.DeleteAll(ctx, name); err != nil {
		return fmt.Errorf("failed to delete measurements of %s: %w", name, err)
	}
	if err := m.registry.Unregister(ctx, name); err != nil {
		return fmt.Errorf("failed to unregister %s: %w", name, err)
	}
	if err := m.artifacts.Delete(name); err != nil {
		return err
	}

	m.metrics.ArtifactSize(name, -1)
	m.log.Info("Model deleted", logging.Model(name))
	return nil
}

// ResetAll drops and recreates the measurement, configuration and registry tables.
// Artifacts are not touched: a model trained before the reset keeps serving forecasts
// until it is retrained or deleted.
func (m *Manager) ResetAll(ctx context.Context) error {
	if err := m.measurements.ResetMeasurements(ctx); err != nil {
		return fmt.Errorf("failed to reset measurements: %w", err)
	}
	if err := m.configs.ResetConfigs(ctx); err != nil {
		return fmt.Errorf("failed to reset configurations: %w", err)
	}
	if err := m.registry.ResetRegistry(ctx); err != nil {
		return fmt.Errorf("failed to reset registry: %w", err)
	}

	retained, err := m.artifacts.List()
	if err != nil {
		m.log.Warn("Could not list retained artifacts", logging.Err(err))
	}
	m.log.Warn("Registry reset; trained artifacts are retained",
		logging.Int("retained_artifacts", len(retained)))
	return nil
}
