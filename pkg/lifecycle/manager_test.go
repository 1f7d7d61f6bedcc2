package lifecycle

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seasonal/forecastd/pkg/artifactstore"
	"github.com/seasonal/forecastd/pkg/forecast"
	"github.com/seasonal/forecastd/pkg/keylock"
	"github.com/seasonal/forecastd/pkg/metadatastore"
	"github.com/seasonal/forecastd/pkg/metrics"
	"github.com/seasonal/forecastd/pkg/models"
	"github.com/seasonal/forecastd/pkg/training"
)

var t0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	store     *metadatastore.SQLiteStore
	artifacts *artifactstore.FileStore
	locks     *keylock.Locker
	manager   *Manager
	trainer   *training.Orchestrator
	engine    *forecast.Engine
}

func setupTestService(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	store, err := metadatastore.NewSQLiteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	artifacts, err := artifactstore.NewFileStore(filepath.Join(dir, "model"))
	require.NoError(t, err)

	m := metrics.New()
	locks := keylock.New()
	return &testEnv{
		store:     store,
		artifacts: artifacts,
		locks:     locks,
		manager:   NewManager(store, store, store, artifacts, locks, m),
		trainer:   training.NewOrchestrator(store, store, artifacts, locks, m),
		engine:    forecast.NewEngine(artifacts, m),
	}
}

// seedAndTrain stores three days of hourly data for model and trains it
func (e *testEnv) seedAndTrain(t *testing.T, model string) {
	t.Helper()
	ctx := context.Background()

	rows := make([]models.Measurement, 72)
	for i := range rows {
		rows[i] = models.Measurement{
			Timestamp: t0.Add(time.Duration(i) * time.Hour),
			Value:     10 + math.Sin(2*math.Pi*float64(i%24)/24),
		}
	}
	require.NoError(t, e.manager.EnsureRegistered(ctx, model))
	_, err := e.store.AppendBatch(ctx, model, rows)
	require.NoError(t, err)
	_, err = e.manager.UpsertConfig(ctx, model, &models.ModelConfigRequest{})
	require.NoError(t, err)

	_, err = e.trainer.Train(ctx, model)
	require.NoError(t, err)
}

func TestDeleteRemovesEverything(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	env.seedAndTrain(t, "m")

	require.NoError(t, env.manager.Delete(ctx, "m"))

	rows, err := env.store.FetchAll(ctx, "m")
	require.NoError(t, err)
	assert.Empty(t, rows)

	cfg, err := env.store.Get(ctx, "m")
	require.NoError(t, err)
	assert.Nil(t, cfg)

	registered, err := env.manager.ListRegistered(ctx)
	require.NoError(t, err)
	assert.NotContains(t, registered, "m")

	_, err = env.engine.Forecast(ctx, "m", t0, 24, "h")
	assert.True(t, errors.Is(err, models.ErrNoArtifact))
}

func TestDeleteIsIdempotent(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	require.NoError(t, env.manager.Delete(ctx, "never-existed"))
	env.seedAndTrain(t, "m")
	require.NoError(t, env.manager.Delete(ctx, "m"))
	require.NoError(t, env.manager.Delete(ctx, "m"))
}

func TestDeleteRejectsBadName(t *testing.T) {
	env := setupTestService(t)
	err := env.manager.Delete(context.Background(), "../../etc/passwd")
	assert.True(t, errors.Is(err, models.ErrInvalidRequest))
}

func TestRetrainAfterDeleteIsNoData(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	env.seedAndTrain(t, "m")
	require.NoError(t, env.manager.Delete(ctx, "m"))

	_, err := env.trainer.Train(ctx, "m")
	assert.True(t, errors.Is(err, models.ErrNoData))
	assert.False(t, env.artifacts.Exists("m"), "a failed retrain must not resurrect the artifact")
}

func TestDeleteWaitsForTrainingLock(t *testing.T) {
	env := setupTestService(t)
	env.seedAndTrain(t, "m")

	unlock := env.locks.Lock("m")
	done := make(chan error, 1)
	go func() {
		done <- env.manager.Delete(context.Background(), "m")
	}()

	select {
	case <-done:
		t.Fatal("delete finished while the model was locked")
	case <-time.After(100 * time.Millisecond):
	}
	assert.True(t, env.artifacts.Exists("m"))

	unlock()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("delete did not finish after unlock")
	}
	assert.False(t, env.artifacts.Exists("m"))
}

func TestResetAllKeepsArtifacts(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	env.seedAndTrain(t, "m")

	require.NoError(t, env.manager.ResetAll(ctx))

	rows, err := env.store.FetchAll(ctx, "m")
	require.NoError(t, err)
	assert.Empty(t, rows)

	cfg, err := env.store.Get(ctx, "m")
	require.NoError(t, err)
	assert.Nil(t, cfg)

	names, err := env.manager.ListNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	_, _, err = env.artifacts.Load("m")
	require.NoError(t, err, "reset leaves trained artifacts loadable")

	points, err := env.engine.Forecast(ctx, "m", t0.Add(72*time.Hour), 24, "h")
	require.NoError(t, err)
	assert.Len(t, points, 24)
}

func TestUpsertConfigOverwritesAndDescribe(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	yearly := models.On
	order := 7
	_, err := env.manager.UpsertConfig(ctx, "m", &models.ModelConfigRequest{
		YearlySeasonality:             &yearly,
		CustomSeasonalityFourierOrder: &order,
	})
	require.NoError(t, err)

	mode := models.SeasonalityModeMultiplicative
	_, err = env.manager.UpsertConfig(ctx, "m", &models.ModelConfigRequest{SeasonalityMode: &mode})
	require.NoError(t, err)

	info, err := env.manager.Describe(ctx, "m")
	require.NoError(t, err)
	assert.True(t, info.Configured)
	assert.False(t, info.Trained)
	require.NotNil(t, info.Config)
	assert.True(t, info.Config.YearlySeasonality.Equal(models.Off), "omitted fields are reset, not merged")
	assert.Equal(t, models.DefaultCustomSeasonalityFourierOrder, info.Config.CustomSeasonalityFourierOrder)
	assert.Equal(t, models.SeasonalityModeMultiplicative, info.Resolved.SeasonalityMode)

	registered, err := env.manager.ListRegistered(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"m"}, registered)

	names, err := env.manager.ListNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names, "a configured model without data is not listed")
}

func TestDescribeUnconfigured(t *testing.T) {
	env := setupTestService(t)

	info, err := env.manager.Describe(context.Background(), "fresh")
	require.NoError(t, err)
	assert.False(t, info.Configured)
	assert.Nil(t, info.Config)
	assert.True(t, info.Resolved.HasCustomSeasonality)
	assert.Equal(t, models.SeasonalityModeAdditive, info.Resolved.SeasonalityMode)
}

func TestUpsertConfigRejectsNegativePeriod(t *testing.T) {
	env := setupTestService(t)
	period := -1.0
	_, err := env.manager.UpsertConfig(context.Background(), "m", &models.ModelConfigRequest{CustomSeasonalityPeriod: &period})
	assert.True(t, errors.Is(err, models.ErrInvalidRequest))
}
