package metadatastore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/seasonal/forecastd/pkg/models"
)

// SQLiteStore provides SQLite-based persistence for measurements, model configurations
// and the model registry
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dbPath and creates any missing tables
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Writes are serialized by SQLite anyway
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{db: db}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to check journal mode: %w", err)
	}
	if journalMode != "wal" && journalMode != "delete" && journalMode != "memory" {
		db.Close()
		return nil, fmt.Errorf("unexpected journal mode: got %s", journalMode)
	}

	if err := store.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// retryOnBusy retries a database operation if it fails due to SQLITE_BUSY.
// This sits on top of the busy_timeout pragma.
func (s *SQLiteStore) retryOnBusy(operation func() error, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if strings.Contains(err.Error(), "SQLITE_BUSY") || strings.Contains(err.Error(), "database is locked") {
			// 10ms, 20ms, 40ms, 80ms, 160ms
			backoff := time.Duration(10*(1<<uint(i))) * time.Millisecond
			time.Sleep(backoff)
			continue
		}

		return err
	}
	return fmt.Errorf("operation failed after %d retries: %w", maxRetries, err)
}

const (
	measurementsSchema = `
	CREATE TABLE IF NOT EXISTS measurements (
		model_name TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		value REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_measurements_model_name ON measurements(model_name, timestamp);
	`

	configsSchema = `
	CREATE TABLE IF NOT EXISTS model_configs (
		name TEXT PRIMARY KEY,
		yearly_seasonality TEXT NOT NULL,
		weekly_seasonality TEXT NOT NULL,
		daily_seasonality TEXT NOT NULL,
		custom_seasonality_period REAL NOT NULL,
		custom_seasonality_fourier_order INTEGER NOT NULL,
		seasonality_mode TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`

	registrySchema = `
	CREATE TABLE IF NOT EXISTS models (
		name TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL
	);
	`
)

// initSchema creates the database schema if it doesn't exist
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	for _, schema := range []string{measurementsSchema, configsSchema, registrySchema} {
		if _, err := s.db.ExecContext(ctx, schema); err != nil {
			return err
		}
	}
	return nil
}

// recreate drops a table and runs its schema again inside one transaction
func (s *SQLiteStore) recreate(ctx context.Context, table, schema string) error {
	return s.retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return err
		}
		return tx.Commit()
	}, 5)
}

// Append inserts one measurement
func (s *SQLiteStore) Append(ctx context.Context, m models.Measurement) error {
	err := s.retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO measurements (model_name, timestamp, value) VALUES (?, ?, ?)`,
			m.ModelName, m.Timestamp.UnixNano(), m.Value,
		)
		return err
	}, 5)
	if err != nil {
		return fmt.Errorf("failed to append measurement: %w", err)
	}
	return nil
}

// AppendBatch inserts rows for model in one transaction. Every row is validated first,
// so a malformed row rejects the whole batch before anything is written.
func (s *SQLiteStore) AppendBatch(ctx context.Context, model string, rows []models.Measurement) (int, error) {
	if err := validateBatch(model, rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	err := s.retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO measurements (model_name, timestamp, value) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, row := range rows {
			if _, err := stmt.ExecContext(ctx, model, row.Timestamp.UnixNano(), row.Value); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, 5)
	if err != nil {
		return 0, models.Ingest(model, fmt.Errorf("failed to insert batch: %w", err))
	}
	return len(rows), nil
}

// FetchAll returns every measurement of model
func (s *SQLiteStore) FetchAll(ctx context.Context, model string) ([]models.Measurement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, value FROM measurements WHERE model_name = ? ORDER BY timestamp, rowid`, model)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch measurements: %w", err)
	}
	defer rows.Close()

	var out []models.Measurement
	for rows.Next() {
		var ts int64
		var value float64
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		out = append(out, models.Measurement{
			ModelName: model,
			Timestamp: time.Unix(0, ts).UTC(),
			Value:     value,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate measurements: %w", err)
	}
	return out, nil
}

// DeleteAll removes every measurement of model
func (s *SQLiteStore) DeleteAll(ctx context.Context, model string) error {
	err := s.retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM measurements WHERE model_name = ?`, model)
		return err
	}, 5)
	if err != nil {
		return fmt.Errorf("failed to delete measurements: %w", err)
	}
	return nil
}

// ListNames returns the distinct model names present in the measurement log
func (s *SQLiteStore) ListNames(ctx context.Context) ([]string, error) {
	return s.queryNames(ctx, `SELECT DISTINCT model_name FROM measurements ORDER BY model_name`)
}

// ResetMeasurements drops and recreates the measurement table
func (s *SQLiteStore) ResetMeasurements(ctx context.Context) error {
	if err := s.recreate(ctx, "measurements", measurementsSchema); err != nil {
		return fmt.Errorf("failed to reset measurements: %w", err)
	}
	return nil
}

// Upsert inserts or replaces the configuration row for cfg.Name
func (s *SQLiteStore) Upsert(ctx context.Context, cfg *models.ModelConfig) error {
	query := `
		INSERT OR REPLACE INTO model_configs (
			name, yearly_seasonality, weekly_seasonality, daily_seasonality,
			custom_seasonality_period, custom_seasonality_fourier_order, seasonality_mode, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	updatedAt := cfg.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	err := s.retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, query,
			cfg.Name,
			cfg.YearlySeasonality.String(),
			cfg.WeeklySeasonality.String(),
			cfg.DailySeasonality.String(),
			cfg.CustomSeasonalityPeriod,
			cfg.CustomSeasonalityFourierOrder,
			string(cfg.SeasonalityMode),
			updatedAt.UnixNano(),
		)
		return err
	}, 5)
	if err != nil {
		return fmt.Errorf("failed to save model config: %w", err)
	}
	return nil
}

// Get retrieves the configuration row for name. A missing row is not an error.
func (s *SQLiteStore) Get(ctx context.Context, name string) (*models.ModelConfig, error) {
	query := `
		SELECT yearly_seasonality, weekly_seasonality, daily_seasonality,
			custom_seasonality_period, custom_seasonality_fourier_order, seasonality_mode, updated_at
		FROM model_configs WHERE name = ?
	`

	var yearly, weekly, daily, mode string
	var period float64
	var order int
	var updatedAt int64

	err := s.db.QueryRowContext(ctx, query, name).Scan(&yearly, &weekly, &daily, &period, &order, &mode, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model config: %w", err)
	}

	return &models.ModelConfig{
		Name:                          name,
		YearlySeasonality:             models.ParseSeasonality(yearly),
		WeeklySeasonality:             models.ParseSeasonality(weekly),
		DailySeasonality:              models.ParseSeasonality(daily),
		CustomSeasonalityPeriod:       period,
		CustomSeasonalityFourierOrder: order,
		SeasonalityMode:               models.SeasonalityMode(mode),
		UpdatedAt:                     time.Unix(0, updatedAt).UTC(),
	}, nil
}

// DeleteConfig removes the configuration row for name if present
func (s *SQLiteStore) DeleteConfig(ctx context.Context, name string) error {
	err := s.retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM model_configs WHERE name = ?`, name)
		return err
	}, 5)
	if err != nil {
		return fmt.Errorf("failed to delete model config: %w", err)
	}
	return nil
}

// ResetConfigs drops and recreates the configuration table
func (s *SQLiteStore) ResetConfigs(ctx context.Context) error {
	if err := s.recreate(ctx, "model_configs", configsSchema); err != nil {
		return fmt.Errorf("failed to reset model configs: %w", err)
	}
	return nil
}

// EnsureModelRegistered records name in the registry; existing entries keep their created_at
func (s *SQLiteStore) EnsureModelRegistered(ctx context.Context, name string) error {
	err := s.retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO models (name, created_at) VALUES (?, ?)`, name, time.Now().UnixNano())
		return err
	}, 5)
	if err != nil {
		return fmt.Errorf("failed to register model: %w", err)
	}
	return nil
}

// ListRegistered returns every registered model name
func (s *SQLiteStore) ListRegistered(ctx context.Context) ([]string, error) {
	return s.queryNames(ctx, `SELECT name FROM models ORDER BY name`)
}

// Unregister removes name from the registry
func (s *SQLiteStore) Unregister(ctx context.Context, name string) error {
	err := s.retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE name = ?`, name)
		return err
	}, 5)
	if err != nil {
		return fmt.Errorf("failed to unregister model: %w", err)
	}
	return nil
}

// ResetRegistry drops and recreates the registry table
func (s *SQLiteStore) ResetRegistry(ctx context.Context) error {
	if err := s.recreate(ctx, "models", registrySchema); err != nil {
		return fmt.Errorf("failed to reset model registry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) queryNames(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list model names: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan model name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate model names: %w", err)
	}
	return names, nil
}

// validateBatch checks every row of a batch before any write begins
func validateBatch(model string, rows []models.Measurement) error {
	for i := range rows {
		row := rows[i]
		row.ModelName = model
		if err := row.Validate(); err != nil {
			return models.Ingest(model, fmt.Errorf("row %d: %w", i+1, err))
		}
	}
	return nil
}
