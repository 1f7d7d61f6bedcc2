package metadatastore

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/seasonal/forecastd/pkg/models"
)

const clickHouseMeasurementsTable = `
	CREATE TABLE IF NOT EXISTS measurements (
		model_name LowCardinality(String),
		timestamp DateTime64(9, 'UTC'),
		value Float64
	)
	ENGINE = MergeTree
	ORDER BY (model_name, timestamp)
`

// ClickHouseMeasurementLog stores measurements in a ClickHouse MergeTree table.
// Duplicate timestamps are retained.
type ClickHouseMeasurementLog struct {
	conn driver.Conn
}

// ClickHouseOptions holds the connection settings of the ClickHouse backend
type ClickHouseOptions struct {
	Addr     string
	Database string
	Username string
	Password string
}

// NewClickHouseMeasurementLog connects to ClickHouse and creates the measurement table
func NewClickHouseMeasurementLog(ctx context.Context, opts ClickHouseOptions) (*ClickHouseMeasurementLog, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	l := &ClickHouseMeasurementLog{conn: conn}
	if err := conn.Exec(ctx, clickHouseMeasurementsTable); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create measurements table: %w", err)
	}
	return l, nil
}

// Close closes the connection
func (l *ClickHouseMeasurementLog) Close() error {
	return l.conn.Close()
}

// Append inserts one measurement
func (l *ClickHouseMeasurementLog) Append(ctx context.Context, m models.Measurement) error {
	err := l.conn.Exec(ctx,
		`INSERT INTO measurements (model_name, timestamp, value) VALUES (?, ?, ?)`,
		m.ModelName, m.Timestamp.UTC(), m.Value,
	)
	if err != nil {
		return fmt.Errorf("failed to append measurement: %w", err)
	}
	return nil
}

// AppendBatch validates all rows, then sends them as one native batch
func (l *ClickHouseMeasurementLog) AppendBatch(ctx context.Context, model string, rows []models.Measurement) (int, error) {
	if err := validateBatch(model, rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	batch, err := l.conn.PrepareBatch(ctx, `INSERT INTO measurements (model_name, timestamp, value)`)
	if err != nil {
		return 0, models.Ingest(model, fmt.Errorf("failed to prepare batch: %w", err))
	}
	for _, row := range rows {
		if err := batch.Append(model, row.Timestamp.UTC(), row.Value); err != nil {
			batch.Abort()
			return 0, models.Ingest(model, fmt.Errorf("failed to append to batch: %w", err))
		}
	}
	if err := batch.Send(); err != nil {
		return 0, models.Ingest(model, fmt.Errorf("failed to send batch: %w", err))
	}
	return len(rows), nil
}

// FetchAll returns every measurement of model
func (l *ClickHouseMeasurementLog) FetchAll(ctx context.Context, model string) ([]models.Measurement, error) {
	rows, err := l.conn.Query(ctx,
		`SELECT timestamp, value FROM measurements WHERE model_name = ? ORDER BY timestamp`, model)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch measurements: %w", err)
	}
	defer rows.Close()

	var out []models.Measurement
	for rows.Next() {
		var ts time.Time
		var value float64
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		out = append(out, models.Measurement{ModelName: model, Timestamp: ts.UTC(), Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate measurements: %w", err)
	}
	return out, nil
}

// DeleteAll removes every measurement of model and waits for the mutation to finish
func (l *ClickHouseMeasurementLog) DeleteAll(ctx context.Context, model string) error {
	ctx = clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		"mutations_sync": 2,
	}))
	if err := l.conn.Exec(ctx, `ALTER TABLE measurements DELETE WHERE model_name = ?`, model); err != nil {
		return fmt.Errorf("failed to delete measurements: %w", err)
	}
	return nil
}

// ListNames returns the distinct model names present in the measurement log
func (l *ClickHouseMeasurementLog) ListNames(ctx context.Context) ([]string, error) {
	rows, err := l.conn.Query(ctx, `SELECT DISTINCT model_name FROM measurements ORDER BY model_name`)
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
	return names, rows.Err()
}

// ResetMeasurements drops and recreates the measurement table
func (l *ClickHouseMeasurementLog) ResetMeasurements(ctx context.Context) error {
	if err := l.conn.Exec(ctx, `DROP TABLE IF EXISTS measurements`); err != nil {
		return fmt.Errorf("failed to drop measurements: %w", err)
	}
	if err := l.conn.Exec(ctx, clickHouseMeasurementsTable); err != nil {
		return fmt.Errorf("failed to recreate measurements: %w", err)
	}
	return nil
}
