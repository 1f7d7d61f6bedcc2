package ingest

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seasonal/forecastd/pkg/metadatastore"
	"github.com/seasonal/forecastd/pkg/metrics"
	"github.com/seasonal/forecastd/pkg/models"
)

var t0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func setupTestService(t *testing.T) (*Service, *metadatastore.SQLiteStore) {
	t.Helper()
	store, err := metadatastore.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := NewService(store, store, metrics.New())
	svc.SetRand(rand.New(rand.NewSource(42)))
	return svc, store
}

func TestSyntheticShape(t *testing.T) {
	req := models.DefaultSeedRequest()
	rows := Synthetic("load", req, rand.New(rand.NewSource(1)))

	require.Len(t, rows, 13*288)
	assert.True(t, rows[0].Timestamp.Equal(time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)))
	assert.True(t, rows[len(rows)-1].Timestamp.Equal(time.Date(2025, 3, 14, 23, 55, 0, 0, time.UTC)))

	for i := 1; i < len(rows); i++ {
		assert.Equal(t, 5*time.Minute, rows[i].Timestamp.Sub(rows[i-1].Timestamp))
	}

	for _, row := range rows {
		assert.Equal(t, "load", row.ModelName)
		hour, minute := row.Timestamp.Hour(), row.Timestamp.Minute()
		if hour < 8 {
			assert.Zero(t, row.Value, "off-hours are scaled by 0 by default")
			continue
		}
		day := float64(row.Timestamp.Sub(SyntheticEpoch) / (24 * time.Hour))
		base := float64((hour%16)*60 + minute)
		trend := day * req.TrendFactor
		assert.GreaterOrEqual(t, row.Value, trend+base*(1-req.Jitter)-1e-9)
		assert.LessOrEqual(t, row.Value, trend+base*(1+req.Jitter)+1e-9)
	}
}

func TestSyntheticDeterministicWithSeed(t *testing.T) {
	req := models.SeedRequest{Days: 3, TrendFactor: 2, OffHoursFactor: 0.5, Jitter: 0.1}
	a := Synthetic("m", req, rand.New(rand.NewSource(7)))
	b := Synthetic("m", req, rand.New(rand.NewSource(7)))
	assert.Equal(t, a, b)

	assert.Empty(t, Synthetic("m", models.SeedRequest{Days: 1}, rand.New(rand.NewSource(7))))
}

func TestParseCSV(t *testing.T) {
	body := "timestamp,value\n2025-03-01 00:00:00,1.5\n2025-03-01 01:00:00, 2\n"
	rows, err := ParseCSV("m", strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1.5, rows[0].Value)
	assert.True(t, rows[1].Timestamp.Equal(t0.Add(time.Hour)))

	body = "y,ds\n3,2025-03-01T00:00:00Z\n"
	rows, err = ParseCSV("m", strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3.0, rows[0].Value)
	assert.True(t, rows[0].Timestamp.Equal(t0))
}

func TestParseCSVRejects(t *testing.T) {
	tests := map[string]string{
		"empty":         "",
		"no columns":    "when,amount\n2025-03-01,1\n",
		"bad value":     "ds,y\n2025-03-01 00:00:00,abc\n",
		"bad timestamp": "ds,y\nyesterday,1\n",
		"no rows":       "ds,y\n",
		"short row":     "ds,y\n2025-03-01 00:00:00\n",
		"nan":           "ds,y\n2025-03-01 00:00:00,NaN\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCSV("m", strings.NewReader(body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrIngest), "got %v", err)
		})
	}
}

func TestParseCSVReportsLine(t *testing.T) {
	body := "ds,y\n2025-03-01 00:00:00,1\n2025-03-01 01:00:00,oops\n"
	_, err := ParseCSV("m", strings.NewReader(body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestServiceRecordRegistersModel(t *testing.T) {
	svc, store := setupTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, "a", t0, 1))

	rows, err := store.FetchAll(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	registered, err := store.ListRegistered(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, registered)
}

func TestServiceRecordValidates(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	err := svc.Record(ctx, "../etc", t0, 1)
	assert.True(t, errors.Is(err, models.ErrInvalidRequest))

	err = svc.Record(ctx, "a", time.Time{}, 1)
	assert.True(t, errors.Is(err, models.ErrInvalidRequest))
}

func TestServiceSeed(t *testing.T) {
	svc, store := setupTestService(t)
	ctx := context.Background()

	n, err := svc.Seed(ctx, "load", models.DefaultSeedRequest())
	require.NoError(t, err)
	assert.Equal(t, 13*288, n)

	rows, err := store.FetchAll(ctx, "load")
	require.NoError(t, err)
	assert.Len(t, rows, n)

	_, err = svc.Seed(ctx, "load", models.SeedRequest{Days: 0})
	assert.True(t, errors.Is(err, models.ErrInvalidRequest))
}

func TestServiceImportCSVIsAllOrNothing(t *testing.T) {
	svc, store := setupTestService(t)
	ctx := context.Background()

	_, err := svc.ImportCSV(ctx, "m", strings.NewReader("ds,y\n2025-03-01 00:00:00,1\n2025-03-01 01:00:00,x\n"))
	require.Error(t, err)

	rows, err := store.FetchAll(ctx, "m")
	require.NoError(t, err)
	assert.Empty(t, rows)
	registered, err := store.ListRegistered(ctx)
	require.NoError(t, err)
	assert.Empty(t, registered)

	n, err := svc.ImportCSV(ctx, "m", strings.NewReader("ds,y\n2025-03-01 00:00:00,1\n2025-03-01 01:00:00,2\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

type recordingFlush struct {
	mu      sync.Mutex
	batches map[string][]models.Measurement
	fail    string
}

func (r *recordingFlush) flush(_ context.Context, model string, rows []models.Measurement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if model == r.fail {
		return errors.New("boom")
	}
	if r.batches == nil {
		r.batches = make(map[string][]models.Measurement)
	}
	r.batches[model] = append(r.batches[model], rows...)
	return nil
}

func TestBufferGroupsByModel(t *testing.T) {
	rec := &recordingFlush{}
	buf := NewBuffer(rec.flush, 0)

	buf.Add(models.Measurement{ModelName: "a", Timestamp: t0, Value: 1})
	buf.Add(models.Measurement{ModelName: "b", Timestamp: t0, Value: 2})
	buf.Add(models.Measurement{ModelName: "a", Timestamp: t0.Add(time.Minute), Value: 3})
	assert.Equal(t, 3, buf.Pending())

	written := buf.Flush(context.Background())
	assert.Equal(t, 3, written)
	assert.Equal(t, 0, buf.Pending())

	require.Len(t, rec.batches["a"], 2)
	assert.Equal(t, 1.0, rec.batches["a"][0].Value)
	assert.Equal(t, 3.0, rec.batches["a"][1].Value)
	assert.Len(t, rec.batches["b"], 1)
}

func TestBufferDropsOldestWhenFull(t *testing.T) {
	rec := &recordingFlush{}
	buf := NewBuffer(rec.flush, 2)

	for i := 0; i < 5; i++ {
		buf.Add(models.Measurement{ModelName: "a", Timestamp: t0.Add(time.Duration(i) * time.Minute), Value: float64(i)})
	}
	assert.Equal(t, 2, buf.Pending())

	buf.Flush(context.Background())
	require.Len(t, rec.batches["a"], 2)
	assert.Equal(t, 3.0, rec.batches["a"][0].Value)
	assert.Equal(t, 4.0, rec.batches["a"][1].Value)
}

func TestBufferFailedModelDoesNotBlockOthers(t *testing.T) {
	rec := &recordingFlush{fail: "bad"}
	buf := NewBuffer(rec.flush, 0)

	buf.Add(models.Measurement{ModelName: "bad", Timestamp: t0, Value: 1})
	buf.Add(models.Measurement{ModelName: "good", Timestamp: t0, Value: 2})

	assert.Equal(t, 1, buf.Flush(context.Background()))
	assert.Len(t, rec.batches["good"], 1)
	assert.Equal(t, 0, buf.Pending())
}

func TestBufferRunFlushesOnCancel(t *testing.T) {
	rec := &recordingFlush{}
	buf := NewBuffer(rec.flush, 0)
	buf.Add(models.Measurement{ModelName: "a", Timestamp: t0, Value: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		buf.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.batches["a"], 1)
}

func TestBufferIntoStore(t *testing.T) {
	svc, store := setupTestService(t)
	ctx := context.Background()

	buf := NewBuffer(func(ctx context.Context, model string, rows []models.Measurement) error {
		_, err := svc.RecordBatch(ctx, model, rows, SourceMQTT)
		return err
	}, 0)
	buf.Add(models.Measurement{ModelName: "sensor-1", Timestamp: t0, Value: 21.5})
	buf.Add(models.Measurement{ModelName: "sensor-1", Timestamp: t0.Add(time.Minute), Value: 21.7})
	require.Equal(t, 2, buf.Flush(ctx))

	names, err := store.ListNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sensor-1"}, names)
}
