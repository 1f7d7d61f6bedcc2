package api

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seasonal/forecastd/pkg/artifactstore"
	"github.com/seasonal/forecastd/pkg/forecast"
	"github.com/seasonal/forecastd/pkg/health"
	"github.com/seasonal/forecastd/pkg/ingest"
	"github.com/seasonal/forecastd/pkg/keylock"
	"github.com/seasonal/forecastd/pkg/lifecycle"
	"github.com/seasonal/forecastd/pkg/metadatastore"
	"github.com/seasonal/forecastd/pkg/metrics"
	"github.com/seasonal/forecastd/pkg/models"
	"github.com/seasonal/forecastd/pkg/training"
)

func setupTestServer(t *testing.T, ready bool) (*Server, *health.Status) {
	t.Helper()
	dir := t.TempDir()

	store, err := metadatastore.NewSQLiteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	artifacts, err := artifactstore.NewFileStore(filepath.Join(dir, "model"))
	require.NoError(t, err)

	m := metrics.New()
	locks := keylock.New()

	trainer := training.NewOrchestrator(store, store, artifacts, locks, m)
	trainer.Start(1)
	t.Cleanup(trainer.Stop)

	ingestSvc := ingest.NewService(store, store, m)
	ingestSvc.SetRand(rand.New(rand.NewSource(42)))

	status := health.NewStatus()
	if ready {
		status.MarkReady()
	}

	s := NewServer(Deps{
		Lifecycle:      lifecycle.NewManager(store, store, store, artifacts, locks, m),
		Ingest:         ingestSvc,
		Trainer:        trainer,
		Forecasts:      forecast.NewEngine(artifacts, m),
		Health:         status,
		Metrics:        m,
		RequestTimeout: 30 * time.Second,
	})
	return s, status
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestFeedRetrainPredictRoundTrip(t *testing.T) {
	s, _ := setupTestServer(t, true)

	w := do(t, s, http.MethodPost, "/feed/load/testData", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "Sample metrics were created in the db for model load", body["message"])
	assert.EqualValues(t, 13*24*12, body["rows"])

	w = do(t, s, http.MethodPost, "/retrain/load", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Models have been retrained to fit the data in the db", decodeBody(t, w)["message"])

	w = do(t, s, http.MethodPost, "/predict/load", map[string]any{
		"start_date": "2025-03-15 00:00:00",
		"periods":    24,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Forecast []struct {
			DS   string  `json:"ds"`
			YHat float64 `json:"yhat"`
		} `json:"forecast"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Forecast, 24)

	prev, err := models.ParseTimestamp(resp.Forecast[0].DS)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-15 00:00:00", resp.Forecast[0].DS)
	for _, p := range resp.Forecast[1:] {
		ts, err := models.ParseTimestamp(p.DS)
		require.NoError(t, err)
		assert.Equal(t, time.Hour, ts.Sub(prev))
		prev = ts
	}
}

func TestFeedSingleMeasurement(t *testing.T) {
	s, _ := setupTestServer(t, true)

	w := do(t, s, http.MethodPost, "/feed/cpu", map[string]any{"date": "2025-03-01 10:00:00", "value": 3.5})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Measurement was stored in the db for model cpu", decodeBody(t, w)["message"])

	w = do(t, s, http.MethodPost, "/feed/cpu", map[string]any{"date": "yesterday", "value": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decodeBody(t, w)["kind"])
}

func TestFeedCSV(t *testing.T) {
	s, _ := setupTestServer(t, true)

	csvBody := "timestamp,value\n2025-03-01 00:00:00,1\n2025-03-01 01:00:00,2\n"
	w := do(t, s, http.MethodPost, "/feed/disk/csv", csvBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.EqualValues(t, 2, decodeBody(t, w)["rows"])

	w = do(t, s, http.MethodPost, "/feed/disk/csv", "timestamp,value\n2025-03-01 02:00:00,oops\n")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "ingest", decodeBody(t, w)["kind"])
}

func TestListModels(t *testing.T) {
	s, _ := setupTestServer(t, true)

	for _, name := range []string{"b", "a"} {
		w := do(t, s, http.MethodPost, "/feed/"+name, map[string]any{"date": "2025-03-01 00:00:00", "value": 1})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	w := do(t, s, http.MethodPut, "/models/configured-only", map[string]any{"daily_seasonality": "auto"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, s, http.MethodGet, "/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"a", "b"}, decodeBody(t, w)["models"])

	w = do(t, s, http.MethodGet, "/models?source=registry", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"a", "b", "configured-only"}, decodeBody(t, w)["models"])

	w = do(t, s, http.MethodGet, "/models?source=elsewhere", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestModelConfigAndDelete(t *testing.T) {
	s, _ := setupTestServer(t, true)

	w := do(t, s, http.MethodPut, "/models/web", map[string]any{"weekly_seasonality": true, "seasonality_mode": "multiplicative"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, s, http.MethodGet, "/models/web", nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decodeBody(t, w)
	assert.Equal(t, true, info["configured"])
	assert.Equal(t, false, info["trained"])

	w = do(t, s, http.MethodPut, "/models/web", map[string]any{"custom_seasonality_period": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPut, "/models/web", map[string]any{"no_such_field": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodDelete, "/models/web", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/models/web", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["configured"])
}

func TestErrorMapping(t *testing.T) {
	s, _ := setupTestServer(t, true)

	w := do(t, s, http.MethodPost, "/retrain/empty", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "no_data", body["kind"])
	assert.Equal(t, "error", body["status"])

	w = do(t, s, http.MethodPost, "/predict/never-trained", map[string]any{"start_date": "2025-03-01", "periods": 3})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, "no_artifact", body["kind"])
	assert.Contains(t, body["error"], "/retrain/never-trained")

	w = do(t, s, http.MethodPost, "/predict/load", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/predict/load", map[string]any{"start_date": "2025-03-01", "periods": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodGet, "/runs/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeBody(t, w)["kind"])

	w = do(t, s, http.MethodPost, "/feed/bad%20name", map[string]any{"date": "2025-03-01", "value": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAsyncRetrainReturnsRun(t *testing.T) {
	s, _ := setupTestServer(t, true)

	w := do(t, s, http.MethodPost, "/feed/load/testData?days=3", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, s, http.MethodPost, "/retrain/load?async=true", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp models.RetrainResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Run)
	require.NotEmpty(t, resp.Run.ID)

	assert.Eventually(t, func() bool {
		w := do(t, s, http.MethodGet, "/runs/"+resp.Run.ID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		var run models.TrainingRun
		if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
			return false
		}
		return run.Status == models.RunStatusSucceeded
	}, 30*time.Second, 50*time.Millisecond)
}

func TestReadinessGate(t *testing.T) {
	s, status := setupTestServer(t, false)

	w := do(t, s, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "not_ready", decodeBody(t, w)["kind"])

	w = do(t, s, http.MethodGet, "/models", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	status.MarkReady()

	w = do(t, s, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", decodeBody(t, w)["status"])

	w = do(t, s, http.MethodGet, "/models", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGraph(t *testing.T) {
	s, _ := setupTestServer(t, true)

	w := do(t, s, http.MethodPost, "/feed/load/testData?days=3", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = do(t, s, http.MethodPost, "/retrain/load", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, s, http.MethodGet, "/graph/load?periods=48&trend=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG\r\n\x1a\n")))

	w = do(t, s, http.MethodGet, "/graph/load?periods=48&format=text", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
	assert.Contains(t, w.Body.String(), "load")

	w = do(t, s, http.MethodGet, "/graph/load?format=svg", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodGet, "/graph/missing", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "no_artifact", decodeBody(t, w)["kind"])
}

func TestResetKeepsArtifacts(t *testing.T) {
	s, _ := setupTestServer(t, true)

	w := do(t, s, http.MethodPost, "/feed/load/testData?days=3", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	w = do(t, s, http.MethodPost, "/retrain/load", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, s, http.MethodPost, "/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/models", nil)
	assert.Equal(t, []any{}, decodeBody(t, w)["models"])

	w = do(t, s, http.MethodPost, "/predict/load", map[string]any{"start_date": "2025-03-03", "periods": 2})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestRequestIDAndMetrics(t *testing.T) {
	s, _ := setupTestServer(t, true)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	w = do(t, s, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
