package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Ingested("csv", 10)
	m.Ingested("csv", 5)
	m.TrainingFinished("succeeded", time.Second)
	m.TrainingFinished("failed", time.Millisecond)

	assert.Equal(t, 15.0, testutil.ToFloat64(m.measurementsIngested.WithLabelValues("csv")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.trainingRuns.WithLabelValues("failed")))
}

func TestArtifactSizeRemoval(t *testing.T) {
	m := New()
	m.ArtifactSize("a", 100)
	m.ArtifactSize("b", 200)
	assert.Equal(t, 2, testutil.CollectAndCount(m.artifactBytes))

	m.ArtifactSize("a", -1)
	assert.Equal(t, 1, testutil.CollectAndCount(m.artifactBytes))

	m.ResetArtifacts()
	assert.Equal(t, 0, testutil.CollectAndCount(m.artifactBytes))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.HTTPRequest("GET", "/models", http.StatusOK, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "forecastd_http_requests_total"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Ingested("api", 1)
		m.TrainingFinished("succeeded", time.Second)
		m.QueueDepth(3)
		m.ArtifactSize("x", 1)
		m.ResetArtifacts()
		m.Forecast("predict", "ok", time.Second)
		m.HTTPRequest("GET", "/", 200, time.Second)
	})
}
