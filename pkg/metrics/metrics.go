// Package metrics exposes Prometheus collectors for ingestion, training, forecasting
// and the HTTP boundary. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "forecastd"

// Metrics holds the collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	measurementsIngested *prometheus.CounterVec
	trainingRuns         *prometheus.CounterVec
	trainingDuration     prometheus.Histogram
	trainingQueueDepth   prometheus.Gauge
	artifactBytes        *prometheus.GaugeVec
	forecasts            *prometheus.CounterVec
	forecastDuration     *prometheus.HistogramVec
	httpRequests         *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		measurementsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measurements_ingested_total",
			Help:      "Measurements written to the measurement log, by source.",
		}, []string{"source"}),
		trainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_runs_total",
			Help:      "Finished training runs, by outcome.",
		}, []string{"status"}),
		trainingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_duration_seconds",
			Help:      "Wall time of fit and persist.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		trainingQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "training_queue_depth",
			Help:      "Training runs waiting for a worker.",
		}),
		artifactBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_bytes",
			Help:      "Size of the live artifact per model.",
		}, []string{"model"}),
		forecasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecasts_total",
			Help:      "Forecast and render requests, by operation and outcome.",
		}, []string{"operation", "status"}),
		forecastDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forecast_duration_seconds",
			Help:      "Time spent loading the artifact, predicting and rendering.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.measurementsIngested,
		m.trainingRuns,
		m.trainingDuration,
		m.trainingQueueDepth,
		m.artifactBytes,
		m.forecasts,
		m.forecastDuration,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Ingested counts n measurements from source (api, csv, seed, mqtt)
func (m *Metrics) Ingested(source string, n int) {
	if m == nil {
		return
	}
	m.measurementsIngested.WithLabelValues(source).Add(float64(n))
}

// TrainingFinished records the outcome and duration of a run
func (m *Metrics) TrainingFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.trainingRuns.WithLabelValues(status).Inc()
	m.trainingDuration.Observe(d.Seconds())
}

// QueueDepth sets the number of waiting runs
func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.trainingQueueDepth.Set(float64(n))
}

// ArtifactSize sets the live artifact size of model; a negative size removes the series
func (m *Metrics) ArtifactSize(model string, bytes int64) {
	if m == nil {
		return
	}
	if bytes < 0 {
		m.artifactBytes.DeleteLabelValues(model)
		return
	}
	m.artifactBytes.WithLabelValues(model).Set(float64(bytes))
}

// ResetArtifacts drops every per-model artifact series
func (m *Metrics) ResetArtifacts() {
	if m == nil {
		return
	}
	m.artifactBytes.Reset()
}

// Forecast records one forecast or render request
func (m *Metrics) Forecast(operation, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.forecasts.WithLabelValues(operation, status).Inc()
	m.forecastDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// HTTPRequest records one served request
func (m *Metrics) HTTPRequest(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
