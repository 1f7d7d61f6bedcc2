// Package api is the HTTP boundary of forecastd
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/seasonal/forecastd/pkg/forecast"
	"github.com/seasonal/forecastd/pkg/health"
	"github.com/seasonal/forecastd/pkg/ingest"
	"github.com/seasonal/forecastd/pkg/lifecycle"
	"github.com/seasonal/forecastd/pkg/logging"
	"github.com/seasonal/forecastd/pkg/metrics"
	"github.com/seasonal/forecastd/pkg/training"
)

// Deps are the services the handlers call into
type Deps struct {
	Lifecycle      *lifecycle.Manager
	Ingest         *ingest.Service
	Trainer        *training.Orchestrator
	Forecasts      *forecast.Engine
	Health         *health.Status
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// Server provides HTTP API endpoints
type Server struct {
	lifecycle      *lifecycle.Manager
	ingest         *ingest.Service
	trainer        *training.Orchestrator
	forecasts      *forecast.Engine
	health         *health.Status
	metrics        *metrics.Metrics
	requestTimeout time.Duration
	allowedOrigins []string

	router     *mux.Router
	httpServer *http.Server
	log        *logging.FieldLogger
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	if deps.Health == nil {
		deps.Health = health.NewStatus()
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 2 * time.Minute
	}
	if len(deps.AllowedOrigins) == 0 {
		deps.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		lifecycle:      deps.Lifecycle,
		ingest:         deps.Ingest,
		trainer:        deps.Trainer,
		forecasts:      deps.Forecasts,
		health:         deps.Health,
		metrics:        deps.Metrics,
		requestTimeout: deps.RequestTimeout,
		allowedOrigins: deps.AllowedOrigins,
		router:         mux.NewRouter(),
		log:            logging.GetLogger().With(logging.Component("http")),
	}
	s.setupRoutes()
	return s
}

// setupRoutes sets up the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.errorRecoveryMiddleware)

	// Probes and metrics answer while starting up
	s.router.HandleFunc("/health", s.handleLive).Methods(http.MethodGet)
	s.router.HandleFunc("/health/live", s.handleLive).Methods(http.MethodGet)
	s.router.HandleFunc("/health/ready", s.handleReady).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	core := s.router.PathPrefix("/").Subrouter()
	core.Use(s.readinessMiddleware)

	// Models
	core.HandleFunc("/models", s.handleListModels).Methods(http.MethodGet)
	core.HandleFunc("/models/{model}", s.handleUpsertModel).Methods(http.MethodPut, http.MethodPost)
	core.HandleFunc("/models/{model}", s.handleGetModel).Methods(http.MethodGet)
	core.HandleFunc("/models/{model}", s.handleDeleteModel).Methods(http.MethodDelete)
	core.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)

	// Ingestion
	core.HandleFunc("/feed/{model}", s.handleFeed).Methods(http.MethodPost)
	core.HandleFunc("/feed/{model}/csv", s.handleFeedCSV).Methods(http.MethodPost)
	core.HandleFunc("/feed/{model}/testData", s.handleFeedTestData).Methods(http.MethodGet, http.MethodPost)

	// Training
	core.HandleFunc("/retrain/{model}", s.handleRetrain).Methods(http.MethodGet, http.MethodPost)
	core.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)

	// Forecasts
	core.HandleFunc("/predict/{model}", s.handlePredict).Methods(http.MethodPost)
	core.HandleFunc("/graph/{model}", s.handleGraph).Methods(http.MethodGet)
}

// Handler returns the router wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{RequestIDHeader},
	})
	return c.Handler(s.router)
}

// Start listens on addr and blocks until the server stops. It returns nil after a
// graceful Shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      s.requestTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.log.Info("Starting API server", logging.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
