package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/seasonal/forecastd/pkg/api"
	"github.com/seasonal/forecastd/pkg/artifactstore"
	"github.com/seasonal/forecastd/pkg/config"
	"github.com/seasonal/forecastd/pkg/forecast"
	"github.com/seasonal/forecastd/pkg/health"
	"github.com/seasonal/forecastd/pkg/ingest"
	"github.com/seasonal/forecastd/pkg/keylock"
	"github.com/seasonal/forecastd/pkg/lifecycle"
	"github.com/seasonal/forecastd/pkg/logging"
	"github.com/seasonal/forecastd/pkg/metadatastore"
	"github.com/seasonal/forecastd/pkg/metrics"
	"github.com/seasonal/forecastd/pkg/models"
	"github.com/seasonal/forecastd/pkg/scheduler"
	"github.com/seasonal/forecastd/pkg/training"
)

const shutdownTimeout = 30 * time.Second

func main() {
	status := health.NewStatus()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetLogger().Fatal("Failed to load config", err)
	}

	logger := logging.Init(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting forecastd",
		logging.String("environment", cfg.Environment),
		logging.String("measurement_backend", cfg.MeasurementBackend))

	// Initialize storage. Without a schema there is nothing to serve.
	if dir := filepath.Dir(cfg.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Fatal("Failed to create storage directory", err, logging.String("path", dir))
		}
	}
	store, err := metadatastore.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("Failed to initialize SQLite storage", err, logging.String("path", cfg.DatabasePath))
	}
	defer store.Close()
	logger.Info("Initialized SQLite storage", logging.String("path", cfg.DatabasePath))

	var measurements metadatastore.MeasurementLog = store
	if cfg.MeasurementBackend == config.BackendClickHouse {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		chLog, err := metadatastore.NewClickHouseMeasurementLog(ctx, metadatastore.ClickHouseOptions{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePass,
		})
		cancel()
		if err != nil {
			logger.Fatal("Failed to initialize ClickHouse measurement log", err, logging.String("addr", cfg.ClickHouseAddr))
		}
		defer chLog.Close()
		measurements = chLog
		logger.Info("Measurements are stored in ClickHouse", logging.String("addr", cfg.ClickHouseAddr))
	}

	artifacts, err := artifactstore.NewFileStore(cfg.ModelsPath)
	if err != nil {
		logger.Fatal("Failed to initialize artifact store", err, logging.String("path", cfg.ModelsPath))
	}

	m := metrics.New()
	locks := keylock.New()
	if names, err := artifacts.List(); err == nil {
		for _, name := range names {
			if fi, err := os.Stat(artifacts.Path(name)); err == nil {
				m.ArtifactSize(name, fi.Size())
			}
		}
		logger.Info("Found trained models", logging.Int("count", len(names)))
	} else {
		logger.Warn("Failed to list trained models", logging.Err(err))
	}

	// Initialize services
	trainer := training.NewOrchestrator(measurements, store, artifacts, locks, m)
	trainer.Start(cfg.TrainingWorkers)
	defer trainer.Stop()

	ingestService := ingest.NewService(measurements, store, m)
	lifecycleManager := lifecycle.NewManager(measurements, store, store, artifacts, locks, m)
	forecastEngine := forecast.NewEngine(artifacts, m)

	if cfg.RetrainSchedule != "" {
		sched, err := scheduler.NewService(lifecycleManager, trainer, cfg.RetrainSchedule)
		if err != nil {
			logger.Fatal("Invalid retrain schedule", err)
		}
		if err := sched.Start(); err != nil {
			logger.Fatal("Failed to start retrain scheduler", err)
		}
		defer sched.Stop()
	}

	// Streamed ingestion
	streamCtx, stopStream := context.WithCancel(context.Background())
	streamDone := make(chan struct{})
	close(streamDone)
	stopSubscriber := func() {}
	if cfg.MQTTBroker != "" {
		buffer := ingest.NewBuffer(func(ctx context.Context, model string, rows []models.Measurement) error {
			_, err := ingestService.RecordBatch(ctx, model, rows, ingest.SourceMQTT)
			return err
		}, ingest.DefaultMaxPending)

		subscriber := ingest.NewMQTTSubscriber(ingest.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			Topic:    cfg.MQTTTopic,
		}, buffer)
		if err := subscriber.Start(); err != nil {
			logger.Fatal("Failed to connect to MQTT broker", err, logging.String("broker", cfg.MQTTBroker))
		}
		stopSubscriber = subscriber.Stop

		streamDone = make(chan struct{})
		go func() {
			defer close(streamDone)
			buffer.Run(streamCtx, time.Duration(cfg.MQTTFlushIntervalMS)*time.Millisecond)
		}()
	}

	server := api.NewServer(api.Deps{
		Lifecycle:      lifecycleManager,
		Ingest:         ingestService,
		Trainer:        trainer,
		Forecasts:      forecastEngine,
		Health:         status,
		Metrics:        m,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(":" + cfg.Port)
	}()

	status.MarkReady()
	logger.Info("forecastd started successfully",
		logging.String("port", cfg.Port),
		logging.Duration("startup", status.StartupDuration()))

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutting down", logging.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("API server stopped", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Failed to shut down API server", err)
	}

	// Disconnect before the final flush so no message arrives after it
	stopSubscriber()
	stopStream()
	<-streamDone
	logger.Info("forecastd stopped")
}
