// Package training runs the retrain pipeline: fetch history, resolve parameters, fit,
// and atomically replace the model's artifact. Fits execute on a pool of worker
// goroutines so request handlers and health checks stay responsive.
package training

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/seasonal/forecastd/pkg/artifactstore"
	"github.com/seasonal/forecastd/pkg/forecaster"
	"github.com/seasonal/forecastd/pkg/keylock"
	"github.com/seasonal/forecastd/pkg/logging"
	"github.com/seasonal/forecastd/pkg/metadatastore"
	"github.com/seasonal/forecastd/pkg/metrics"
	"github.com/seasonal/forecastd/pkg/models"
	"github.com/seasonal/forecastd/pkg/params"
	"github.com/seasonal/forecastd/pkg/queue"
)

// Priorities for queued runs
const (
	PriorityScheduled = 0
	PriorityAPI       = 10
)

// Result describes a successful training
type Result struct {
	Model    string
	Samples  int
	Artifact *artifactstore.Info
	Params   models.ResolvedParams
	Duration time.Duration
}

// Orchestrator owns write access to the artifact store
type Orchestrator struct {
	measurements metadatastore.MeasurementLog
	configs      metadatastore.ConfigStore
	artifacts    *artifactstore.FileStore
	locks        *keylock.Locker
	queue        *queue.Queue
	metrics      *metrics.Metrics
	log          *logging.FieldLogger

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewOrchestrator creates an orchestrator. locks must be shared with the lifecycle
// manager so deletes and retrains of one model never interleave.
func NewOrchestrator(
	measurements metadatastore.MeasurementLog,
	configs metadatastore.ConfigStore,
	artifacts *artifactstore.FileStore,
	locks *keylock.Locker,
	m *metrics.Metrics,
) *Orchestrator {
	return &Orchestrator{
		measurements: measurements,
		configs:      configs,
		artifacts:    artifacts,
		locks:        locks,
		queue:        queue.NewQueue(),
		metrics:      m,
		log:          logging.GetLogger().With(logging.Component("training")),
		stop:         make(chan struct{}),
	}
}

// Start launches n worker goroutines. Calling Start again has no effect.
func (o *Orchestrator) Start(n int) {
	if n < 1 {
		n = 1
	}
	o.startOnce.Do(func() {
		for i := 0; i < n; i++ {
			o.wg.Add(1)
			go o.worker(i)
		}
		o.log.Info("Training workers started", logging.Int("workers", n))
	})
}

// Stop lets running fits finish and stops the workers. Queued runs stay queued.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		close(o.stop)
	})
	o.wg.Wait()
	o.log.Info("Training workers stopped", logging.Int("queued", o.queue.QueueLength()))
}

func (o *Orchestrator) worker(id int) {
	defer o.wg.Done()

	for {
		select {
		case <-o.stop:
			return
		case <-o.queue.Signal():
		}

		for {
			select {
			case <-o.stop:
				return
			default:
			}

			run := o.queue.Dequeue()
			if run == nil {
				break
			}
			o.metrics.QueueDepth(o.queue.QueueLength())
			o.execute(id, run)
		}
	}
}

func (o *Orchestrator) execute(worker int, run *models.TrainingRun) {
	o.log.Debug("Training run started",
		logging.Model(run.Model),
		logging.String("run_id", run.ID),
		logging.Int("worker", worker),
	)

	start := time.Now()
	res, err := o.trainRecovered(run.Model)

	var samples int
	var size int64
	status := string(models.RunStatusSucceeded)
	if err != nil {
		status = string(models.RunStatusFailed)
		o.log.Error("Training run failed", err,
			logging.Model(run.Model),
			logging.String("run_id", run.ID),
			logging.String("kind", string(models.KindOf(err))),
		)
	} else {
		samples, size = res.Samples, res.Artifact.Size
	}

	if cerr := o.queue.Complete(run.ID, samples, size, err); cerr != nil {
		o.log.Error("Failed to record training run", cerr, logging.String("run_id", run.ID))
	}
	o.metrics.TrainingFinished(status, time.Since(start))
}

// trainRecovered runs Train and reports a panic as a failed fit, so one bad model
// cannot take down the worker pool
func (o *Orchestrator) trainRecovered(model string) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = models.Training(model, fmt.Errorf("panic during training: %v", r))
		}
	}()
	return o.Train(context.Background(), model)
}

// Submit queues a retrain of model and returns the run tracking it. A run already
// waiting for the same model is reused.
func (o *Orchestrator) Submit(model string, trigger models.RunTrigger) (*models.TrainingRun, error) {
	if err := models.ValidateModelName(model); err != nil {
		return nil, err
	}

	priority := PriorityAPI
	if trigger == models.RunTriggerSchedule {
		priority = PriorityScheduled
	}

	run, coalesced := o.queue.Enqueue(model, trigger, priority)
	o.metrics.QueueDepth(o.queue.QueueLength())
	if coalesced {
		o.log.Debug("Retrain coalesced with queued run", logging.Model(model), logging.String("run_id", run.ID))
	}
	return run, nil
}

// Retrain submits a run and waits for it. When ctx ends first only the wait is
// abandoned; the run completes and commits its artifact in the background.
func (o *Orchestrator) Retrain(ctx context.Context, model string, trigger models.RunTrigger) (*models.TrainingRun, error) {
	run, err := o.Submit(model, trigger)
	if err != nil {
		return nil, err
	}

	done, err := o.queue.Wait(ctx, run.ID)
	if err != nil {
		return run, err
	}
	if done.Status == models.RunStatusFailed {
		return done, o.queue.Failure(done.ID)
	}
	return done, nil
}

// GetRun returns the current state of a run
func (o *Orchestrator) GetRun(id string) (*models.TrainingRun, error) {
	return o.queue.GetRun(id)
}

// ListRuns returns tracked runs of model, newest first. An empty model lists all.
func (o *Orchestrator) ListRuns(model string) []*models.TrainingRun {
	return o.queue.ListRuns(model)
}

// Train runs the pipeline for model on the calling goroutine while holding the
// model's lock. On any failure the existing artifact is left untouched.
func (o *Orchestrator) Train(ctx context.Context, model string) (*Result, error) {
	unlock := o.locks.Lock(model)
	defer unlock()

	start := time.Now()

	rows, err := o.measurements.FetchAll(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch measurements for %s: %w", model, err)
	}
	if len(rows) == 0 {
		return nil, models.NoData(model)
	}

	models.SortByTimestamp(rows)
	history := make([]forecaster.Point, len(rows))
	for i, r := range rows {
		history[i] = forecaster.Point{T: r.Timestamp, Y: r.Value}
	}

	cfg, err := o.configs.Get(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration for %s: %w", model, err)
	}
	p := params.Resolve(cfg)

	o.log.Info("Training model",
		logging.Model(model),
		logging.Int("samples", len(history)),
		logging.Bool("configured", cfg != nil),
		logging.String("params", p.String()),
	)

	fitted, err := forecaster.Fit(history, p)
	if err != nil {
		return nil, models.Training(model, err)
	}

	info, err := o.artifacts.Save(model, fitted)
	if err != nil {
		return nil, fmt.Errorf("failed to persist artifact for %s: %w", model, err)
	}

	elapsed := time.Since(start)
	o.metrics.ArtifactSize(model, info.Size)
	o.log.Info("Model trained",
		logging.Model(model),
		logging.Int("samples", len(history)),
		logging.String("artifact_size", artifactstore.HumanSize(info.Size)),
		logging.Float("sigma", fitted.Sigma),
		logging.Int("changepoints", len(fitted.ChangepointTimes(forecaster.ChangepointThreshold))),
		logging.Duration("duration", elapsed),
	)

	return &Result{
		Model:    model,
		Samples:  len(history),
		Artifact: info,
		Params:   p,
		Duration: elapsed,
	}, nil
}
