// Package scheduler periodically retrains every model that has measurements
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/seasonal/forecastd/pkg/logging"
	"github.com/seasonal/forecastd/pkg/models"
)

// NameLister lists the models to retrain
type NameLister interface {
	ListNames(ctx context.Context) ([]string, error)
}

// Submitter queues a retrain
type Submitter interface {
	Submit(model string, trigger models.RunTrigger) (*models.TrainingRun, error)
}

// tickTimeout bounds the name lookup of one tick
const tickTimeout = 30 * time.Second

// Service submits a retrain of every listed model on each cron tick. Failures are
// logged and never stop the schedule.
type Service struct {
	names    NameLister
	trainer  Submitter
	schedule string
	cron     *cron.Cron
	log      *logging.FieldLogger

	mu      sync.Mutex
	entry   cron.EntryID
	lastRun time.Time
}

// NewService validates schedule (standard 5-field cron or a descriptor such as
// "@hourly" or "@every 30m") and returns a stopped scheduler
func NewService(names NameLister, trainer Submitter, schedule string) (*Service, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", schedule, err)
	}
	return &Service{
		names:    names,
		trainer:  trainer,
		schedule: schedule,
		cron:     cron.New(),
		log:      logging.GetLogger().With(logging.Component("scheduler")),
	}, nil
}

// Start schedules the retrain job and starts the cron runner
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry != 0 {
		return nil
	}
	entry, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
		defer cancel()
		s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retrain: %w", err)
	}
	s.entry = entry
	s.cron.Start()

	s.log.Info("Periodic retrain scheduled",
		logging.String("schedule", s.schedule),
		logging.String("next_run", s.cron.Entry(entry).Next.Format(time.RFC3339)))
	return nil
}

// Stop stops the cron runner and waits for a running tick to return
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Periodic retrain stopped")
}

// RunOnce submits a retrain for every model with measurements and returns how many
// were submitted
func (s *Service) RunOnce(ctx context.Context) int {
	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()

	names, err := s.names.ListNames(ctx)
	if err != nil {
		s.log.Error("Failed to list models for periodic retrain", err)
		return 0
	}

	submitted := 0
	for _, name := range names {
		run, err := s.trainer.Submit(name, models.RunTriggerSchedule)
		if err != nil {
			s.log.Error("Failed to submit periodic retrain", err, logging.Model(name))
			continue
		}
		submitted++
		s.log.Debug("Periodic retrain submitted", logging.Model(name), logging.String("run_id", run.ID))
	}

	s.log.Info("Periodic retrain tick",
		logging.Int("models", len(names)),
		logging.Int("submitted", submitted))
	return submitted
}

// LastRun returns when the last tick started, or the zero time
func (s *Service) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}
