package models

import "time"

// RunTrigger records what asked for a training run
type RunTrigger string

const (
	RunTriggerAPI       RunTrigger = "api"
	RunTriggerSchedule  RunTrigger = "schedule"
	RunTriggerLifecycle RunTrigger = "lifecycle"
)

// RunStatus represents the current status of a training run
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether the run has finished
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// TrainingRun is one execution of the retrain pipeline for a model
type TrainingRun struct {
	ID            string     `json:"run_id"`
	Model         string     `json:"model"`
	Status        RunStatus  `json:"status"`
	Trigger       RunTrigger `json:"trigger"`
	Priority      int        `json:"priority"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Samples       int        `json:"samples,omitempty"`
	ArtifactBytes int64      `json:"artifact_bytes,omitempty"`
	ErrorKind     ErrorKind  `json:"error_kind,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// Duration returns how long the run executed, or zero while it has not finished
func (r *TrainingRun) Duration() time.Duration {
	if r.StartedAt == nil || r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(*r.StartedAt)
}

// RetrainResponse is returned by the retrain endpoint
type RetrainResponse struct {
	Status string       `json:"status"`
	Run    *TrainingRun `json:"run,omitempty"`
}
