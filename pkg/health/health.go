// Package health tracks whether the process has finished starting up
package health

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/seasonal/forecastd/pkg/models"
)

// State is the readiness of the process
type State int32

const (
	Starting State = iota
	Ready
)

func (s State) String() string {
	if s == Ready {
		return "ready"
	}
	return "starting"
}

// Status moves once from Starting to Ready and never back
type Status struct {
	state   atomic.Int32
	once    sync.Once
	readyAt atomic.Int64
	started time.Time
	ready   chan struct{}
}

// NewStatus returns a status in the Starting state
func NewStatus() *Status {
	return &Status{started: time.Now(), ready: make(chan struct{})}
}

// MarkReady switches to Ready. Only the first call has an effect.
func (s *Status) MarkReady() {
	s.once.Do(func() {
		s.readyAt.Store(time.Now().UnixNano())
		s.state.Store(int32(Ready))
		close(s.ready)
	})
}

// State returns the current state
func (s *Status) State() State {
	return State(s.state.Load())
}

// Check returns a not_ready error until MarkReady has been called
func (s *Status) Check() error {
	if s.State() != Ready {
		return models.NotReady()
	}
	return nil
}

// Done is closed when the process becomes ready
func (s *Status) Done() <-chan struct{} {
	return s.ready
}

// Uptime is the time since the status was created
func (s *Status) Uptime() time.Duration {
	return time.Since(s.started)
}

// StartupDuration is how long startup took, or zero while still starting
func (s *Status) StartupDuration() time.Duration {
	at := s.readyAt.Load()
	if at == 0 {
		return 0
	}
	return time.Unix(0, at).Sub(s.started)
}
