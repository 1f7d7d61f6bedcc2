package queue

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seasonal/forecastd/pkg/models"
)

// DefaultHistory is how many finished runs are kept for status queries
const DefaultHistory = 1000

// Queue provides in-memory training run queue operations with priority support.
// At most one queued run exists per model; submitting again returns the queued run.
type Queue struct {
	mu       sync.RWMutex
	pq       *PriorityQueue
	runs     map[string]*models.TrainingRun
	failures map[string]error
	done     map[string]chan struct{}
	pending  map[string]string // model -> queued run id
	finished []string
	history  int
	seq      uint64
	signal   chan struct{}
}

// NewQueue creates a new in-memory queue instance
func NewQueue() *Queue {
	pq := make(PriorityQueue, 0)
	heap.Init(&pq)

	return &Queue{
		pq:       &pq,
		runs:     make(map[string]*models.TrainingRun),
		failures: make(map[string]error),
		done:     make(map[string]chan struct{}),
		pending:  make(map[string]string),
		history:  DefaultHistory,
		signal:   make(chan struct{}, 1),
	}
}

// Signal returns a channel that receives when runs are waiting
func (q *Queue) Signal() <-chan struct{} {
	return q.signal
}

func (q *Queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Enqueue adds a run for model unless one is already waiting. The returned flag is
// true when an existing queued run was reused.
func (q *Queue) Enqueue(model string, trigger models.RunTrigger, priority int) (*models.TrainingRun, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if id, ok := q.pending[model]; ok {
		run := q.runs[id]
		if priority > run.Priority {
			run.Priority = priority
			for _, item := range *q.pq {
				if item.RunID == id {
					item.Priority = priority
					heap.Fix(q.pq, item.index)
					break
				}
			}
		}
		return q.snapshot(run), true
	}

	run := &models.TrainingRun{
		ID:          uuid.New().String(),
		Model:       model,
		Status:      models.RunStatusQueued,
		Trigger:     trigger,
		Priority:    priority,
		SubmittedAt: time.Now(),
	}

	q.seq++
	heap.Push(q.pq, &PriorityQueueItem{RunID: run.ID, Priority: priority, Seq: q.seq})
	q.runs[run.ID] = run
	q.done[run.ID] = make(chan struct{})
	q.pending[model] = run.ID

	q.notify()
	return q.snapshot(run), false
}

// Dequeue retrieves the next run and marks it running. It returns nil when empty.
func (q *Queue) Dequeue() *models.TrainingRun {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pq.Len() == 0 {
		return nil
	}

	item := heap.Pop(q.pq).(*PriorityQueueItem)
	run := q.runs[item.RunID]
	delete(q.pending, run.Model)

	now := time.Now()
	run.Status = models.RunStatusRunning
	run.StartedAt = &now

	// let another worker pick up the rest
	if q.pq.Len() > 0 {
		q.notify()
	}

	return q.snapshot(run)
}

// Complete records the outcome of a running run and wakes its waiters
func (q *Queue) Complete(runID string, samples int, artifactBytes int64, runErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	run, ok := q.runs[runID]
	if !ok {
		return models.NotFound("training run", runID)
	}

	now := time.Now()
	run.CompletedAt = &now
	run.Samples = samples
	if runErr != nil {
		run.Status = models.RunStatusFailed
		run.ErrorKind = models.KindOf(runErr)
		run.Error = runErr.Error()
		q.failures[runID] = runErr
	} else {
		run.Status = models.RunStatusSucceeded
		run.ArtifactBytes = artifactBytes
	}

	if ch, ok := q.done[runID]; ok {
		close(ch)
		delete(q.done, runID)
	}

	q.finished = append(q.finished, runID)
	q.prune()
	return nil
}

// prune forgets the oldest finished runs beyond the history limit
func (q *Queue) prune() {
	for len(q.finished) > q.history {
		id := q.finished[0]
		q.finished = q.finished[1:]
		delete(q.runs, id)
		delete(q.failures, id)
	}
}

// GetRun retrieves a copy of a run by ID
func (q *Queue) GetRun(runID string) (*models.TrainingRun, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	run, ok := q.runs[runID]
	if !ok {
		return nil, models.NotFound("training run", runID)
	}
	return q.snapshot(run), nil
}

// Failure returns the error a failed run ended with, or nil
func (q *Queue) Failure(runID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.failures[runID]
}

// Wait blocks until the run finishes or ctx is done. Cancelling ctx stops only the
// wait; the run itself carries on.
func (q *Queue) Wait(ctx context.Context, runID string) (*models.TrainingRun, error) {
	q.mu.RLock()
	ch, waiting := q.done[runID]
	_, known := q.runs[runID]
	q.mu.RUnlock()

	if !known {
		return nil, models.NotFound("training run", runID)
	}

	if waiting {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return q.GetRun(runID)
}

// QueueLength returns the number of runs waiting for a worker
func (q *Queue) QueueLength() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.pq.Len()
}

// ListRuns returns copies of all tracked runs for model, newest first
func (q *Queue) ListRuns(model string) []*models.TrainingRun {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []*models.TrainingRun
	for _, run := range q.runs {
		if model == "" || run.Model == model {
			out = append(out, q.snapshot(run))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}

func (q *Queue) snapshot(run *models.TrainingRun) *models.TrainingRun {
	cp := *run
	return &cp
}

// PriorityQueueItem represents an item in the priority queue
type PriorityQueueItem struct {
	RunID    string
	Priority int    // higher runs first
	Seq      uint64 // FIFO among equal priorities
	index    int
}

// PriorityQueue implements heap.Interface
type PriorityQueue []*PriorityQueueItem

func (pq PriorityQueue) Len() int { return len(pq) }

func (pq PriorityQueue) Less(i, j int) bool {
	if pq[i].Priority != pq[j].Priority {
		return pq[i].Priority > pq[j].Priority
	}
	return pq[i].Seq < pq[j].Seq
}

func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *PriorityQueue) Push(x interface{}) {
	n := len(*pq)
	item := x.(*PriorityQueueItem)
	item.index = n
	*pq = append(*pq, item)
}

func (pq *PriorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	*pq = old[0 : n-1]
	return item
}
