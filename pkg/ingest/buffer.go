package ingest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gammazero/deque"

	"github.com/seasonal/forecastd/pkg/logging"
	"github.com/seasonal/forecastd/pkg/models"
)

// DefaultMaxPending caps the rows held per model between flushes
const DefaultMaxPending = 10000

// FlushFunc persists the pending rows of one model
type FlushFunc func(ctx context.Context, model string, rows []models.Measurement) error

// Buffer collects streamed measurements per model and hands them to a FlushFunc in
// batches. When a model's backlog reaches its cap the oldest rows are dropped.
type Buffer struct {
	mu         sync.Mutex
	pending    map[string]*deque.Deque[models.Measurement]
	maxPending int
	dropped    int
	flush      FlushFunc
	log        *logging.FieldLogger
}

// NewBuffer creates a buffer flushing through flush
func NewBuffer(flush FlushFunc, maxPending int) *Buffer {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	return &Buffer{
		pending:    make(map[string]*deque.Deque[models.Measurement]),
		maxPending: maxPending,
		flush:      flush,
		log:        logging.GetLogger().With(logging.Component("ingest")),
	}
}

// Add queues one measurement
func (b *Buffer) Add(m models.Measurement) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.pending[m.ModelName]
	if !ok {
		q = deque.New[models.Measurement](0, 64)
		b.pending[m.ModelName] = q
	}
	if q.Len() >= b.maxPending {
		q.PopFront()
		b.dropped++
	}
	q.PushBack(m)
}

// Pending returns the number of rows waiting across all models
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, q := range b.pending {
		n += q.Len()
	}
	return n
}

// drain takes every pending row, grouped by model in name order
func (b *Buffer) drain() (map[string][]models.Measurement, []string, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	batches := make(map[string][]models.Measurement, len(b.pending))
	names := make([]string, 0, len(b.pending))
	for name, q := range b.pending {
		rows := make([]models.Measurement, 0, q.Len())
		for q.Len() > 0 {
			rows = append(rows, q.PopFront())
		}
		batches[name] = rows
		names = append(names, name)
	}
	b.pending = make(map[string]*deque.Deque[models.Measurement])
	dropped := b.dropped
	b.dropped = 0

	sort.Strings(names)
	return batches, names, dropped
}

// Flush writes everything pending. A failed model batch is logged and discarded so
// one bad model cannot block the others. Returns the number of rows written.
func (b *Buffer) Flush(ctx context.Context) int {
	batches, names, dropped := b.drain()
	if dropped > 0 {
		b.log.Warn("Ingest backlog overflowed, oldest measurements dropped", logging.Int("dropped", dropped))
	}

	written := 0
	for _, name := range names {
		rows := batches[name]
		if err := b.flush(ctx, name, rows); err != nil {
			b.log.Error("Failed to flush measurements", err, logging.Model(name), logging.Int("rows", len(rows)))
			continue
		}
		written += len(rows)
	}
	return written
}

// Run flushes every interval until ctx is cancelled, then flushes once more
func (b *Buffer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.Flush(ctx)
		case <-ctx.Done():
			b.Flush(context.Background())
			return
		}
	}
}
