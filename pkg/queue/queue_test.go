package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seasonal/forecastd/pkg/models"
)

// TestEnqueueDequeue tests basic queue operations
func TestEnqueueDequeue(t *testing.T) {
	q := NewQueue()

	run, coalesced := q.Enqueue("load", models.RunTriggerAPI, 0)
	require.NotNil(t, run)
	assert.False(t, coalesced)
	assert.Equal(t, models.RunStatusQueued, run.Status)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 1, q.QueueLength())

	next := q.Dequeue()
	require.NotNil(t, next)
	assert.Equal(t, run.ID, next.ID)
	assert.Equal(t, models.RunStatusRunning, next.Status)
	assert.NotNil(t, next.StartedAt)
	assert.Zero(t, q.QueueLength())

	assert.Nil(t, q.Dequeue(), "empty queue returns nil")
}

func TestEnqueueCoalescesQueuedRunsPerModel(t *testing.T) {
	q := NewQueue()

	first, _ := q.Enqueue("m", models.RunTriggerSchedule, 0)
	second, coalesced := q.Enqueue("m", models.RunTriggerAPI, 0)
	assert.True(t, coalesced)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, q.QueueLength())

	// once started, a new submission gets its own run
	q.Dequeue()
	third, coalesced := q.Enqueue("m", models.RunTriggerAPI, 0)
	assert.False(t, coalesced)
	assert.NotEqual(t, first.ID, third.ID)
}

// TestPriorityOrdering tests that higher priority runs go first, FIFO otherwise
func TestPriorityOrdering(t *testing.T) {
	q := NewQueue()

	q.Enqueue("low-1", models.RunTriggerSchedule, 0)
	q.Enqueue("low-2", models.RunTriggerSchedule, 0)
	q.Enqueue("high", models.RunTriggerAPI, 10)

	var order []string
	for run := q.Dequeue(); run != nil; run = q.Dequeue() {
		order = append(order, run.Model)
	}
	assert.Equal(t, []string{"high", "low-1", "low-2"}, order)
}

func TestCoalescedRunAdoptsHigherPriority(t *testing.T) {
	q := NewQueue()

	q.Enqueue("a", models.RunTriggerSchedule, 0)
	q.Enqueue("b", models.RunTriggerSchedule, 0)
	q.Enqueue("b", models.RunTriggerAPI, 10)

	assert.Equal(t, "b", q.Dequeue().Model)
}

func TestCompleteAndWait(t *testing.T) {
	q := NewQueue()
	run, _ := q.Enqueue("m", models.RunTriggerAPI, 0)

	go func() {
		r := q.Dequeue()
		time.Sleep(10 * time.Millisecond)
		assert.NoError(t, q.Complete(r.ID, 42, 1024, nil))
	}()

	done, err := q.Wait(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSucceeded, done.Status)
	assert.Equal(t, 42, done.Samples)
	assert.Equal(t, int64(1024), done.ArtifactBytes)
	assert.Nil(t, q.Failure(run.ID))
	assert.Greater(t, done.Duration(), time.Duration(0))
}

func TestFailureIsKept(t *testing.T) {
	q := NewQueue()
	run, _ := q.Enqueue("m", models.RunTriggerAPI, 0)
	q.Dequeue()

	require.NoError(t, q.Complete(run.ID, 0, 0, models.NoData("m")))

	got, err := q.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.Equal(t, models.KindNoData, got.ErrorKind)
	assert.True(t, errors.Is(q.Failure(run.ID), models.ErrNoData))

	// waiting on a finished run returns immediately
	got, err = q.Wait(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
}

func TestWaitHonoursContext(t *testing.T) {
	q := NewQueue()
	run, _ := q.Enqueue("m", models.RunTriggerAPI, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Wait(ctx, run.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the run is unaffected by the abandoned wait
	got, err := q.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, got.Status)
}

func TestUnknownRun(t *testing.T) {
	q := NewQueue()

	_, err := q.GetRun("nope")
	assert.True(t, errors.Is(err, models.ErrNotFound))
	_, err = q.Wait(context.Background(), "nope")
	assert.True(t, errors.Is(err, models.ErrNotFound))
	assert.Error(t, q.Complete("nope", 0, 0, nil))
}

func TestHistoryIsBounded(t *testing.T) {
	q := NewQueue()
	q.history = 3

	var ids []string
	for i := 0; i < 5; i++ {
		run, _ := q.Enqueue("m", models.RunTriggerAPI, 0)
		q.Dequeue()
		require.NoError(t, q.Complete(run.ID, 1, 1, nil))
		ids = append(ids, run.ID)
	}

	_, err := q.GetRun(ids[0])
	assert.Error(t, err)
	_, err = q.GetRun(ids[4])
	assert.NoError(t, err)
	assert.Len(t, q.ListRuns("m"), 3)
}

func TestSignalWakesWorkers(t *testing.T) {
	q := NewQueue()
	q.Enqueue("a", models.RunTriggerAPI, 0)
	q.Enqueue("b", models.RunTriggerAPI, 0)

	select {
	case <-q.Signal():
	default:
		t.Fatal("expected a pending signal")
	}

	q.Dequeue()
	select {
	case <-q.Signal():
	default:
		t.Fatal("dequeue with work left should re-signal")
	}
}

func TestConcurrentEnqueueDequeue(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Enqueue(string(rune('a'+i)), models.RunTriggerAPI, i%3)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, q.QueueLength())

	seen := map[string]bool{}
	var mu sync.Mutex
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for run := q.Dequeue(); run != nil; run = q.Dequeue() {
				mu.Lock()
				seen[run.ID] = true
				mu.Unlock()
				assert.NoError(t, q.Complete(run.ID, 1, 1, nil))
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 20)
}
