package jobqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAudit struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingAudit) Record(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingAudit) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	audit := &recordingAudit{}
	q := New(Config{MaxQueueSize: 2}, audit)
	q.Register("noop", func(ctx context.Context, job *Job) error { return nil })

	require.NotNil(t, q.Enqueue("noop", nil))
	require.NotNil(t, q.Enqueue("noop", nil))

	// Queue is at capacity; the drop must be silent backpressure, not a block.
	dropped := q.Enqueue("noop", nil)
	assert.Nil(t, dropped)
	assert.Equal(t, 2, q.Len())
	assert.True(t, audit.has("job.dropped"))
}

func TestJobRunsAndCompletes(t *testing.T) {
	var ran atomic.Int32
	q := New(Config{}, nil)
	q.Register("work", func(ctx context.Context, job *Job) error {
		ran.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	job := q.Enqueue("work", map[string]string{"k": "v"})
	require.NotNil(t, job)

	assert.Eventually(t, func() bool {
		return ran.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		stats := q.GetStats()
		return stats.Pending == 0 && stats.InFlight == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFailingJobRetriesThenDeadLetters(t *testing.T) {
	var attempts atomic.Int32
	audit := &recordingAudit{}
	q := New(Config{
		MaxAttempts: 2,
		RetryBase:   time.Millisecond,
		RetryMax:    10 * time.Millisecond,
	}, audit)
	q.Register("doomed", func(ctx context.Context, job *Job) error {
		attempts.Add(1)
		return errors.New("always fails")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	q.Enqueue("doomed", nil)

	assert.Eventually(t, func() bool {
		return len(q.DeadLetters()) == 1
	}, 5*time.Second, 20*time.Millisecond)

	dead := q.DeadLetters()[0]
	assert.Equal(t, StatusDead, dead.Status)
	// Initial attempt plus MaxAttempts retries.
	assert.Equal(t, 3, dead.Attempts)
	assert.Equal(t, int(attempts.Load()), dead.Attempts)
	assert.Contains(t, dead.LastError, "always fails")
	assert.True(t, audit.has("job.dead"))
}

func TestUnregisteredTypeDeadLetters(t *testing.T) {
	q := New(Config{MaxAttempts: 1, RetryBase: time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	q.Enqueue("mystery", nil)

	assert.Eventually(t, func() bool {
		return len(q.DeadLetters()) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, q.DeadLetters()[0].LastError, "no handler registered")
}

func TestScheduledJobWaitsForRunAt(t *testing.T) {
	var ran atomic.Int32
	q := New(Config{}, nil)
	q.Register("later", func(ctx context.Context, job *Job) error {
		ran.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	q.Enqueue("later", nil, Options{RunAt: time.Now().Add(150 * time.Millisecond)})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), ran.Load(), "job ran before its RunAt")

	assert.Eventually(t, func() bool {
		return ran.Load() == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestDeadLetterCapEvictsOldest(t *testing.T) {
	q := New(Config{
		MaxAttempts:   1,
		RetryBase:     time.Millisecond,
		DeadLetterMax: 3,
	}, nil)
	q.Register("doomed", func(ctx context.Context, job *Job) error {
		return errors.New("no")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	for i := 0; i < 5; i++ {
		q.Enqueue("doomed", i)
	}

	assert.Eventually(t, func() bool {
		stats := q.GetStats()
		return stats.Pending == 0 && stats.InFlight == 0 && stats.DeadLetter == 3
	}, 10*time.Second, 20*time.Millisecond)
}

func TestStopWaitsForInFlight(t *testing.T) {
	var done atomic.Bool
	q := New(Config{}, nil)
	q.Register("slow", func(ctx context.Context, job *Job) error {
		time.Sleep(100 * time.Millisecond)
		done.Store(true)
		return nil
	})

	q.Start(context.Background())
	q.Enqueue("slow", nil)

	assert.Eventually(t, func() bool {
		return q.GetStats().InFlight == 1
	}, 2*time.Second, 5*time.Millisecond)

	q.Stop()
	assert.True(t, done.Load(), "Stop must wait for in-flight handlers")
}
