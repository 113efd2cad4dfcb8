// Package jobqueue provides an in-process at-least-once task executor with
// retry, exponential backoff, and dead-lettering. Slow or unreliable side
// effects (broker reconciliation, digests) run here instead of on the
// signal path.
package jobqueue

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusDead      Status = "dead"
)

// Job is a unit of background work. Owned by the queue; handlers only read
// their own payload.
type Job struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Payload     any       `json:"payload,omitempty"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	RunAt       time.Time `json:"runAt"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"maxAttempts"`
	LastError   string    `json:"lastError,omitempty"`
}

// Handler executes one job attempt. A returned error triggers retry/backoff.
type Handler func(ctx context.Context, job *Job) error

// Options tune a single enqueue call.
type Options struct {
	RunAt       time.Time
	MaxAttempts int
}

// Config tunes the queue.
type Config struct {
	MaxQueueSize  int
	Concurrency   int
	MaxAttempts   int
	RetryBase     time.Duration
	RetryMax      time.Duration
	DeadLetterMax int
}

// AuditSink receives queue lifecycle events (drops, dead letters).
type AuditSink interface {
	Record(event string, payload any)
}

// Queue is a single-dispatcher worker pool over a runAt-ordered pending list.
type Queue struct {
	cfg   Config
	audit AuditSink

	mu         sync.Mutex
	handlers   map[string]Handler
	pending    []*Job // sorted by RunAt ascending
	inFlight   int
	deadLetter []*Job
	running    bool

	wake   chan struct{}
	sem    chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a queue with sane defaults applied.
func New(cfg Config, audit AuditSink) *Queue {
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 500
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 30 * time.Second
	}
	if cfg.DeadLetterMax <= 0 {
		cfg.DeadLetterMax = 100
	}
	return &Queue{
		cfg:      cfg,
		audit:    audit,
		handlers: make(map[string]Handler),
		wake:     make(chan struct{}, 1),
		sem:      make(chan struct{}, cfg.Concurrency),
	}
}

// Register binds a handler to a job type. Must happen before jobs of that
// type become runnable.
func (q *Queue) Register(jobType string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = h
}

// Enqueue adds a job, or returns nil when the queue is full (backpressure by
// drop, not blocking).
func (q *Queue) Enqueue(jobType string, payload any, opts ...Options) *Job {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}

	q.mu.Lock()
	if len(q.pending) >= q.cfg.MaxQueueSize {
		q.mu.Unlock()
		log.Printf("jobqueue: dropped %s job, queue full (%d)", jobType, q.cfg.MaxQueueSize)
		if q.audit != nil {
			q.audit.Record("job.dropped", map[string]any{"type": jobType, "queue_size": q.cfg.MaxQueueSize})
		}
		return nil
	}

	job := &Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Payload:     payload,
		Status:      StatusQueued,
		CreatedAt:   time.Now(),
		RunAt:       opt.RunAt,
		MaxAttempts: opt.MaxAttempts,
	}
	if job.RunAt.IsZero() {
		job.RunAt = job.CreatedAt
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.cfg.MaxAttempts
	}

	q.insertLocked(job)
	q.mu.Unlock()

	q.notify()
	return job
}

// insertLocked keeps pending sorted by RunAt ascending.
func (q *Queue) insertLocked(job *Job) {
	i := sort.Search(len(q.pending), func(i int) bool {
		return q.pending[i].RunAt.After(job.RunAt)
	})
	q.pending = append(q.pending, nil)
	copy(q.pending[i+1:], q.pending[i:])
	q.pending[i] = job
}

// notify coalesces dispatcher wake-ups through a 1-buffered channel.
func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Start launches the dispatcher goroutine.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go q.dispatch(ctx)
	log.Printf("jobqueue: started (concurrency=%d, max=%d)", q.cfg.Concurrency, q.cfg.MaxQueueSize)
}

// Stop cancels the dispatcher and waits for in-flight handlers.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.mu.Unlock()

	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
	log.Println("jobqueue: stopped")
}

func (q *Queue) dispatch(ctx context.Context) {
	defer q.wg.Done()
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		next := q.drainReady(ctx)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		wait := time.Hour
		if !next.IsZero() {
			wait = time.Until(next)
			if wait < 50*time.Millisecond {
				wait = 50 * time.Millisecond
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		case <-timer.C:
		}
	}
}

// drainReady starts every due job a concurrency slot allows and returns the
// next future RunAt, or zero when nothing is scheduled.
func (q *Queue) drainReady(ctx context.Context) time.Time {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return time.Time{}
		}
		job := q.pending[0]
		if job.RunAt.After(time.Now()) {
			next := job.RunAt
			q.mu.Unlock()
			return next
		}

		select {
		case q.sem <- struct{}{}:
		default:
			// all slots busy; a finishing worker will wake us
			q.mu.Unlock()
			return time.Time{}
		}

		q.pending = q.pending[1:]
		job.Status = StatusRunning
		job.Attempts++
		handler := q.handlers[job.Type]
		q.inFlight++
		q.mu.Unlock()

		q.wg.Add(1)
		go q.run(ctx, job, handler)
	}
}

func (q *Queue) run(ctx context.Context, job *Job, handler Handler) {
	defer q.wg.Done()
	defer func() {
		<-q.sem
		q.mu.Lock()
		q.inFlight--
		q.mu.Unlock()
		q.notify()
	}()

	var err error
	if handler == nil {
		err = fmt.Errorf("no handler registered for job type %q", job.Type)
	} else {
		err = handler(ctx, job)
	}

	if err == nil {
		q.mu.Lock()
		job.Status = StatusCompleted
		q.mu.Unlock()
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	job.LastError = err.Error()

	if job.Attempts > job.MaxAttempts {
		job.Status = StatusDead
		q.deadLetter = append(q.deadLetter, job)
		if len(q.deadLetter) > q.cfg.DeadLetterMax {
			q.deadLetter = q.deadLetter[len(q.deadLetter)-q.cfg.DeadLetterMax:]
		}
		log.Printf("jobqueue: job %s (%s) dead after %d attempts: %v", job.ID, job.Type, job.Attempts, err)
		if q.audit != nil {
			q.audit.Record("job.dead", map[string]any{
				"job_id": job.ID, "type": job.Type, "attempts": job.Attempts, "error": err.Error(),
			})
		}
		return
	}

	backoff := q.cfg.RetryBase * (1 << (job.Attempts - 1))
	if backoff > q.cfg.RetryMax {
		backoff = q.cfg.RetryMax
	}
	job.Status = StatusQueued
	job.RunAt = time.Now().Add(backoff)
	q.insertLocked(job)
	log.Printf("jobqueue: job %s (%s) attempt %d failed, retry in %v: %v",
		job.ID, job.Type, job.Attempts, backoff, err)
	// Re-arm the dispatcher for the retry time.
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Stats is a read-only observability snapshot.
type Stats struct {
	Running    bool `json:"running"`
	Pending    int  `json:"pending"`
	InFlight   int  `json:"inFlight"`
	DeadLetter int  `json:"deadLetter"`
}

// GetStats reports queue counters without side effects.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Running:    q.running,
		Pending:    len(q.pending),
		InFlight:   q.inFlight,
		DeadLetter: len(q.deadLetter),
	}
}

// DeadLetters returns a copy of the dead-letter list, oldest first.
func (q *Queue) DeadLetters() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, len(q.deadLetter))
	for i, j := range q.deadLetter {
		out[i] = *j
	}
	return out
}

// Len returns the pending depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
