package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	tododomain "fileflow-backend/internal/todo/domain"
	"fileflow-backend/internal/todo/repository"

	"github.com/rs/zerolog/log"
)

type JobOp string

const (
	OpUpsert JobOp = "upsert"
	OpDelete JobOp = "delete"
)

// SyncJob mirrors one local todo write to the remote store.
type SyncJob struct {
	Op       JobOp            `json:"op"`
	UserID   string           `json:"user_id"`
	TodoID   string           `json:"todo_id"`
	Todo     *tododomain.Todo `json:"todo,omitempty"`
	Attempts int              `json:"attempts"`
	LastErr  string           `json:"last_error,omitempty"`
}

type QueueConfig struct {
	Workers     int
	Buffer      int
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultQueueConfig() QueueConfig {
	return QueueConfig{Workers: 2, Buffer: 256, MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second}
}

// SyncQueue applies remote writes in the background, retrying with exponential
// backoff. Jobs that exhaust their attempts are kept as dead letters.
type SyncQueue struct {
	repo    repository.TodoRepository
	cfg     QueueConfig
	jobs    chan SyncJob
	quit    chan struct{}
	pending atomic.Int64

	workerWg sync.WaitGroup
	mu       sync.Mutex
	started  bool
	stopped  bool
	failed   []SyncJob
}

func NewSyncQueue(repo repository.TodoRepository, cfg QueueConfig) *SyncQueue {
	def := DefaultQueueConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	return &SyncQueue{
		repo: repo,
		cfg:  cfg,
		jobs: make(chan SyncJob, cfg.Buffer),
		quit: make(chan struct{}),
	}
}

func (q *SyncQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	for i := 0; i < q.cfg.Workers; i++ {
		q.workerWg.Add(1)
		go q.worker(i)
	}
	q.started = true
	log.Info().Int("workers", q.cfg.Workers).Msg("[TodoQueue] Started")
}

// Stop refuses new jobs, lets workers drain what is queued and waits for them.
// Jobs still backing off when Stop is called become dead letters.
func (q *SyncQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.quit)
	close(q.jobs)
	q.mu.Unlock()

	q.workerWg.Wait()
	log.Info().Int("failed", len(q.Failed())).Msg("[TodoQueue] All workers stopped")
}

// Enqueue adds a job without blocking. A full or stopped queue dead-letters it.
func (q *SyncQueue) Enqueue(job SyncJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		job.LastErr = "queue stopped"
		q.failed = append(q.failed, job)
		return false
	}
	q.pending.Add(1)
	select {
	case q.jobs <- job:
		return true
	default:
		q.pending.Add(-1)
		log.Warn().Str("user_id", job.UserID).Str("todo_id", job.TodoID).Msg("[TodoQueue] Queue full, job dead-lettered")
		job.LastErr = "queue full"
		q.failed = append(q.failed, job)
		return false
	}
}

// Pending is the number of jobs queued or in flight.
func (q *SyncQueue) Pending() int {
	return int(q.pending.Load())
}

// Failed returns a copy of the dead letters.
func (q *SyncQueue) Failed() []SyncJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]SyncJob(nil), q.failed...)
}

func (q *SyncQueue) worker(id int) {
	defer q.workerWg.Done()
	for job := range q.jobs {
		q.process(job)
		q.pending.Add(-1)
	}
	log.Debug().Int("worker", id).Msg("[TodoQueue] Worker stopped")
}

func (q *SyncQueue) process(job SyncJob) {
	for {
		job.Attempts++
		err := q.apply(job)
		if err == nil {
			return
		}
		job.LastErr = err.Error()
		log.Warn().Err(err).
			Str("user_id", job.UserID).
			Str("todo_id", job.TodoID).
			Str("op", string(job.Op)).
			Int("attempt", job.Attempts).
			Msg("[TodoQueue] Remote write failed")

		if job.Attempts >= q.cfg.MaxAttempts {
			q.deadLetter(job)
			return
		}

		timer := time.NewTimer(q.backoff(job.Attempts))
		select {
		case <-timer.C:
		case <-q.quit:
			timer.Stop()
			q.deadLetter(job)
			return
		}
	}
}

func (q *SyncQueue) apply(job SyncJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	switch job.Op {
	case OpUpsert:
		return q.repo.Upsert(ctx, job.Todo)
	case OpDelete:
		return q.repo.Delete(ctx, job.UserID, job.TodoID)
	default:
		return fmt.Errorf("unknown op %q", job.Op)
	}
}

func (q *SyncQueue) backoff(attempt int) time.Duration {
	d := q.cfg.BaseDelay << (attempt - 1)
	if d <= 0 || d > q.cfg.MaxDelay {
		return q.cfg.MaxDelay
	}
	return d
}

func (q *SyncQueue) deadLetter(job SyncJob) {
	log.Error().Str("user_id", job.UserID).Str("todo_id", job.TodoID).Str("op", string(job.Op)).
		Int("attempts", job.Attempts).Str("error", job.LastErr).Msg("[TodoQueue] Giving up on job")
	q.mu.Lock()
	q.failed = append(q.failed, job)
	q.mu.Unlock()
}
