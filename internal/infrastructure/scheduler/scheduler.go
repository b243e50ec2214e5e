package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus represents the status of a scheduled job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobKind names the maintenance work a job performs
type JobKind string

const (
	// JobKindReindex rebuilds the search projection from catalog storage
	JobKindReindex JobKind = "REINDEX"
	// JobKindRecomputeSortOrder recomputes display order in every category
	JobKindRecomputeSortOrder JobKind = "RECOMPUTE_SORT_ORDER"
)

// Job is one queued unit of maintenance work
type Job struct {
	ID          uuid.UUID  `json:"id"`
	Kind        JobKind    `json:"kind"`
	Recreate    bool       `json:"recreate,omitempty"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	Result      string     `json:"result,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
}

// NewJob creates a new pending job
func NewJob(kind JobKind, maxRetries int) *Job {
	return &Job{
		ID:          uuid.New(),
		Kind:        kind,
		Status:      JobStatusPending,
		SubmittedAt: time.Now(),
		MaxRetries:  maxRetries,
	}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete(result string) {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
	j.Result = result
}

// Fail marks the job as failed
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry puts a failed job back to pending
func (j *Job) ScheduleRetry() {
	j.RetryCount++
	j.Status = JobStatusPending
	j.CompletedAt = nil
}

// finished reports whether the job reached a terminal state
func (j *Job) finished() bool {
	return j.Status == JobStatusSuccess || (j.Status == JobStatusFailed && !j.ShouldRetry())
}

// JobExecutor runs a job and returns a short human readable result
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) (string, error)
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Workers       int
	QueueSize     int
	JobTimeout    time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	// HistorySize bounds how many finished jobs are kept for lookup
	HistorySize int
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Workers:       2,
		QueueSize:     16,
		JobTimeout:    30 * time.Minute,
		RetryAttempts: 3,
		RetryDelay:    5 * time.Minute,
		HistorySize:   100,
	}
}

// Scheduler runs maintenance jobs on a worker pool. At most one job of a
// kind is queued or running at a time; submitting another returns the
// job already in flight.
type Scheduler struct {
	config   SchedulerConfig
	executor JobExecutor
	logger   *zap.Logger

	jobs      chan *Job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	inFlight  map[JobKind]*Job
	history   map[uuid.UUID]*Job
	order     []uuid.UUID
	timers    map[uuid.UUID]*time.Timer
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config SchedulerConfig, executor JobExecutor, logger *zap.Logger) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaults.JobTimeout
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.HistorySize <= 0 {
		config.HistorySize = defaults.HistorySize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		jobs:     make(chan *Job, config.QueueSize),
		inFlight: make(map[JobKind]*Job),
		history:  make(map[uuid.UUID]*Job),
		timers:   make(map[uuid.UUID]*time.Timer),
	}
}

// Start starts the worker pool
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Job scheduler started",
		zap.Int("workers", s.config.Workers),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for the workers to exit
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Job scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Job scheduler stop timed out")
		return ctx.Err()
	}
}

// Submit queues a job of kind. If a job of that kind is already queued
// or running, that job is returned instead and nothing new is queued.
func (s *Scheduler) Submit(kind JobKind, recreate bool) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil, ErrSchedulerNotRunning
	}
	if existing, ok := s.inFlight[kind]; ok {
		snapshot := *existing
		return &snapshot, nil
	}

	job := NewJob(kind, s.config.RetryAttempts)
	job.Recreate = recreate
	select {
	case s.jobs <- job:
	default:
		return nil, ErrJobQueueFull
	}
	s.inFlight[kind] = job
	s.remember(job)

	s.logger.Info("Job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)),
	)
	snapshot := *job
	return &snapshot, nil
}

// GetJob returns a snapshot of a known job
func (s *Scheduler) GetJob(id uuid.UUID) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.history[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	snapshot := *job
	return &snapshot, nil
}

// remember records job for lookup, evicting the oldest finished jobs
// beyond the history size. Callers hold s.mu.
func (s *Scheduler) remember(job *Job) {
	s.history[job.ID] = job
	s.order = append(s.order, job.ID)
	for len(s.order) > s.config.HistorySize {
		oldest := s.history[s.order[0]]
		if oldest != nil && !oldest.finished() {
			break
		}
		delete(s.history, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.jobs:
			s.processJob(ctx, job, workerID)
		}
	}
}

func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	s.mu.Lock()
	job.Start()
	s.mu.Unlock()

	s.logger.Info("Processing job",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)),
	)

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()
	result, err := s.safeExecute(jobCtx, job)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		job.Complete(result)
		delete(s.inFlight, job.Kind)
		s.logger.Info("Job completed successfully",
			zap.String("job_id", job.ID.String()),
			zap.String("kind", string(job.Kind)),
			zap.String("result", result),
		)
		return
	}

	job.Fail(err.Error())
	s.logger.Error("Job failed",
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)),
		zap.Int("retry_count", job.RetryCount),
		zap.Error(err),
	)
	if !job.ShouldRetry() || !s.isRunning {
		delete(s.inFlight, job.Kind)
		return
	}

	job.ScheduleRetry()
	delay := s.config.RetryDelay * time.Duration(1<<min(job.RetryCount-1, 6))
	s.timers[job.ID] = time.AfterFunc(delay, func() { s.requeue(job) })
	s.logger.Info("Job scheduled for retry",
		zap.String("job_id", job.ID.String()),
		zap.Int("retry_count", job.RetryCount),
		zap.Duration("delay", delay),
	)
}

func (s *Scheduler) requeue(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, job.ID)
	if !s.isRunning {
		return
	}
	select {
	case s.jobs <- job:
	default:
		job.Fail("job queue is full on retry")
		delete(s.inFlight, job.Kind)
		s.logger.Warn("Failed to re-queue job for retry", zap.String("job_id", job.ID.String()))
	}
}

func (s *Scheduler) safeExecute(ctx context.Context, job *Job) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &JobPanicError{Value: r}
		}
	}()
	return s.executor.Execute(ctx, job)
}
