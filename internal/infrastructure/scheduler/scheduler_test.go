package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	catalogapp "github.com/erp/catalog-engine/internal/application/catalog"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedExecutor fails a job kind a set number of times before succeeding
type scriptedExecutor struct {
	mu       sync.Mutex
	failures map[JobKind]int
	calls    map[JobKind]int
	block    chan struct{}
	panics   bool
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{failures: map[JobKind]int{}, calls: map[JobKind]int{}}
}

func (e *scriptedExecutor) Execute(ctx context.Context, job *Job) (string, error) {
	e.mu.Lock()
	e.calls[job.Kind]++
	fail := e.failures[job.Kind] > 0
	if fail {
		e.failures[job.Kind]--
	}
	block := e.block
	panics := e.panics
	e.mu.Unlock()

	if panics {
		panic("boom")
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if fail {
		return "", errors.New("sink unavailable")
	}
	return "ok", nil
}

func (e *scriptedExecutor) callCount(kind JobKind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[kind]
}

func startScheduler(t *testing.T, executor JobExecutor, cfg SchedulerConfig) *Scheduler {
	t.Helper()
	s := NewScheduler(cfg, executor, nil)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func waitForStatus(t *testing.T, s *Scheduler, id uuid.UUID, status JobStatus) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		var err error
		job, err = s.GetJob(id)
		return err == nil && job.Status == status
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestScheduler_RunsJob(t *testing.T) {
	executor := newScriptedExecutor()
	s := startScheduler(t, executor, SchedulerConfig{Workers: 1})

	job, err := s.Submit(JobKindReindex, true)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.True(t, job.Recreate)

	done := waitForStatus(t, s, job.ID, JobStatusSuccess)
	assert.Equal(t, "ok", done.Result)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
}

func TestScheduler_DeduplicatesInFlightKind(t *testing.T) {
	executor := newScriptedExecutor()
	executor.block = make(chan struct{})
	s := startScheduler(t, executor, SchedulerConfig{Workers: 2})

	first, err := s.Submit(JobKindReindex, false)
	require.NoError(t, err)
	second, err := s.Submit(JobKindReindex, false)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := s.Submit(JobKindRecomputeSortOrder, false)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	close(executor.block)
	waitForStatus(t, s, first.ID, JobStatusSuccess)
	waitForStatus(t, s, other.ID, JobStatusSuccess)

	next, err := s.Submit(JobKindReindex, false)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, next.ID, "a finished job no longer blocks its kind")
}

func TestScheduler_RetriesFailedJob(t *testing.T) {
	executor := newScriptedExecutor()
	executor.failures[JobKindReindex] = 2
	s := startScheduler(t, executor, SchedulerConfig{Workers: 1, RetryAttempts: 3, RetryDelay: time.Millisecond})

	job, err := s.Submit(JobKindReindex, false)
	require.NoError(t, err)

	done := waitForStatus(t, s, job.ID, JobStatusSuccess)
	assert.Equal(t, 2, done.RetryCount)
	assert.Equal(t, 3, executor.callCount(JobKindReindex))
}

func TestScheduler_GivesUpAfterRetries(t *testing.T) {
	executor := newScriptedExecutor()
	executor.failures[JobKindReindex] = 10
	s := startScheduler(t, executor, SchedulerConfig{Workers: 1, RetryAttempts: 1, RetryDelay: time.Millisecond})

	job, err := s.Submit(JobKindReindex, false)
	require.NoError(t, err)

	failed := waitForStatus(t, s, job.ID, JobStatusFailed)
	assert.Equal(t, "sink unavailable", failed.Error)
	assert.Equal(t, 1, failed.RetryCount)

	require.Eventually(t, func() bool {
		next, err := s.Submit(JobKindReindex, false)
		return err == nil && next.ID != job.ID
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_RecoversPanics(t *testing.T) {
	executor := newScriptedExecutor()
	executor.panics = true
	s := startScheduler(t, executor, SchedulerConfig{Workers: 1})

	job, err := s.Submit(JobKindReindex, false)
	require.NoError(t, err)

	failed := waitForStatus(t, s, job.ID, JobStatusFailed)
	assert.Contains(t, failed.Error, "job panicked: boom")
}

func TestScheduler_JobTimeout(t *testing.T) {
	executor := newScriptedExecutor()
	executor.block = make(chan struct{})
	s := startScheduler(t, executor, SchedulerConfig{Workers: 1, JobTimeout: 10 * time.Millisecond})

	job, err := s.Submit(JobKindReindex, false)
	require.NoError(t, err)

	failed := waitForStatus(t, s, job.ID, JobStatusFailed)
	assert.Contains(t, failed.Error, context.DeadlineExceeded.Error())
	close(executor.block)
}

func TestScheduler_NotRunning(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, newScriptedExecutor(), nil)

	_, err := s.Submit(JobKindReindex, false)
	assert.ErrorIs(t, err, ErrSchedulerNotRunning)

	_, err = s.GetJob(uuid.New())
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_QueueFull(t *testing.T) {
	s := NewScheduler(SchedulerConfig{QueueSize: 1}, newScriptedExecutor(), nil)
	// running without workers so nothing drains the queue
	s.isRunning = true

	_, err := s.Submit(JobKindReindex, false)
	require.NoError(t, err)
	_, err = s.Submit(JobKindRecomputeSortOrder, false)
	assert.ErrorIs(t, err, ErrJobQueueFull)
}

type fakeReindexer struct {
	recreate bool
	err      error
}

func (f *fakeReindexer) Reindex(_ context.Context, recreate bool) (*catalogapp.ReindexReport, error) {
	f.recreate = recreate
	if f.err != nil {
		return nil, f.err
	}
	return &catalogapp.ReindexReport{Products: 450, Batches: 3, Duration: 2 * time.Second}, nil
}

type fakeRecomputer struct{ n int }

func (f *fakeRecomputer) RecomputeAll(context.Context) (int, error) { return f.n, nil }

func TestCatalogJobExecutor_Execute(t *testing.T) {
	reindexer := &fakeReindexer{}
	executor := NewCatalogJobExecutor(reindexer, &fakeRecomputer{n: 7})
	ctx := context.Background()

	job := NewJob(JobKindReindex, 0)
	job.Recreate = true
	result, err := executor.Execute(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, "indexed 450 products in 3 batches (2s)", result)
	assert.True(t, reindexer.recreate)

	result, err = executor.Execute(ctx, NewJob(JobKindRecomputeSortOrder, 0))
	require.NoError(t, err)
	assert.Equal(t, "recomputed 7 categories", result)

	_, err = executor.Execute(ctx, NewJob("VACUUM", 0))
	assert.ErrorIs(t, err, ErrUnknownJobKind)

	reindexer.err = errors.New("sink unavailable")
	_, err = executor.Execute(ctx, NewJob(JobKindReindex, 0))
	assert.EqualError(t, err, "sink unavailable")
}

type recordingSubmitter struct {
	mu    sync.Mutex
	kinds []JobKind
	flags []bool
}

func (r *recordingSubmitter) Submit(kind JobKind, recreate bool) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	r.flags = append(r.flags, recreate)
	return NewJob(kind, 0), nil
}

func TestCronTrigger_CheckAndTrigger(t *testing.T) {
	submitter := &recordingSubmitter{}
	trigger := NewCronTrigger(CronTriggerConfig{DailyHour: 3, DailyMinute: 30, CheckInterval: time.Minute}, submitter, nil)

	at := func(hour, minute int) func() time.Time {
		return func() time.Time { return time.Date(2024, 5, 1, hour, minute, 0, 0, time.UTC) }
	}

	trigger.now = at(3, 29)
	assert.False(t, trigger.checkAndTrigger(), "too early")

	trigger.now = at(3, 30)
	assert.True(t, trigger.checkAndTrigger())
	assert.Equal(t, []JobKind{JobKindRecomputeSortOrder, JobKindReindex}, submitter.kinds)

	trigger.now = at(3, 31)
	assert.False(t, trigger.checkAndTrigger(), "once per day")

	trigger.now = func() time.Time { return time.Date(2024, 5, 2, 3, 31, 0, 0, time.UTC) }
	assert.True(t, trigger.checkAndTrigger(), "a late check within the window still fires")

	trigger.now = func() time.Time { return time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC) }
	assert.False(t, trigger.checkAndTrigger(), "a start long after the run time waits for tomorrow")
}

func TestCronTrigger_TriggerNow(t *testing.T) {
	submitter := &recordingSubmitter{}
	trigger := NewCronTrigger(DefaultCronTriggerConfig(), submitter, nil)

	trigger.TriggerNow(true)
	assert.Equal(t, []bool{false, true}, submitter.flags, "only the reindex recreates the index")
}

func TestCronTrigger_StartStop(t *testing.T) {
	trigger := NewCronTrigger(CronTriggerConfig{CheckInterval: time.Millisecond}, &recordingSubmitter{}, nil)

	require.NoError(t, trigger.Start(context.Background()))
	require.NoError(t, trigger.Start(context.Background()))
	require.NoError(t, trigger.Stop(context.Background()))
	require.NoError(t, trigger.Stop(context.Background()))
}
