package scheduler

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/percipio/internal/common"
	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
	"github.com/ternarybob/percipio/internal/queue"
	"github.com/ternarybob/percipio/internal/storage/badger"
)

// schedulerTestConfig keeps worker polling and timeouts short for tests
func schedulerTestConfig() *common.SchedulerConfig {
	return &common.SchedulerConfig{
		MaxConcurrentTasks: 2,
		TaskTimeout:        "2s",
		RetryAttempts:      2,
		QueueName:          "test_jobs",
		VisibilityTimeout:  "10s",
		PollInterval:       "20ms",
		MaxReceive:         4,
	}
}

type schedulerStack struct {
	service *Service
	pool    *Pool
	queue   interfaces.QueueManager
	storage interfaces.StorageManager
}

func newSchedulerStack(t *testing.T, config *common.SchedulerConfig, executors ...interfaces.JobExecutor) *schedulerStack {
	t.Helper()
	logger := arbor.NewLogger()

	storage, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })

	store, ok := storage.DB().(*badgerhold.Store)
	if !ok {
		t.Fatalf("Unexpected store type %T", storage.DB())
	}
	q, err := queue.NewBadgerQueue(store.Badger(), config.QueueName, config.VisibilityTimeoutDuration(), config.MaxReceive, logger)
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}

	pool := NewPool(q, storage.JobStorage(), config, logger)
	for _, executor := range executors {
		pool.RegisterExecutor(executor)
	}

	return &schedulerStack{
		service: NewService(q, pool, storage, config, logger),
		pool:    pool,
		queue:   q,
		storage: storage,
	}
}

// fakeExecutor mimics the crawler's execution contract: it transitions the
// job to running, runs the supplied body, and persists the terminal state
// derived from the body's error kind.
type fakeExecutor struct {
	jobType string
	jobs    interfaces.JobStorage
	calls   int32
	run     func(ctx context.Context, job *models.CrawlJob) error
}

func (f *fakeExecutor) Execute(ctx context.Context, job *models.CrawlJob) error {
	atomic.AddInt32(&f.calls, 1)

	job.State = models.JobStateRunning
	job.StartedAt = time.Now().UTC()
	job.Attempts++
	if err := f.jobs.SaveJob(ctx, job); err != nil {
		return err
	}

	var err error
	if f.run != nil {
		err = f.run(ctx, job)
	}

	job.EndedAt = time.Now().UTC()
	if err == nil {
		job.State = models.JobStateCompleted
	} else {
		job.Error = err.Error()
		switch kind, _ := models.KindOf(err); kind {
		case models.ErrCancelled:
			job.State = models.JobStateCancelled
		case models.ErrTimedOut:
			job.State = models.JobStateTimedOut
		default:
			job.State = models.JobStateFailed
		}
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if serr := f.jobs.SaveJob(saveCtx, job); serr != nil {
		return serr
	}
	return err
}

func (f *fakeExecutor) GetJobType() string { return f.jobType }

func (f *fakeExecutor) count() int { return int(atomic.LoadInt32(&f.calls)) }

func waitForState(t *testing.T, jobs interfaces.JobStorage, jobID string, want models.JobState, timeout time.Duration) *models.CrawlJob {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, err := jobs.GetJob(context.Background(), jobID)
		if err == nil && job.State == want {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Job %s did not reach state %s within %v", jobID, want, timeout)
	return nil
}

func waitForEmptyQueue(t *testing.T, q interfaces.QueueManager, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		length, err := q.GetQueueLength(context.Background())
		if err == nil && length == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Queue did not drain within %v", timeout)
}

func TestScheduleAndExecute(t *testing.T) {
	config := schedulerTestConfig()
	stack := newSchedulerStack(t, config)
	executor := &fakeExecutor{jobType: JobTypeCrawl, jobs: stack.storage.JobStorage()}
	stack.pool.RegisterExecutor(executor)

	if err := stack.service.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { stack.service.Stop() })

	// 1. Schedule assigns an ID and persists the job queued
	job := &models.CrawlJob{SeedURL: "https://example.com", Priority: models.PriorityNormal}
	if err := stack.service.Schedule(context.Background(), job); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if job.JobID == "" {
		t.Fatal("Expected Schedule to assign a job ID")
	}
	if job.CreatedAt.IsZero() {
		t.Error("Expected Schedule to set created_at")
	}

	// 2. A worker picks the job up and runs it to completion
	done := waitForState(t, stack.storage.JobStorage(), job.JobID, models.JobStateCompleted, 3*time.Second)
	if done.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", done.Attempts)
	}
	if executor.count() != 1 {
		t.Errorf("Expected 1 execution, got %d", executor.count())
	}

	// 3. The consumed message leaves the queue
	waitForEmptyQueue(t, stack.queue, 2*time.Second)
}

func TestScheduleValidation(t *testing.T) {
	stack := newSchedulerStack(t, schedulerTestConfig())
	ctx := context.Background()

	// 1. Nil job and empty seed are bad input
	if err := stack.service.Schedule(ctx, nil); err == nil {
		t.Error("Expected error for nil job")
	} else if kind, _ := models.KindOf(err); kind != models.ErrBadInput {
		t.Errorf("Expected bad_input for nil job, got %v", kind)
	}
	if err := stack.service.Schedule(ctx, &models.CrawlJob{SeedURL: "   "}); err == nil {
		t.Error("Expected error for empty seed")
	} else if kind, _ := models.KindOf(err); kind != models.ErrBadInput {
		t.Errorf("Expected bad_input for empty seed, got %v", kind)
	}

	// 2. A completed job cannot be re-scheduled
	finished := &models.CrawlJob{
		JobID:   common.NewJobID(),
		SeedURL: "https://example.com",
		State:   models.JobStateCompleted,
	}
	if err := stack.service.Schedule(ctx, finished); err == nil {
		t.Error("Expected error for completed job")
	} else if kind, _ := models.KindOf(err); kind != models.ErrBadInput {
		t.Errorf("Expected bad_input for completed job, got %v", kind)
	}
}

func TestExecuteRetryAfterTimeout(t *testing.T) {
	config := schedulerTestConfig()
	config.TaskTimeout = "100ms"
	stack := newSchedulerStack(t, config)

	// 1. First execution blocks until the per-job timeout fires, second
	// succeeds
	executor := &fakeExecutor{jobType: JobTypeCrawl, jobs: stack.storage.JobStorage()}
	executor.run = func(ctx context.Context, job *models.CrawlJob) error {
		if executor.count() == 1 {
			<-ctx.Done()
			kind, _ := models.KindOf(ctx.Err())
			return models.WrapKind(kind, ctx.Err())
		}
		return nil
	}
	stack.pool.RegisterExecutor(executor)

	if err := stack.service.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { stack.service.Stop() })

	job := &models.CrawlJob{SeedURL: "https://example.com"}
	if err := stack.service.Schedule(context.Background(), job); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	// 2. The retry runs after its delay and completes the job
	done := waitForState(t, stack.storage.JobStorage(), job.JobID, models.JobStateCompleted, 5*time.Second)
	if done.Attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", done.Attempts)
	}
	if executor.count() != 2 {
		t.Errorf("Expected 2 executions, got %d", executor.count())
	}
}

func TestExecuteRetryExhaustion(t *testing.T) {
	config := schedulerTestConfig()
	config.TaskTimeout = "100ms"
	config.RetryAttempts = 0
	stack := newSchedulerStack(t, config)

	executor := &fakeExecutor{jobType: JobTypeCrawl, jobs: stack.storage.JobStorage()}
	executor.run = func(ctx context.Context, job *models.CrawlJob) error {
		<-ctx.Done()
		kind, _ := models.KindOf(ctx.Err())
		return models.WrapKind(kind, ctx.Err())
	}
	stack.pool.RegisterExecutor(executor)

	if err := stack.service.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { stack.service.Stop() })

	job := &models.CrawlJob{SeedURL: "https://example.com"}
	if err := stack.service.Schedule(context.Background(), job); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	// With no retry budget the timed-out job is finalized as failed
	done := waitForState(t, stack.storage.JobStorage(), job.JobID, models.JobStateFailed, 3*time.Second)
	if !strings.Contains(done.Error, "retry attempts exhausted") {
		t.Errorf("Expected exhaustion error, got %q", done.Error)
	}
	if executor.count() != 1 {
		t.Errorf("Expected 1 execution, got %d", executor.count())
	}
}

func TestCancelQueuedJob(t *testing.T) {
	config := schedulerTestConfig()
	stack := newSchedulerStack(t, config)
	executor := &fakeExecutor{jobType: JobTypeCrawl, jobs: stack.storage.JobStorage()}
	stack.pool.RegisterExecutor(executor)

	// 1. Schedule before any worker runs, then cancel
	job := &models.CrawlJob{SeedURL: "https://example.com"}
	if err := stack.service.Schedule(context.Background(), job); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if err := stack.service.Cancel(context.Background(), job.JobID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	stored, err := stack.storage.JobStorage().GetJob(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if stored.State != models.JobStateCancelled {
		t.Fatalf("Expected cancelled, got %s", stored.State)
	}

	// 2. Workers drop the stale message without executing
	if err := stack.service.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { stack.service.Stop() })

	waitForEmptyQueue(t, stack.queue, 2*time.Second)
	if executor.count() != 0 {
		t.Errorf("Cancelled job must not execute, ran %d times", executor.count())
	}
}

func TestCancelRunningJob(t *testing.T) {
	config := schedulerTestConfig()
	config.TaskTimeout = "5s"
	stack := newSchedulerStack(t, config)

	started := make(chan struct{}, 1)
	executor := &fakeExecutor{jobType: JobTypeCrawl, jobs: stack.storage.JobStorage()}
	executor.run = func(ctx context.Context, job *models.CrawlJob) error {
		started <- struct{}{}
		<-ctx.Done()
		kind, _ := models.KindOf(ctx.Err())
		return models.WrapKind(kind, ctx.Err())
	}
	stack.pool.RegisterExecutor(executor)

	if err := stack.service.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { stack.service.Stop() })

	job := &models.CrawlJob{SeedURL: "https://example.com"}
	if err := stack.service.Schedule(context.Background(), job); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	// 1. Wait for a worker to own the job
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("Job never started")
	}

	// 2. Cancel reaches the running job through its context
	if err := stack.service.Cancel(context.Background(), job.JobID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	waitForState(t, stack.storage.JobStorage(), job.JobID, models.JobStateCancelled, 3*time.Second)

	// 3. Cancelled jobs are not retried
	time.Sleep(100 * time.Millisecond)
	if executor.count() != 1 {
		t.Errorf("Expected 1 execution, got %d", executor.count())
	}
}

func TestCancelTerminalJobIsNoop(t *testing.T) {
	stack := newSchedulerStack(t, schedulerTestConfig())

	job := &models.CrawlJob{
		JobID:     common.NewJobID(),
		SeedURL:   "https://example.com",
		State:     models.JobStateCompleted,
		CreatedAt: time.Now().UTC(),
	}
	if err := stack.storage.JobStorage().SaveJob(context.Background(), job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}

	if err := stack.service.Cancel(context.Background(), job.JobID); err != nil {
		t.Fatalf("Cancel of terminal job should be a no-op, got %v", err)
	}

	stored, err := stack.storage.JobStorage().GetJob(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if stored.State != models.JobStateCompleted {
		t.Errorf("Expected completed untouched, got %s", stored.State)
	}
}

func TestUnknownJobTypeFails(t *testing.T) {
	config := schedulerTestConfig()
	stack := newSchedulerStack(t, config)
	executor := &fakeExecutor{jobType: JobTypeCrawl, jobs: stack.storage.JobStorage()}
	stack.pool.RegisterExecutor(executor)

	// 1. Persist a queued job and enqueue a message with an unhandled type
	job := &models.CrawlJob{
		JobID:     common.NewJobID(),
		SeedURL:   "https://example.com",
		State:     models.JobStateQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := stack.storage.JobStorage().SaveJob(context.Background(), job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}
	msg := &models.QueueMessage{JobID: job.JobID, Type: "telemetry", Priority: models.PriorityNormal}
	if err := stack.queue.Enqueue(context.Background(), msg); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := stack.service.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { stack.service.Stop() })

	// 2. The job fails instead of looping through the queue
	done := waitForState(t, stack.storage.JobStorage(), job.JobID, models.JobStateFailed, 3*time.Second)
	if !strings.Contains(done.Error, "no executor") {
		t.Errorf("Expected executor error, got %q", done.Error)
	}
	waitForEmptyQueue(t, stack.queue, 2*time.Second)
	if executor.count() != 0 {
		t.Errorf("Crawl executor must not run, ran %d times", executor.count())
	}
}

func TestStopFinalizesRunningJob(t *testing.T) {
	config := schedulerTestConfig()
	config.TaskTimeout = "10s"
	stack := newSchedulerStack(t, config)

	started := make(chan struct{}, 1)
	executor := &fakeExecutor{jobType: JobTypeCrawl, jobs: stack.storage.JobStorage()}
	executor.run = func(ctx context.Context, job *models.CrawlJob) error {
		started <- struct{}{}
		<-ctx.Done()
		kind, _ := models.KindOf(ctx.Err())
		return models.WrapKind(kind, ctx.Err())
	}
	stack.pool.RegisterExecutor(executor)

	if err := stack.service.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	job := &models.CrawlJob{SeedURL: "https://example.com"}
	if err := stack.service.Schedule(context.Background(), job); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("Job never started")
	}

	// Stop cancels the running job and waits for the worker to persist its
	// terminal state
	if err := stack.service.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	stored, err := stack.storage.JobStorage().GetJob(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if stored.State != models.JobStateCancelled {
		t.Errorf("Expected cancelled after stop, got %s", stored.State)
	}
}

func TestSweepStaleJobs(t *testing.T) {
	config := schedulerTestConfig() // 2s task timeout puts the cutoff at 4s
	stack := newSchedulerStack(t, config)
	ctx := context.Background()

	// 1. One running job with a dead heartbeat, one healthy
	stale := &models.CrawlJob{
		JobID:     common.NewJobID(),
		SeedURL:   "https://example.com/stale",
		State:     models.JobStateRunning,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
		Heartbeat: time.Now().UTC().Add(-time.Minute),
	}
	healthy := &models.CrawlJob{
		JobID:     common.NewJobID(),
		SeedURL:   "https://example.com/healthy",
		State:     models.JobStateRunning,
		CreatedAt: time.Now().UTC(),
		Heartbeat: time.Now().UTC(),
	}
	for _, job := range []*models.CrawlJob{stale, healthy} {
		if err := stack.storage.JobStorage().SaveJob(ctx, job); err != nil {
			t.Fatalf("SaveJob failed: %v", err)
		}
	}

	// 2. The sweep fails only the job whose heartbeat expired
	stack.service.sweepStaleJobs()

	got, err := stack.storage.JobStorage().GetJob(ctx, stale.JobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.State != models.JobStateFailed {
		t.Errorf("Expected stale job failed, got %s", got.State)
	}
	if !strings.Contains(got.Error, "heartbeat expired") {
		t.Errorf("Expected heartbeat error, got %q", got.Error)
	}

	got, err = stack.storage.JobStorage().GetJob(ctx, healthy.JobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.State != models.JobStateRunning {
		t.Errorf("Expected healthy job untouched, got %s", got.State)
	}
}

func TestSweepOldJobs(t *testing.T) {
	stack := newSchedulerStack(t, schedulerTestConfig())
	ctx := context.Background()

	// 1. One terminal job past retention, one recent, one old but running
	old := &models.CrawlJob{
		JobID:     common.NewJobID(),
		SeedURL:   "https://example.com/old",
		State:     models.JobStateCompleted,
		CreatedAt: time.Now().UTC().Add(-9 * 24 * time.Hour),
		EndedAt:   time.Now().UTC().Add(-8 * 24 * time.Hour),
	}
	recent := &models.CrawlJob{
		JobID:     common.NewJobID(),
		SeedURL:   "https://example.com/recent",
		State:     models.JobStateFailed,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
		EndedAt:   time.Now().UTC(),
	}
	running := &models.CrawlJob{
		JobID:     common.NewJobID(),
		SeedURL:   "https://example.com/running",
		State:     models.JobStateRunning,
		CreatedAt: time.Now().UTC().Add(-9 * 24 * time.Hour),
		Heartbeat: time.Now().UTC(),
	}
	for _, job := range []*models.CrawlJob{old, recent, running} {
		if err := stack.storage.JobStorage().SaveJob(ctx, job); err != nil {
			t.Fatalf("SaveJob failed: %v", err)
		}
	}

	// 2. Only the terminal job past the window is pruned
	stack.service.sweepOldJobs()

	if _, err := stack.storage.JobStorage().GetJob(ctx, old.JobID); err == nil {
		t.Error("Expected old terminal job to be pruned")
	}
	if _, err := stack.storage.JobStorage().GetJob(ctx, recent.JobID); err != nil {
		t.Errorf("Recent terminal job should survive: %v", err)
	}
	if _, err := stack.storage.JobStorage().GetJob(ctx, running.JobID); err != nil {
		t.Errorf("Running job should survive: %v", err)
	}
}
