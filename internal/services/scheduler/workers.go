package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/percipio/internal/common"
	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
)

// maxIdleBackoff caps the exponential wait between polls of an empty queue.
const maxIdleBackoff = 5 * time.Second

// cancelRegistry tracks the cancel function of each job currently executing
// so cancellation requests reach the owning worker.
type cancelRegistry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func newCancelRegistry() *cancelRegistry {
	return &cancelRegistry{cancels: make(map[string]context.CancelFunc)}
}

func (r *cancelRegistry) add(jobID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[jobID] = cancel
}

func (r *cancelRegistry) remove(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, jobID)
}

// cancel invokes and removes the job's cancel function, reporting whether a
// worker currently owned the job.
func (r *cancelRegistry) cancel(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.cancels[jobID]
	if ok {
		cancel()
		delete(r.cancels, jobID)
	}
	return ok
}

// Pool runs queued jobs on a fixed set of workers. Each worker claims the
// next ready message, routes it to the executor registered for its type and
// enforces the per-job timeout. Idle workers back off exponentially between
// polls so an empty queue costs little.
type Pool struct {
	queue     interfaces.QueueManager
	jobs      interfaces.JobStorage
	config    *common.SchedulerConfig
	logger    arbor.ILogger
	executors map[string]interfaces.JobExecutor
	registry  *cancelRegistry

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewPool creates a worker pool over the queue. Executors must be registered
// before Start.
func NewPool(queue interfaces.QueueManager, jobs interfaces.JobStorage, config *common.SchedulerConfig, logger arbor.ILogger) *Pool {
	return &Pool{
		queue:     queue,
		jobs:      jobs,
		config:    config,
		logger:    logger,
		executors: make(map[string]interfaces.JobExecutor),
		registry:  newCancelRegistry(),
	}
}

// RegisterExecutor routes messages of the executor's job type to it.
func (p *Pool) RegisterExecutor(executor interfaces.JobExecutor) {
	p.executors[executor.GetJobType()] = executor
	p.logger.Debug().Str("type", executor.GetJobType()).Msg("Executor registered")
}

// Start launches the worker goroutines.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("worker pool already running")
	}

	workers := p.config.MaxConcurrentTasks
	if workers < 1 {
		workers = 3
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	for i := 0; i < workers; i++ {
		workerID := i + 1
		p.wg.Add(1)
		common.SafeGo(p.logger, fmt.Sprintf("scheduler-worker-%d", workerID), func() {
			defer p.wg.Done()
			p.workerLoop(workerID)
		})
	}
	p.running = true

	p.logger.Info().Int("workers", workers).Msg("Worker pool started")
	return nil
}

// Stop cancels all workers and waits for them to drain. Jobs executing at
// stop time observe the cancellation and persist their terminal state before
// the worker exits.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	p.logger.Info().Msg("Worker pool stopped")
	return nil
}

// CancelJob cancels the context of a running job, reporting whether a worker
// currently owns it.
func (p *Pool) CancelJob(jobID string) bool {
	return p.registry.cancel(jobID)
}

func (p *Pool) workerLoop(workerID int) {
	idle := p.config.PollIntervalDuration()
	backoff := idle

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		if p.processNext(workerID) {
			backoff = idle
			continue
		}

		select {
		case <-p.ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxIdleBackoff {
			backoff = maxIdleBackoff
		}
	}
}

// processNext claims and runs one message. Returns false when the queue had
// nothing ready, which triggers the caller's idle backoff.
func (p *Pool) processNext(workerID int) bool {
	msg, deleteFn, err := p.queue.Receive(p.ctx)
	if err != nil {
		if !errors.Is(err, models.ErrNoMessage) && p.ctx.Err() == nil {
			p.logger.Warn().Err(err).Int("worker_id", workerID).Msg("Queue receive failed")
		}
		return false
	}

	// Every claim is consumed exactly once. Retries re-enqueue a fresh
	// message, so the claimed one must never redeliver.
	defer func() {
		if err := deleteFn(); err != nil {
			p.logger.Error().Err(err).Str("job_id", msg.JobID).Msg("Failed to delete queue message")
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", stackTrace()).
				Int("worker_id", workerID).
				Str("job_id", msg.JobID).
				Msg("Recovered from panic while executing job")
			p.failJob(msg.JobID, fmt.Sprintf("job panicked: %v", r))
		}
	}()

	executor, ok := p.executors[msg.Type]
	if !ok {
		p.logger.Warn().Str("type", msg.Type).Str("job_id", msg.JobID).Msg("No executor registered for job type")
		p.failJob(msg.JobID, fmt.Sprintf("no executor registered for job type %q", msg.Type))
		return true
	}

	job, err := p.jobs.GetJob(p.ctx, msg.JobID)
	if err != nil {
		p.logger.Warn().Err(err).Str("job_id", msg.JobID).Msg("Dropping message for unknown job")
		return true
	}
	if job.State.Terminal() {
		// Cancelled or resolved while the message sat in the queue
		p.logger.Debug().Str("job_id", job.JobID).Str("state", string(job.State)).Msg("Dropping message for finished job")
		return true
	}

	p.logger.Info().
		Str("job_id", job.JobID).
		Str("type", msg.Type).
		Int("worker_id", workerID).
		Int("attempt", job.Attempts+1).
		Msg("Job dispatched")
	start := time.Now()

	jobCtx, cancel := context.WithTimeout(p.ctx, p.config.TaskTimeoutDuration())
	p.registry.add(job.JobID, cancel)
	execErr := executor.Execute(jobCtx, job)
	p.registry.remove(job.JobID)
	cancel()

	if execErr == nil {
		p.logger.Info().
			Str("job_id", job.JobID).
			Int("worker_id", workerID).
			Dur("duration", time.Since(start)).
			Msg("Job finished")
		return true
	}

	kind, _ := models.KindOf(execErr)
	if kind == models.ErrCancelled {
		p.logger.Info().
			Str("job_id", job.JobID).
			Int("worker_id", workerID).
			Dur("duration", time.Since(start)).
			Msg("Job cancelled")
		return true
	}
	if models.IsRetryableKind(kind) && job.CanTransition(models.JobStateQueued) && job.Attempts <= p.config.RetryAttempts {
		p.requeue(job, msg.Type, kind)
		return true
	}

	if !job.State.Terminal() {
		// Retryable kind with the budget spent: the job is parked in
		// timed-out and has to be finalized here.
		p.failJob(job.JobID, fmt.Sprintf("retry attempts exhausted: %v", execErr))
	}
	p.logger.Warn().
		Err(execErr).
		Str("job_id", job.JobID).
		Str("kind", string(kind)).
		Int("worker_id", workerID).
		Dur("duration", time.Since(start)).
		Msg("Job failed")
	return true
}

// requeue returns a retryable job to its priority lane after a short delay.
func (p *Pool) requeue(job *models.CrawlJob, jobType string, kind models.ErrorKind) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job.State = models.JobStateQueued
	if err := p.jobs.SaveJob(ctx, job); err != nil {
		p.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to re-queue job")
		return
	}

	delay := retryDelay(job.Attempts)
	retry := &models.QueueMessage{JobID: job.JobID, Type: jobType, Priority: job.Priority}
	if err := p.queue.EnqueueWithDelay(ctx, retry, delay); err != nil {
		p.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to enqueue retry")
		return
	}

	p.logger.Info().
		Str("job_id", job.JobID).
		Str("kind", string(kind)).
		Int("attempt", job.Attempts).
		Dur("delay", delay).
		Msg("Job re-queued for retry")
}

// failJob force-fails a job that cannot make progress any other way.
// Terminal jobs are left untouched. Uses a fresh context so the update
// survives pool shutdown.
func (p *Pool) failJob(jobID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, err := p.jobs.GetJob(ctx, jobID)
	if err != nil {
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to load job for failure update")
		return
	}
	if job.State.Terminal() {
		return
	}
	job.State = models.JobStateFailed
	job.EndedAt = time.Now().UTC()
	job.Error = reason
	if err := p.jobs.SaveJob(ctx, job); err != nil {
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to persist job failure")
	}
}

// retryDelay spaces re-executions out without stranding the job for long.
func retryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := time.Duration(attempts) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func stackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
