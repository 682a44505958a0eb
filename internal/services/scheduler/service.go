// Package scheduler owns background crawl jobs: admission to the persistent
// priority queue, dispatch through the worker pool, cancellation, retries
// after timeouts or transient failures, and periodic maintenance.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/percipio/internal/common"
	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
)

const (
	// Terminal job records older than this are pruned by the daily sweep.
	jobRetention        = 7 * 24 * time.Hour
	retentionSweepLimit = 500
)

// Service implements SchedulerService on top of the queue and worker pool.
type Service struct {
	queue   interfaces.QueueManager
	pool    interfaces.WorkerPool
	storage interfaces.StorageManager
	jobs    interfaces.JobStorage
	config  *common.SchedulerConfig
	logger  arbor.ILogger
	cron    *cron.Cron
	running bool
}

// NewService creates the scheduler. The pool must have its executors
// registered before Start.
func NewService(queue interfaces.QueueManager, pool interfaces.WorkerPool, storage interfaces.StorageManager, config *common.SchedulerConfig, logger arbor.ILogger) *Service {
	return &Service{
		queue:   queue,
		pool:    pool,
		storage: storage,
		jobs:    storage.JobStorage(),
		config:  config,
		logger:  logger,
		cron:    cron.New(),
	}
}

// Start brings up the queue, the worker pool and the maintenance schedules.
func (s *Service) Start() error {
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if err := s.queue.Start(); err != nil {
		return fmt.Errorf("failed to start queue: %w", err)
	}
	if err := s.pool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	if _, err := s.cron.AddFunc("@every 5m", s.wrapTask("stale-job-sweep", s.sweepStaleJobs)); err != nil {
		return fmt.Errorf("failed to schedule stale job sweep: %w", err)
	}
	if _, err := s.cron.AddFunc("@hourly", s.wrapTask("value-log-gc", s.runValueLogGC)); err != nil {
		return fmt.Errorf("failed to schedule value log GC: %w", err)
	}
	if _, err := s.cron.AddFunc("@daily", s.wrapTask("job-retention-sweep", s.sweepOldJobs)); err != nil {
		return fmt.Errorf("failed to schedule job retention sweep: %w", err)
	}
	s.cron.Start()
	s.running = true

	// Jobs left running by a crashed process surface on the first sweep
	common.SafeGo(s.logger, "initial-stale-job-sweep", s.sweepStaleJobs)

	s.logger.Info().Msg("Scheduler started")
	return nil
}

// Stop halts maintenance, drains the workers and stops the queue. Jobs
// executing at stop time persist a terminal state before their worker exits.
func (s *Service) Stop() error {
	if !s.running {
		return nil
	}
	s.running = false

	s.cron.Stop()
	if err := s.pool.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("Worker pool stop failed")
	}
	if err := s.queue.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("Queue stop failed")
	}

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// Schedule persists the job in queued state and admits it to its priority
// lane. A job with no ID gets one assigned.
func (s *Service) Schedule(ctx context.Context, job *models.CrawlJob) error {
	if err := ctx.Err(); err != nil {
		kind, _ := models.KindOf(err)
		return models.WrapKind(kind, err)
	}
	if job == nil {
		return models.Kindf(models.ErrBadInput, "job is required")
	}
	if err := models.ValidateSeed(job.SeedURL); err != nil {
		return err
	}
	if job.State != "" && job.State != models.JobStateQueued && !job.CanTransition(models.JobStateQueued) {
		return models.Kindf(models.ErrBadInput, "job %s in state %s cannot be scheduled", job.JobID, job.State)
	}

	if job.JobID == "" {
		job.JobID = common.NewJobID()
	}
	if job.Priority < models.PriorityCritical || job.Priority > models.PriorityLow {
		job.Priority = models.PriorityNormal
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	// MaxPages is validated >= 1 everywhere a config is supplied, so zero
	// means the caller wants defaults
	if job.Config.MaxPages == 0 {
		job.Config = models.DefaultCrawlConfig()
	}
	job.State = models.JobStateQueued

	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return err
	}

	msg := &models.QueueMessage{JobID: job.JobID, Type: JobTypeCrawl, Priority: job.Priority}
	if err := s.queue.Enqueue(ctx, msg); err != nil {
		return err
	}

	s.logger.Info().
		Str("job_id", job.JobID).
		Str("seed_url", job.SeedURL).
		Str("priority", job.Priority.String()).
		Msg("Job scheduled")
	return nil
}

// Cancel stops a queued or running job. A running job's context is
// cancelled and its worker persists the cancelled state; a queued job is
// flipped directly and its message dropped on receipt. Terminal jobs are
// left as-is.
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	if jobID == "" {
		return models.Kindf(models.ErrBadInput, "job ID is required")
	}

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.State.Terminal() {
		return nil
	}

	if job.State == models.JobStateRunning && s.pool.CancelJob(jobID) {
		s.logger.Info().Str("job_id", jobID).Msg("Cancellation signalled to running job")
		return nil
	}

	// Queued or timed-out, or a running leftover with no live worker
	if !job.CanTransition(models.JobStateCancelled) {
		return models.Kindf(models.ErrBadInput, "job %s in state %s cannot be cancelled", jobID, job.State)
	}
	job.State = models.JobStateCancelled
	job.EndedAt = time.Now().UTC()
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return err
	}

	s.logger.Info().Str("job_id", jobID).Msg("Job cancelled")
	return nil
}

// QueueLength returns the number of pending messages across all lanes.
func (s *Service) QueueLength(ctx context.Context) (int, error) {
	return s.queue.GetQueueLength(ctx)
}

// QueueStats breaks the backlog down by readiness and priority lane.
func (s *Service) QueueStats(ctx context.Context) (map[string]interface{}, error) {
	return s.queue.GetQueueStats(ctx)
}

// RegisterHourly adds a maintenance task to the hourly schedule. Used for
// concerns owned by other services, like search quota window resets.
func (s *Service) RegisterHourly(name string, fn func()) error {
	if _, err := s.cron.AddFunc("@hourly", s.wrapTask(name, fn)); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	return nil
}

// wrapTask isolates maintenance tasks so a panic in one cannot take down
// the cron runner.
func (s *Service) wrapTask(name string, fn func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().
					Str("panic", fmt.Sprintf("%v", r)).
					Str("task", name).
					Msg("Recovered from panic in maintenance task")
			}
		}()
		start := time.Now()
		fn()
		s.logger.Debug().Str("task", name).Dur("duration", time.Since(start)).Msg("Maintenance task finished")
	}
}

// sweepStaleJobs fails running jobs whose heartbeat stopped. A job past
// twice the task timeout cannot still be owned by a worker; the per-job
// timeout fires at half that.
func (s *Service) sweepStaleJobs() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-2 * s.config.TaskTimeoutDuration())
	stale, err := s.jobs.GetStaleRunningJobs(ctx, cutoff)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Stale job sweep failed")
		return
	}

	for _, job := range stale {
		job.State = models.JobStateFailed
		job.EndedAt = time.Now().UTC()
		job.Error = "stale running job: heartbeat expired"
		if err := s.jobs.SaveJob(ctx, job); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to fail stale job")
			continue
		}
		s.logger.Warn().
			Str("job_id", job.JobID).
			Str("heartbeat", job.Heartbeat.Format(time.RFC3339)).
			Msg("Stale running job marked failed")
	}
}

// sweepOldJobs prunes terminal job records older than the retention window.
// The pages and bits a job produced are corpus data and stay; only the job
// bookkeeping ages out.
func (s *Service) sweepOldJobs() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-jobRetention)
	for _, state := range []models.JobState{models.JobStateCompleted, models.JobStateFailed, models.JobStateCancelled} {
		jobs, err := s.jobs.ListJobs(ctx, &interfaces.ListOptions{State: string(state), Limit: retentionSweepLimit})
		if err != nil {
			s.logger.Warn().Err(err).Msg("Job retention sweep failed")
			return
		}
		for _, job := range jobs {
			if job.EndedAt.IsZero() || job.EndedAt.After(cutoff) {
				continue
			}
			if err := s.jobs.DeleteJob(ctx, job.JobID); err != nil {
				s.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to prune old job")
				continue
			}
			s.logger.Debug().Str("job_id", job.JobID).Str("state", string(state)).Msg("Old job record pruned")
		}
	}
}

// runValueLogGC reclaims badger value-log space freed by consumed queue
// messages and reindexed bits.
func (s *Service) runValueLogGC() {
	gc, ok := s.storage.(interface{ RunGC() error })
	if !ok {
		return
	}
	if err := gc.RunGC(); err != nil {
		s.logger.Warn().Err(err).Msg("Value log GC failed")
	}
}
