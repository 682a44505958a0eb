// Package crawler walks sites breadth-first from a seed URL, runs fetched
// pages through extraction, categorization and scoring, and persists pages
// and kept learning bits. One Run call executes one job; scheduling,
// retries and cancellation contexts belong to the scheduler.
package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/percipio/internal/common"
	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
)

// jobPollInterval paces WaitForJob storage reads.
const jobPollInterval = 100 * time.Millisecond

// Service wires the page pipeline together. All persisted state lives in
// storage; the only working state is per-run (frontier, host guard).
type Service struct {
	fetcher     interfaces.Fetcher
	extractor   interfaces.Extractor
	categorizer interfaces.Categorizer
	scorer      interfaces.Scorer
	pages       interfaces.PageStorage
	bits        interfaces.BitStorage
	refs        interfaces.CrossRefStorage
	jobs        interfaces.JobStorage
	config      *common.CrawlerConfig
	logger      arbor.ILogger
}

// NewService creates a crawler over the given pipeline stages and storage.
func NewService(
	fetcher interfaces.Fetcher,
	extractor interfaces.Extractor,
	categorizer interfaces.Categorizer,
	scorer interfaces.Scorer,
	storage interfaces.StorageManager,
	config *common.CrawlerConfig,
	logger arbor.ILogger,
) interfaces.CrawlerService {
	return &Service{
		fetcher:     fetcher,
		extractor:   extractor,
		categorizer: categorizer,
		scorer:      scorer,
		pages:       storage.PageStorage(),
		bits:        storage.BitStorage(),
		refs:        storage.CrossRefStorage(),
		jobs:        storage.JobStorage(),
		config:      config,
		logger:      logger,
	}
}

// CrawlSite validates the seed, persists a job and runs it to completion in
// the calling goroutine. The finished job is returned alongside the run
// error so callers always see partial metrics.
func (s *Service) CrawlSite(ctx context.Context, seedURL string, config *models.CrawlConfig) (*models.CrawlJob, error) {
	if err := models.ValidateSeed(seedURL); err != nil {
		return nil, err
	}

	crawlConfig := models.DefaultCrawlConfig()
	if config != nil {
		crawlConfig = *config
	}

	job := &models.CrawlJob{
		JobID:     common.NewJobID(),
		SeedURL:   seedURL,
		Config:    crawlConfig,
		State:     models.JobStateQueued,
		Priority:  models.PriorityNormal,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist crawl job: %w", err)
	}

	if err := s.Execute(ctx, job); err != nil {
		return job, err
	}
	return job, nil
}

// Execute runs a persisted job through the page pipeline and records its
// terminal state. Scheduler workers call this with the per-job timeout on
// the context; a timed-out job is left in timed-out state so the scheduler
// can decide on a retry.
func (s *Service) Execute(ctx context.Context, job *models.CrawlJob) error {
	if job == nil || job.JobID == "" {
		return models.Kindf(models.ErrBadInput, "job is required")
	}
	if job.State == models.JobStateCancelled {
		s.logger.Debug().Str("job_id", job.JobID).Msg("Skipping cancelled job")
		return nil
	}
	if !job.CanTransition(models.JobStateRunning) {
		return models.Kindf(models.ErrBadInput, "job %s cannot run from state %s", job.JobID, job.State)
	}

	job.State = models.JobStateRunning
	job.StartedAt = time.Now().UTC()
	job.Heartbeat = job.StartedAt
	job.Attempts++
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.JobID).
		Str("seed_url", job.SeedURL).
		Int("max_pages", job.Config.MaxPages).
		Int("max_depth", job.Config.MaxDepth).
		Int("attempt", job.Attempts).
		Msg("Crawl started")

	runErr := s.run(ctx, job)
	s.finalize(job, runErr)

	// Terminal state persistence must survive a cancelled run context.
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.jobs.SaveJob(saveCtx, job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to persist finished job")
	}

	s.logger.Info().
		Str("job_id", job.JobID).
		Str("state", string(job.State)).
		Int("pages_fetched", job.Metrics.PagesFetched).
		Int("bits_kept", job.Metrics.BitsKept).
		Dur("duration", job.Metrics.Duration).
		Msg("Crawl finished")

	return runErr
}

// finalize maps the run outcome onto the job state machine and stamps the
// end time.
func (s *Service) finalize(job *models.CrawlJob, runErr error) {
	job.EndedAt = time.Now().UTC()

	if runErr == nil {
		job.State = models.JobStateCompleted
		return
	}

	job.Error = runErr.Error()
	kind, _ := models.KindOf(runErr)
	switch kind {
	case models.ErrCancelled:
		job.State = models.JobStateCancelled
	case models.ErrTimedOut:
		job.State = models.JobStateTimedOut
	default:
		job.State = models.JobStateFailed
	}
}

// GetJobStatus retrieves the persisted state of a job.
func (s *Service) GetJobStatus(ctx context.Context, jobID string) (*models.CrawlJob, error) {
	return s.jobs.GetJob(ctx, jobID)
}

// ListJobs returns crawl jobs, newest first by default.
func (s *Service) ListJobs(ctx context.Context, opts *interfaces.ListOptions) ([]*models.CrawlJob, error) {
	return s.jobs.ListJobs(ctx, opts)
}

// WaitForJob polls until the job reaches a terminal state. Timed-out jobs
// keep the wait alive while the scheduler may still retry them.
func (s *Service) WaitForJob(ctx context.Context, jobID string) (*models.CrawlJob, error) {
	ticker := time.NewTicker(jobPollInterval)
	defer ticker.Stop()

	for {
		job, err := s.jobs.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.State.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			kind, _ := models.KindOf(ctx.Err())
			return job, models.WrapKind(kind, ctx.Err())
		case <-ticker.C:
		}
	}
}
