package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.CrawlJob) error {
	if job.JobID == "" {
		return models.Kindf(models.ErrBadInput, "job ID is required")
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	return s.db.WithRetry(ctx, "save job", func() error {
		if err := s.db.Store().Upsert(job.JobID, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
		return nil
	})
}

func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.CrawlJob, error) {
	var job models.CrawlJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job not found: %s", jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.ListOptions) ([]*models.CrawlJob, error) {
	query := badgerhold.Where("JobID").Ne("")

	if opts != nil {
		if opts.State != "" {
			query = query.And("State").Eq(models.JobState(opts.State))
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
		if opts.OrderDir == "asc" {
			query = query.SortBy("CreatedAt")
		} else {
			query = query.SortBy("CreatedAt").Reverse()
		}
	} else {
		query = query.SortBy("CreatedAt").Reverse()
	}

	var jobs []models.CrawlJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.CrawlJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) DeleteJob(ctx context.Context, jobID string) error {
	if err := s.db.Store().Delete(jobID, &models.CrawlJob{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func (s *JobStorage) CountJobsByState(ctx context.Context) (map[string]int, error) {
	var jobs []models.CrawlJob
	if err := s.db.Store().Find(&jobs, nil); err != nil {
		return nil, fmt.Errorf("failed to load jobs for state counts: %w", err)
	}

	counts := make(map[string]int)
	for _, job := range jobs {
		counts[string(job.State)]++
	}
	return counts, nil
}

// GetStaleRunningJobs returns running jobs whose heartbeat predates the
// cutoff. Jobs that never heartbeat fall back to their start time.
func (s *JobStorage) GetStaleRunningJobs(ctx context.Context, cutoff time.Time) ([]*models.CrawlJob, error) {
	var jobs []models.CrawlJob
	if err := s.db.Store().Find(&jobs, badgerhold.Where("State").Eq(models.JobStateRunning)); err != nil {
		return nil, fmt.Errorf("failed to load running jobs: %w", err)
	}

	var stale []*models.CrawlJob
	for i := range jobs {
		last := jobs[i].Heartbeat
		if last.IsZero() {
			last = jobs[i].StartedAt
		}
		if !last.IsZero() && last.Before(cutoff) {
			stale = append(stale, &jobs[i])
		}
	}
	return stale, nil
}
