package interfaces

import (
	"context"

	"github.com/ternarybob/percipio/internal/models"
)

// CrawlerService defines the interface for the site crawler that walks pages
// breadth-first from a seed, extracts learning bits and persists results.
type CrawlerService interface {
	// CrawlSite runs a crawl synchronously and returns the finished job with
	// its metrics. Used by the foreground crawl operation.
	CrawlSite(ctx context.Context, seedURL string, config *models.CrawlConfig) (*models.CrawlJob, error)

	// Execute runs a previously persisted job. Invoked by scheduler workers;
	// the context carries the per-job timeout.
	Execute(ctx context.Context, job *models.CrawlJob) error

	// GetJobStatus retrieves the current state of a crawl job
	GetJobStatus(ctx context.Context, jobID string) (*models.CrawlJob, error)

	// ListJobs returns crawl jobs with optional filtering
	ListJobs(ctx context.Context, opts *ListOptions) ([]*models.CrawlJob, error)

	// WaitForJob blocks until a job reaches a terminal state or the context
	// is cancelled
	WaitForJob(ctx context.Context, jobID string) (*models.CrawlJob, error)
}
