package scheduler

import (
	"context"

	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
)

// JobTypeCrawl routes queue messages to the crawl executor.
const JobTypeCrawl = "crawl"

// CrawlExecutor adapts the crawler service to the worker pool. The context
// passed to Execute carries the per-job timeout, so a job that outlives it
// ends as timed-out and becomes eligible for retry.
type CrawlExecutor struct {
	crawler interfaces.CrawlerService
}

// NewCrawlExecutor creates the executor for crawl jobs.
func NewCrawlExecutor(crawler interfaces.CrawlerService) interfaces.JobExecutor {
	return &CrawlExecutor{crawler: crawler}
}

// Execute runs the persisted crawl job through the crawler service.
func (e *CrawlExecutor) Execute(ctx context.Context, job *models.CrawlJob) error {
	return e.crawler.Execute(ctx, job)
}

// GetJobType returns the job type this executor handles.
func (e *CrawlExecutor) GetJobType() string {
	return JobTypeCrawl
}
