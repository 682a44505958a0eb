package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/percipio/internal/models"
)

// QueueManager manages the persistent priority queue backing the scheduler.
// Receive returns the claimed message plus a delete function the worker calls
// once the message is finished; unclaimed messages become visible again after
// the visibility timeout.
type QueueManager interface {
	Start() error
	Stop() error
	Enqueue(ctx context.Context, msg *models.QueueMessage) error
	EnqueueWithDelay(ctx context.Context, msg *models.QueueMessage, delay time.Duration) error
	Receive(ctx context.Context) (*models.QueueMessage, func() error, error)
	GetQueueLength(ctx context.Context) (int, error)
	GetQueueStats(ctx context.Context) (map[string]interface{}, error)
}

// JobExecutor defines the interface that all job executors must implement.
// The worker pool uses this interface to execute jobs in a type-agnostic manner.
type JobExecutor interface {
	// Execute executes a job. The context expires at the per-job timeout.
	Execute(ctx context.Context, job *models.CrawlJob) error

	// GetJobType returns the job type this executor handles
	GetJobType() string
}

// WorkerPool manages concurrent job processing
type WorkerPool interface {
	RegisterExecutor(executor JobExecutor)
	Start() error
	Stop() error

	// CancelJob cancels the context of a running job, reporting whether a
	// worker currently owns it
	CancelJob(jobID string) bool
}

// SchedulerService owns background job lifecycle: admission to the priority
// queue, dispatch through the worker pool, cancellation, retries after
// timeouts or transient failures, and periodic maintenance.
type SchedulerService interface {
	Start() error
	Stop() error

	// Schedule persists the job in queued state and admits it to its
	// priority lane
	Schedule(ctx context.Context, job *models.CrawlJob) error

	// Cancel stops a queued or running job. Completed jobs are left as-is.
	Cancel(ctx context.Context, jobID string) error

	QueueLength(ctx context.Context) (int, error)
	QueueStats(ctx context.Context) (map[string]interface{}, error)
}
