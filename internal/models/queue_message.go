package models

import (
	"encoding/json"
	"errors"
)

// ErrNoMessage is returned when the queue is empty
var ErrNoMessage = errors.New("no messages in queue")

// QueueMessage is the structure stored in the scheduler queue.
// Keep it simple - just enough to route the job.
type QueueMessage struct {
	JobID    string          `json:"job_id"`   // References crawl_jobs.job_id
	Type     string          `json:"type"`     // Job type for executor routing
	Priority JobPriority     `json:"priority"` // Queue lane, lower dispatches first
	Payload  json.RawMessage `json:"payload"`  // Job-specific data (passed through)
}
