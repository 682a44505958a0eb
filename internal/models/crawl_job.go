package models

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

// JobState represents the lifecycle state of a crawl job.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
	JobStateTimedOut  JobState = "timed-out"
)

// Terminal reports whether a job in this state can never transition again.
// A timed-out job is not terminal while retry attempts remain.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateCancelled || s == JobStateFailed
}

// JobPriority orders scheduler dispatch. Lower values dispatch first.
type JobPriority int

const (
	PriorityCritical JobPriority = 1
	PriorityHigh     JobPriority = 2
	PriorityNormal   JobPriority = 3
	PriorityLow      JobPriority = 4
)

// ParsePriority maps the external priority name onto its dispatch value.
// Unknown names fall back to normal.
func ParsePriority(name string) JobPriority {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "critical":
		return PriorityCritical
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

func (p JobPriority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// CrawlConfig defines crawl behavior for one job. The configuration is
// snapshot at job creation time so re-runs are self-contained.
type CrawlConfig struct {
	MaxPages      int      `json:"max_pages" validate:"gte=1"`
	MaxDepth      int      `json:"max_depth" validate:"gte=0"`
	FollowLinks   bool     `json:"follow_links"`
	CrawlDelay    float64  `json:"crawl_delay" validate:"gte=0"` // seconds between fetches of one host
	RespectRobots bool     `json:"respect_robots"`
	SameHostOnly  bool     `json:"same_host_only"`
	AllowHosts    []string `json:"allow_hosts,omitempty"`
	DenyHosts     []string `json:"deny_hosts,omitempty"`
}

// DefaultCrawlConfig returns the crawl settings used when a caller supplies
// none.
func DefaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		MaxPages:      25,
		MaxDepth:      2,
		FollowLinks:   true,
		CrawlDelay:    1.0,
		RespectRobots: true,
		SameHostOnly:  false,
	}
}

// DelayDuration converts the crawl delay from seconds to a duration.
func (c CrawlConfig) DelayDuration() time.Duration {
	return time.Duration(c.CrawlDelay * float64(time.Second))
}

// JobMetrics aggregates the measurable outcomes of one crawl job. Error
// counts are keyed by ErrorKind and populated even on success.
type JobMetrics struct {
	PagesFetched    int            `json:"pages_fetched"`
	PagesSkipped    int            `json:"pages_skipped"`
	BitsEmitted     int            `json:"bits_emitted"`
	BitsKept        int            `json:"bits_kept"`
	LinksDiscovered int            `json:"links_discovered"`
	BytesDownloaded int64          `json:"bytes_downloaded"`
	ErrorCounts     map[string]int `json:"error_counts,omitempty"`
	Duration        time.Duration  `json:"duration"`
}

// CountError increments the per-kind error counter.
func (m *JobMetrics) CountError(kind ErrorKind) {
	if m.ErrorCounts == nil {
		m.ErrorCounts = make(map[string]int)
	}
	m.ErrorCounts[string(kind)]++
}

// CrawlJob is a scheduled crawl with its configuration snapshot, state,
// and accumulated metrics.
type CrawlJob struct {
	JobID     string      `json:"job_id" badgerhold:"unique"`
	SeedURL   string      `json:"seed_url"`
	Config    CrawlConfig `json:"config"`
	State     JobState    `json:"state" badgerhold:"index"`
	Priority  JobPriority `json:"priority" badgerhold:"index"`
	CreatedAt time.Time   `json:"created_at"`
	StartedAt time.Time   `json:"started_at,omitempty"`
	EndedAt   time.Time   `json:"ended_at,omitempty"`
	// Heartbeat is bumped as pages complete so stale running jobs can be
	// detected after a crash.
	Heartbeat time.Time  `json:"heartbeat,omitempty"`
	Attempts  int        `json:"attempts"`
	Error     string     `json:"error,omitempty"`
	Metrics   JobMetrics `json:"metrics"`
}

// ValidateSeed rejects empty or non-HTTP seed URLs before a job is created.
func ValidateSeed(seed string) error {
	trimmed := strings.TrimSpace(seed)
	if trimmed == "" {
		return Kindf(ErrBadInput, "seed URL is empty")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return Kindf(ErrBadInput, "seed URL %q does not parse: %v", trimmed, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Kindf(ErrBadInput, "seed URL %q is not http(s)", trimmed)
	}
	if u.Host == "" {
		return Kindf(ErrBadInput, "seed URL %q has no host", trimmed)
	}
	return nil
}

// CanTransition validates a state-machine edge. Queued jobs run or cancel;
// running jobs complete, fail, time out, or cancel; timed-out jobs re-queue
// while attempts remain.
func (j *CrawlJob) CanTransition(to JobState) bool {
	switch j.State {
	case JobStateQueued:
		return to == JobStateRunning || to == JobStateCancelled
	case JobStateRunning:
		return to == JobStateCompleted || to == JobStateFailed ||
			to == JobStateTimedOut || to == JobStateCancelled
	case JobStateTimedOut:
		return to == JobStateQueued || to == JobStateFailed || to == JobStateCancelled
	default:
		return false
	}
}

// ToJSON serializes the job for queue payloads and storage.
func (j *CrawlJob) ToJSON() (string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromJSONCrawlJob deserializes a job from its JSON form.
func FromJSONCrawlJob(data string) (*CrawlJob, error) {
	var job CrawlJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, err
	}
	return &job, nil
}
