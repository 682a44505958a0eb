package search

import (
	"sync"
	"time"
)

const (
	// Quota windows are hourly; priming after a restart scans at most
	// this many log rows.
	quotaWindow    = time.Hour
	quotaPrimeScan = 1000
)

// quotaTracker counts queries per provider inside the current window.
// The scheduler resets the window hourly; a 429 from the provider burns
// the remainder immediately.
type quotaTracker struct {
	mu     sync.Mutex
	limit  int
	counts map[string]int
}

func newQuotaTracker(limit int) *quotaTracker {
	return &quotaTracker{
		limit:  limit,
		counts: make(map[string]int),
	}
}

// allow consumes one query for the provider and reports whether it was
// within budget. A limit of zero or below disables tracking.
func (q *quotaTracker) allow(provider string) bool {
	if q.limit <= 0 {
		return true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.counts[provider] >= q.limit {
		return false
	}
	q.counts[provider]++
	return true
}

// seed records queries already spent in this window, capped at the limit.
// Counts only move up so a late seed cannot refund live usage.
func (q *quotaTracker) seed(provider string, used int) {
	if q.limit <= 0 || used <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if used > q.limit {
		used = q.limit
	}
	if used > q.counts[provider] {
		q.counts[provider] = used
	}
}

// exhaust burns the provider's remaining budget for this window.
func (q *quotaTracker) exhaust(provider string) {
	if q.limit <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.counts[provider] = q.limit
}

// remaining reports the unused budget for the provider.
func (q *quotaTracker) remaining(provider string) int {
	if q.limit <= 0 {
		return -1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limit - q.counts[provider]
}

// reset opens a fresh window for all providers.
func (q *quotaTracker) reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.counts = make(map[string]int)
}
