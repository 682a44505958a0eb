package interfaces

import (
	"context"
	"time"
)

// FetchResult holds a successfully fetched page body and metadata
type FetchResult struct {
	// URL is the canonical form of the final URL after redirects
	URL         string
	StatusCode  int
	Body        []byte
	ContentType string
	FetchedAt   time.Time
	Elapsed     time.Duration
}

// Fetcher retrieves pages over HTTP with politeness, robots.txt checks,
// redirect limits and transient-failure retries built in. Fetch blocks
// until the per-host delay allows the request to proceed.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*FetchResult, error)

	// Allowed reports whether robots.txt permits fetching the URL.
	// Unreachable robots.txt fails open.
	Allowed(ctx context.Context, rawURL string) bool

	// RaiseHostDelay lifts the politeness delay for the URL's host when
	// delay exceeds the current one. Lower values are ignored, so a job
	// cannot undercut a robots crawl-delay directive.
	RaiseHostDelay(rawURL string, delay time.Duration)

	// Close releases pooled connections
	Close()
}
