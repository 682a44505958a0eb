package models

import "time"

// ProviderResult is one raw hit returned by a search provider before
// merging. Rank is 1-based within that provider's response.
type ProviderResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Rank    int    `json:"rank"`
}

// SearchResult is one merged, scored hit returned to callers.
type SearchResult struct {
	URL            string  `json:"url"` // canonical form
	Title          string  `json:"title"`
	Snippet        string  `json:"snippet"`
	Rank           int     `json:"rank"` // best rank across providers
	Provider       string  `json:"provider"`
	RelevanceScore float64 `json:"relevance_score"`
	ContentType    string  `json:"content_type,omitempty"`
}

// SearchResponse carries the merged result list plus dispatch diagnostics.
// Reason is populated when the dispatcher degraded (for example
// "no providers") and the result list may be empty without being an error.
type SearchResponse struct {
	Query     string         `json:"query"`
	Results   []SearchResult `json:"results"`
	Providers []string       `json:"providers"` // providers that answered
	Reason    string         `json:"reason,omitempty"`
	Elapsed   time.Duration  `json:"elapsed"`
}

// SearchRecord is the persisted log of one dispatched query result, used
// for dedupe statistics and quota review.
type SearchRecord struct {
	ID             uint64    `json:"id" badgerhold:"key"`
	Query          string    `json:"query"`
	Provider       string    `json:"provider" badgerhold:"index"`
	Timestamp      time.Time `json:"timestamp" badgerhold:"index"`
	ResultURL      string    `json:"result_url"`
	Title          string    `json:"title"`
	Snippet        string    `json:"snippet,omitempty"`
	RelevanceScore float64   `json:"relevance_score"`
	ContentType    string    `json:"content_type,omitempty"`
}
