package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// PageStatus represents the outcome of fetching one URL.
type PageStatus string

const (
	PageStatusFetched       PageStatus = "fetched"
	PageStatusParseFailed   PageStatus = "parse-failed"
	PageStatusSkippedRobots PageStatus = "skipped-robots"
	PageStatusSkippedDedup  PageStatus = "skipped-dedup"
	PageStatusSkipped       PageStatus = "skipped"
)

// Page represents a single fetched URL. Pages are immutable after creation
// except for LastSeen and ReferenceCount.
type Page struct {
	PageID         string     `json:"page_id" badgerhold:"unique"` // SHA-256 of the canonical URL
	URL            string     `json:"url"`
	Domain         string     `json:"domain" badgerhold:"index"`
	Depth          int        `json:"depth"`
	FetchedAt      time.Time  `json:"fetched_at"`
	LastSeen       time.Time  `json:"last_seen"`
	ContentHash    string     `json:"content_hash" badgerhold:"index"` // SHA-256 of the response body
	Status         PageStatus `json:"status" badgerhold:"index"`
	Title          string     `json:"title"`
	Language       string     `json:"language"`
	ByteLength     int        `json:"byte_length"`
	ReferenceCount int        `json:"reference_count"`
}

// NewPageID derives the stable page identifier from a canonical URL.
func NewPageID(canonicalURL string) string {
	sum := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])
}

// HashContent derives the content hash used for refetch deduplication.
func HashContent(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// ToJSON serializes the page for storage and transport.
func (p *Page) ToJSON() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromJSONPage deserializes a page from its JSON form.
func FromJSONPage(data string) (*Page, error) {
	var page Page
	if err := json.Unmarshal([]byte(data), &page); err != nil {
		return nil, err
	}
	return &page, nil
}
