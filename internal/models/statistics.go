package models

import "time"

// DomainCount pairs a domain with how many pages it contributed.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// LearningStatistics is the aggregate view over the stored corpus returned
// by the statistics tool.
type LearningStatistics struct {
	TotalPages        int                `json:"total_pages"`
	TotalBits         int                `json:"total_bits"`
	TotalCrossRefs    int                `json:"total_cross_refs"`
	TotalRules        int                `json:"total_rules"`
	TotalSearches     int                `json:"total_searches"`
	BitsByCategory    map[string]int     `json:"bits_by_category"`
	BitsByContentType map[string]int     `json:"bits_by_content_type"`
	BitsByComplexity  map[string]int     `json:"bits_by_complexity"`
	PagesByStatus     map[string]int     `json:"pages_by_status"`
	TopDomains        []DomainCount      `json:"top_domains"`
	AvgImportance     float64            `json:"avg_importance"`
	AvgConfidence     float64            `json:"avg_confidence"`
	RecentBits        int                `json:"recent_bits"` // extracted within the recent window
	RecentWindow      time.Duration      `json:"recent_window"`
	Thresholds        AdaptiveThresholds `json:"thresholds"`
	JobsByState       map[string]int     `json:"jobs_by_state"`
	GeneratedAt       time.Time          `json:"generated_at"`
}
