package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/percipio/internal/models"
)

// bitPreviewLimit is where list views cut long bit content
const bitPreviewLimit = 500

func truncateContent(content string) string {
	if len(content) <= bitPreviewLimit {
		return content
	}
	return content[:bitPreviewLimit] + "..."
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatCrawlJob formats one crawl job as markdown
func formatCrawlJob(heading string, job *models.CrawlJob, runErr error) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s\n\n", heading))
	sb.WriteString(fmt.Sprintf("**Job ID:** %s\n", job.JobID))
	sb.WriteString(fmt.Sprintf("**Seed URL:** %s\n", job.SeedURL))
	sb.WriteString(fmt.Sprintf("**State:** %s\n", job.State))
	if !job.StartedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("**Started:** %s\n", job.StartedAt.Format(time.RFC3339)))
	}
	if !job.EndedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("**Ended:** %s\n", job.EndedAt.Format(time.RFC3339)))
	} else if job.State == models.JobStateRunning && !job.StartedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("**Elapsed:** %s\n", time.Since(job.StartedAt).Round(time.Second)))
	}
	if job.Attempts > 0 {
		sb.WriteString(fmt.Sprintf("**Attempts:** %d\n", job.Attempts))
	}
	if runErr != nil {
		sb.WriteString(fmt.Sprintf("**Error:** %v\n", runErr))
	} else if job.Error != "" {
		sb.WriteString(fmt.Sprintf("**Error:** %s\n", job.Error))
	}

	m := job.Metrics
	sb.WriteString("\n### Metrics\n\n")
	sb.WriteString(fmt.Sprintf("- Pages fetched: %d (%d skipped)\n", m.PagesFetched, m.PagesSkipped))
	sb.WriteString(fmt.Sprintf("- Bits kept: %d of %d emitted\n", m.BitsKept, m.BitsEmitted))
	sb.WriteString(fmt.Sprintf("- Links discovered: %d\n", m.LinksDiscovered))
	sb.WriteString(fmt.Sprintf("- Bytes downloaded: %d\n", m.BytesDownloaded))
	if m.Duration > 0 {
		sb.WriteString(fmt.Sprintf("- Duration: %s\n", m.Duration.Round(time.Millisecond)))
	}
	if len(m.ErrorCounts) > 0 {
		sb.WriteString("- Errors:")
		for _, kind := range sortedKeys(m.ErrorCounts) {
			sb.WriteString(fmt.Sprintf(" %s=%d", kind, m.ErrorCounts[kind]))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// formatJobsAggregate formats the all-jobs overview as markdown
func formatJobsAggregate(counts map[string]int, recent []*models.CrawlJob) string {
	var sb strings.Builder
	sb.WriteString("## Background Crawls\n\n")

	total := 0
	for _, n := range counts {
		total += n
	}
	sb.WriteString(fmt.Sprintf("**Total jobs:** %d\n", total))
	for _, state := range sortedKeys(counts) {
		sb.WriteString(fmt.Sprintf("- %s: %d\n", state, counts[state]))
	}

	if len(recent) > 0 {
		sb.WriteString("\n### Recent Jobs\n\n")
		for _, job := range recent {
			sb.WriteString(fmt.Sprintf("- %s [%s] %s (pages: %d, bits: %d)\n",
				job.JobID, job.State, job.SeedURL, job.Metrics.PagesFetched, job.Metrics.BitsKept))
		}
	}

	return sb.String()
}

// formatBits formats learning bits as markdown
func formatBits(heading string, bits []*models.LearningBit, fullContent bool) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s (%d)\n\n", heading, len(bits)))

	if len(bits) == 0 {
		sb.WriteString("No learning bits found.\n")
		return sb.String()
	}

	for i, bit := range bits {
		sb.WriteString(fmt.Sprintf("### %d. %s / %s\n", i+1, bit.Category, bit.ContentType))
		if bit.Subcategory != "" {
			sb.WriteString(fmt.Sprintf("**Subcategory:** %s\n", bit.Subcategory))
		}
		sb.WriteString(fmt.Sprintf("**Complexity:** %s | **Importance:** %.2f | **Confidence:** %.2f\n",
			bit.ComplexityLevel, bit.ImportanceScore, bit.ConfidenceScore))
		if len(bit.Tags) > 0 {
			sb.WriteString(fmt.Sprintf("**Tags:** %s\n", strings.Join(bit.Tags, ", ")))
		}

		content := bit.Content
		if !fullContent {
			content = truncateContent(content)
		}
		sb.WriteString("\n")
		sb.WriteString(content)
		sb.WriteString("\n\n---\n\n")
	}

	return sb.String()
}

// formatStatistics formats knowledge base statistics as markdown
func formatStatistics(stats *models.LearningStatistics) string {
	var sb strings.Builder
	sb.WriteString("## Learning Statistics\n\n")
	sb.WriteString(fmt.Sprintf("**Pages:** %d | **Bits:** %d | **Cross-references:** %d\n", stats.TotalPages, stats.TotalBits, stats.TotalCrossRefs))
	sb.WriteString(fmt.Sprintf("**Rules:** %d | **Logged searches:** %d\n", stats.TotalRules, stats.TotalSearches))
	sb.WriteString(fmt.Sprintf("**Recent bits:** %d in the last %d days\n", stats.RecentBits, int(stats.RecentWindow.Hours()/24)))
	sb.WriteString(fmt.Sprintf("**Average importance:** %.2f | **Average confidence:** %.2f\n", stats.AvgImportance, stats.AvgConfidence))
	sb.WriteString(fmt.Sprintf("**Keep thresholds:** importance %.2f, confidence %.2f (version %d)\n",
		stats.Thresholds.MinImportance, stats.Thresholds.MinConfidence, stats.Thresholds.Version))

	if len(stats.BitsByCategory) > 0 {
		sb.WriteString("\n### Bits by Category\n\n")
		for _, key := range sortedKeys(stats.BitsByCategory) {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", key, stats.BitsByCategory[key]))
		}
	}
	if len(stats.BitsByContentType) > 0 {
		sb.WriteString("\n### Bits by Content Type\n\n")
		for _, key := range sortedKeys(stats.BitsByContentType) {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", key, stats.BitsByContentType[key]))
		}
	}
	if len(stats.BitsByComplexity) > 0 {
		sb.WriteString("\n### Bits by Complexity\n\n")
		for _, key := range sortedKeys(stats.BitsByComplexity) {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", key, stats.BitsByComplexity[key]))
		}
	}
	if len(stats.PagesByStatus) > 0 {
		sb.WriteString("\n### Pages by Status\n\n")
		for _, key := range sortedKeys(stats.PagesByStatus) {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", key, stats.PagesByStatus[key]))
		}
	}
	if len(stats.TopDomains) > 0 {
		sb.WriteString("\n### Top Domains\n\n")
		for _, domain := range stats.TopDomains {
			sb.WriteString(fmt.Sprintf("- %s: %d pages\n", domain.Domain, domain.Count))
		}
	}
	if len(stats.JobsByState) > 0 {
		sb.WriteString("\n### Jobs by State\n\n")
		for _, key := range sortedKeys(stats.JobsByState) {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", key, stats.JobsByState[key]))
		}
	}

	return sb.String()
}

// formatRules formats categorization rules as markdown
func formatRules(rules []*models.CategorizationRule, activeOnly bool) string {
	var sb strings.Builder
	if activeOnly {
		sb.WriteString(fmt.Sprintf("## Active Categorization Rules (%d)\n\n", len(rules)))
	} else {
		sb.WriteString(fmt.Sprintf("## Categorization Rules (%d)\n\n", len(rules)))
	}

	if len(rules) == 0 {
		sb.WriteString("No rules configured.\n")
		return sb.String()
	}

	for _, rule := range rules {
		sb.WriteString(fmt.Sprintf("### %s\n", rule.RuleName))
		category := rule.Category
		if rule.Subcategory != "" {
			category += " / " + rule.Subcategory
		}
		sb.WriteString(fmt.Sprintf("**Type:** %s | **Category:** %s\n", rule.RuleType, category))
		sb.WriteString(fmt.Sprintf("**Pattern:** `%s`\n", rule.Pattern))
		sb.WriteString(fmt.Sprintf("**Boost:** %.2f | **Priority:** %d | **Active:** %t\n\n", rule.ConfidenceBoost, rule.Priority, rule.Active))
	}

	return sb.String()
}

// formatWebResults formats a web search response as markdown
func formatWebResults(response *models.SearchResponse) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Web Results for %q (%d)\n\n", response.Query, len(response.Results)))

	if response.Reason != "" {
		sb.WriteString(fmt.Sprintf("_%s_\n\n", response.Reason))
	}
	if len(response.Providers) > 0 {
		sb.WriteString(fmt.Sprintf("**Providers:** %s\n\n", strings.Join(response.Providers, ", ")))
	}

	if len(response.Results) == 0 {
		sb.WriteString("No results found.\n")
		return sb.String()
	}

	for i, result := range response.Results {
		title := result.Title
		if title == "" {
			title = result.URL
		}
		sb.WriteString(fmt.Sprintf("### %d. %s\n", i+1, title))
		sb.WriteString(fmt.Sprintf("**URL:** %s\n", result.URL))
		sb.WriteString(fmt.Sprintf("**Provider:** %s | **Relevance:** %.2f\n\n", result.Provider, result.RelevanceScore))
		if result.Snippet != "" {
			sb.WriteString(result.Snippet)
			sb.WriteString("\n\n")
		}
	}

	return sb.String()
}
