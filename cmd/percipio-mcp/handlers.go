package main

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
)

// crawlConfigFromRequest maps tool arguments onto a crawl config, leaving
// defaults in place for anything the caller omitted
func crawlConfigFromRequest(request mcp.CallToolRequest) *models.CrawlConfig {
	config := models.DefaultCrawlConfig()
	config.MaxPages = request.GetInt("max_pages", config.MaxPages)
	config.MaxDepth = request.GetInt("max_depth", config.MaxDepth)
	config.FollowLinks = request.GetBool("follow_links", config.FollowLinks)
	config.CrawlDelay = request.GetFloat("crawl_delay", config.CrawlDelay)
	config.RespectRobots = request.GetBool("respect_robots", config.RespectRobots)
	return &config
}

// handleCrawlWebsite implements the crawl_website tool
func handleCrawlWebsite(crawler interfaces.CrawlerService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		seedURL, err := request.RequireString("url")
		if err != nil || seedURL == "" {
			return mcp.NewToolResultError("url parameter is required"), nil
		}

		job, err := crawler.CrawlSite(ctx, seedURL, crawlConfigFromRequest(request))
		if err != nil {
			logger.Warn().Err(err).Str("seed_url", seedURL).Msg("Crawl failed")
			if job != nil {
				// The job carries partial metrics even when the crawl aborted
				return mcp.NewToolResultText(formatCrawlJob("Crawl Failed", job, err)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("crawl failed: %v", err)), nil
		}

		return mcp.NewToolResultText(formatCrawlJob("Crawl Complete", job, nil)), nil
	}
}

// handleStartBackgroundCrawl implements the start_background_crawl tool
func handleStartBackgroundCrawl(scheduler interfaces.SchedulerService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		seedURL, err := request.RequireString("url")
		if err != nil || seedURL == "" {
			return mcp.NewToolResultError("url parameter is required"), nil
		}

		job := &models.CrawlJob{
			JobID:    request.GetString("job_id", ""),
			SeedURL:  seedURL,
			Priority: models.ParsePriority(request.GetString("priority", "")),
			Config:   *crawlConfigFromRequest(request),
		}
		if err := scheduler.Schedule(ctx, job); err != nil {
			logger.Warn().Err(err).Str("seed_url", seedURL).Msg("Failed to queue crawl")
			return mcp.NewToolResultError(fmt.Sprintf("failed to queue crawl: %v", err)), nil
		}

		markdown := fmt.Sprintf("## Background Crawl Queued\n\n**Job ID:** %s\n**Seed URL:** %s\n**Priority:** %s\n**Pages:** %d, **Depth:** %d\n\nUse get_background_crawl_status with this job ID to follow progress.\n",
			job.JobID, job.SeedURL, job.Priority.String(), job.Config.MaxPages, job.Config.MaxDepth)
		return mcp.NewToolResultText(markdown), nil
	}
}

// handleCrawlStatus implements the get_background_crawl_status tool
func handleCrawlStatus(crawler interfaces.CrawlerService, jobs interfaces.JobStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID := request.GetString("job_id", "")

		// No ID means the caller wants the aggregate view
		if jobID == "" {
			counts, err := jobs.CountJobsByState(ctx)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to count jobs: %v", err)), nil
			}
			recent, err := jobs.ListJobs(ctx, &interfaces.ListOptions{Limit: 10})
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to list jobs: %v", err)), nil
			}
			return mcp.NewToolResultText(formatJobsAggregate(counts, recent)), nil
		}

		job, err := crawler.GetJobStatus(ctx, jobID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("job not found: %s", jobID)), nil
		}
		return mcp.NewToolResultText(formatCrawlJob("Crawl Status", job, nil)), nil
	}
}

// handleStopBackgroundCrawl implements the stop_background_crawl tool
func handleStopBackgroundCrawl(scheduler interfaces.SchedulerService, jobs interfaces.JobStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return mcp.NewToolResultError("job_id parameter is required"), nil
		}

		if _, err := jobs.GetJob(ctx, jobID); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("job not found: %s", jobID)), nil
		}
		if err := scheduler.Cancel(ctx, jobID); err != nil {
			logger.Warn().Err(err).Str("job_id", jobID).Msg("Cancel failed")
			return mcp.NewToolResultError(fmt.Sprintf("failed to cancel job: %v", err)), nil
		}

		// Re-read for the post-cancel state
		state := models.JobStateCancelled
		if job, err := jobs.GetJob(ctx, jobID); err == nil {
			state = job.State
		}
		return mcp.NewToolResultText(fmt.Sprintf("## Crawl Cancelled\n\n**Job ID:** %s\n**State:** %s\n", jobID, state)), nil
	}
}

// handleGetLearningBits implements the get_learning_bits tool
func handleGetLearningBits(bits interfaces.BitStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filter := &models.BitFilter{
			Category:      request.GetString("category", ""),
			Subcategory:   request.GetString("subcategory", ""),
			ContentType:   models.ContentType(request.GetString("content_type", "")),
			Complexity:    models.ComplexityLevel(request.GetString("complexity", "")),
			MinImportance: request.GetFloat("min_importance", 0),
			Limit:         request.GetInt("limit", 20),
			Offset:        request.GetInt("offset", 0),
		}

		results, err := bits.QueryBits(ctx, filter)
		if err != nil {
			logger.Error().Err(err).Msg("QueryBits failed")
			return mcp.NewToolResultError(fmt.Sprintf("failed to query bits: %v", err)), nil
		}
		touchBits(ctx, bits, results, logger)

		fullContent := request.GetBool("full_content", false)
		return mcp.NewToolResultText(formatBits("Learning Bits", results, fullContent)), nil
	}
}

// handleSearchLearningBits implements the search_learning_bits tool
func handleSearchLearningBits(bits interfaces.BitStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil || query == "" {
			return mcp.NewToolResultError("query parameter is required"), nil
		}
		category := request.GetString("category", "")
		limit := request.GetInt("limit", 20)

		// Over-fetch when a category filter applies so the post-filter can
		// still fill the limit
		fetchLimit := limit
		if category != "" {
			fetchLimit = limit * 5
		}

		results, err := bits.SearchBits(ctx, query, fetchLimit)
		if err != nil {
			logger.Error().Err(err).Str("query", query).Msg("SearchBits failed")
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if category != "" {
			kept := results[:0]
			for _, bit := range results {
				if bit.Category == category {
					kept = append(kept, bit)
				}
			}
			results = kept
			if len(results) > limit {
				results = results[:limit]
			}
		}
		touchBits(ctx, bits, results, logger)

		heading := fmt.Sprintf("Learning Bits Matching %q", query)
		return mcp.NewToolResultText(formatBits(heading, results, false)), nil
	}
}

// touchBits bumps the reference counter of every served bit. Only bits that
// actually reach the agent count as retrieved; failures are logged, never
// returned.
func touchBits(ctx context.Context, bits interfaces.BitStorage, served []*models.LearningBit, logger arbor.ILogger) {
	for _, bit := range served {
		if err := bits.IncrementReference(ctx, bit.BitID); err != nil {
			logger.Warn().Err(err).Str("bit_id", bit.BitID).Msg("Failed to bump reference count")
		}
	}
}

// handleGetStatistics implements the get_learning_statistics tool
func handleGetStatistics(stats interfaces.StatsService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		statistics, err := stats.GetStatistics(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("GetStatistics failed")
			return mcp.NewToolResultError(fmt.Sprintf("failed to compute statistics: %v", err)), nil
		}
		return mcp.NewToolResultText(formatStatistics(statistics)), nil
	}
}

// handleAddRule implements the add_categorization_rule tool
func handleAddRule(rules interfaces.RuleStorage, categorizer interfaces.Categorizer, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("rule_name")
		if err != nil || name == "" {
			return mcp.NewToolResultError("rule_name parameter is required"), nil
		}
		ruleType, err := request.RequireString("rule_type")
		if err != nil {
			return mcp.NewToolResultError("rule_type parameter is required"), nil
		}
		pattern, err := request.RequireString("pattern")
		if err != nil {
			return mcp.NewToolResultError("pattern parameter is required"), nil
		}
		category, err := request.RequireString("category")
		if err != nil {
			return mcp.NewToolResultError("category parameter is required"), nil
		}

		rule := &models.CategorizationRule{
			RuleName:        name,
			RuleType:        models.RuleType(ruleType),
			Pattern:         pattern,
			Category:        category,
			Subcategory:     request.GetString("subcategory", ""),
			ConfidenceBoost: request.GetFloat("confidence_boost", 0),
			Priority:        request.GetInt("priority", 0),
			Active:          true,
		}
		if err := rules.CreateRule(ctx, rule); err != nil {
			logger.Warn().Err(err).Str("rule_name", name).Msg("CreateRule failed")
			return mcp.NewToolResultError(err.Error()), nil
		}
		categorizer.InvalidateRules()

		markdown := fmt.Sprintf("## Rule Added\n\n**Name:** %s\n**Type:** %s\n**Pattern:** `%s`\n**Category:** %s\n\nThe rule applies to bits extracted from now on.\n",
			rule.RuleName, rule.RuleType, rule.Pattern, rule.Category)
		return mcp.NewToolResultText(markdown), nil
	}
}

// handleGetRules implements the get_categorization_rules tool
func handleGetRules(rules interfaces.RuleStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		activeOnly := request.GetBool("active_only", false)

		list, err := rules.ListRules(ctx, activeOnly)
		if err != nil {
			logger.Error().Err(err).Msg("ListRules failed")
			return mcp.NewToolResultError(fmt.Sprintf("failed to list rules: %v", err)), nil
		}
		return mcp.NewToolResultText(formatRules(list, activeOnly)), nil
	}
}

// handleSearchWeb implements the search_web tool
func handleSearchWeb(search interfaces.SearchService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil || query == "" {
			return mcp.NewToolResultError("query parameter is required"), nil
		}
		limit := request.GetInt("max_results", 0)

		response, err := search.Search(ctx, query, limit)
		if err != nil {
			logger.Warn().Err(err).Str("query", query).Msg("Web search failed")
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatWebResults(response)), nil
	}
}
