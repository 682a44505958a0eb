package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createCrawlWebsiteTool returns the crawl_website tool definition
func createCrawlWebsiteTool() mcp.Tool {
	return mcp.NewTool("crawl_website",
		mcp.WithDescription("Crawl a website and extract learning bits, blocking until the crawl finishes"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Seed URL to start crawling from (http or https)"),
		),
		mcp.WithNumber("max_pages",
			mcp.Description("Page budget for the crawl (default: 25)"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Link depth to follow from the seed (default: 2)"),
		),
		mcp.WithBoolean("follow_links",
			mcp.Description("Follow links found on crawled pages (default: true)"),
		),
		mcp.WithNumber("crawl_delay",
			mcp.Description("Seconds between fetches to the same host (default: 1)"),
		),
		mcp.WithBoolean("respect_robots",
			mcp.Description("Honor robots.txt disallow rules (default: true)"),
		),
	)
}

// createStartBackgroundCrawlTool returns the start_background_crawl tool definition
func createStartBackgroundCrawlTool() mcp.Tool {
	return mcp.NewTool("start_background_crawl",
		mcp.WithDescription("Queue a crawl for background execution and return its job ID immediately"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Seed URL to start crawling from (http or https)"),
		),
		mcp.WithString("job_id",
			mcp.Description("Client-chosen job ID (assigned when omitted)"),
		),
		mcp.WithNumber("max_pages",
			mcp.Description("Page budget for the crawl (default: 25)"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Link depth to follow from the seed (default: 2)"),
		),
		mcp.WithBoolean("follow_links",
			mcp.Description("Follow links found on crawled pages (default: true)"),
		),
		mcp.WithNumber("crawl_delay",
			mcp.Description("Seconds between fetches to the same host (default: 1)"),
		),
		mcp.WithBoolean("respect_robots",
			mcp.Description("Honor robots.txt disallow rules (default: true)"),
		),
		mcp.WithString("priority",
			mcp.Description("Queue priority: critical, high, normal or low (default: normal)"),
		),
	)
}

// createCrawlStatusTool returns the get_background_crawl_status tool definition
func createCrawlStatusTool() mcp.Tool {
	return mcp.NewTool("get_background_crawl_status",
		mcp.WithDescription("Get the status of one background crawl, or an aggregate over all jobs when no ID is given"),
		mcp.WithString("job_id",
			mcp.Description("Job ID returned by start_background_crawl (omit for the aggregate view)"),
		),
	)
}

// createStopBackgroundCrawlTool returns the stop_background_crawl tool definition
func createStopBackgroundCrawlTool() mcp.Tool {
	return mcp.NewTool("stop_background_crawl",
		mcp.WithDescription("Cancel a queued or running background crawl"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID to cancel"),
		),
	)
}

// createGetLearningBitsTool returns the get_learning_bits tool definition
func createGetLearningBitsTool() mcp.Tool {
	return mcp.NewTool("get_learning_bits",
		mcp.WithDescription("List stored learning bits with optional filters"),
		mcp.WithString("category",
			mcp.Description("Filter by category"),
		),
		mcp.WithString("subcategory",
			mcp.Description("Filter by subcategory"),
		),
		mcp.WithString("content_type",
			mcp.Description("Filter by content type: concept, definition, example, tutorial-step, code, reference, other"),
		),
		mcp.WithString("complexity",
			mcp.Description("Filter by complexity level: beginner, intermediate, advanced"),
		),
		mcp.WithNumber("min_importance",
			mcp.Description("Only bits scoring at least this importance (0-1)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum bits to return (default: 20)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Bits to skip for paging"),
		),
		mcp.WithBoolean("full_content",
			mcp.Description("Return full bit content instead of truncating long bits"),
		),
	)
}

// createSearchLearningBitsTool returns the search_learning_bits tool definition
func createSearchLearningBitsTool() mcp.Tool {
	return mcp.NewTool("search_learning_bits",
		mcp.WithDescription("Keyword search over stored learning bits, ranked by match count"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search terms matched against bit content and tags"),
		),
		mcp.WithString("category",
			mcp.Description("Only return bits in this category"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum bits to return (default: 20)"),
		),
	)
}

// createGetStatisticsTool returns the get_learning_statistics tool definition
func createGetStatisticsTool() mcp.Tool {
	return mcp.NewTool("get_learning_statistics",
		mcp.WithDescription("Summarize the knowledge base: totals, category breakdowns, average scores, top domains and job states"),
	)
}

// createAddRuleTool returns the add_categorization_rule tool definition
func createAddRuleTool() mcp.Tool {
	return mcp.NewTool("add_categorization_rule",
		mcp.WithDescription("Add a categorization rule applied to newly extracted learning bits; fails if the name is already taken"),
		mcp.WithString("rule_name",
			mcp.Required(),
			mcp.Description("Unique rule name"),
		),
		mcp.WithString("rule_type",
			mcp.Required(),
			mcp.Description("Match strategy: keyword, regex, structure or semantic"),
		),
		mcp.WithString("pattern",
			mcp.Required(),
			mcp.Description("Pattern to match; must be a valid regular expression for regex rules"),
		),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Category assigned on match"),
		),
		mcp.WithString("subcategory",
			mcp.Description("Subcategory assigned on match"),
		),
		mcp.WithNumber("confidence_boost",
			mcp.Description("Confidence added on match (-1 to 1)"),
		),
		mcp.WithNumber("priority",
			mcp.Description("Evaluation order, lower values evaluate first"),
		),
	)
}

// createGetRulesTool returns the get_categorization_rules tool definition
func createGetRulesTool() mcp.Tool {
	return mcp.NewTool("get_categorization_rules",
		mcp.WithDescription("List categorization rules ordered by priority"),
		mcp.WithBoolean("active_only",
			mcp.Description("Only return active rules"),
		),
	)
}

// createSearchWebTool returns the search_web tool definition
func createSearchWebTool() mcp.Tool {
	return mcp.NewTool("search_web",
		mcp.WithDescription("Search the web through the configured providers, merging and ranking their results"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query text"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum results to return (default: 10)"),
		),
	)
}
