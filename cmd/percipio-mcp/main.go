package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/percipio/internal/app"
	"github.com/ternarybob/percipio/internal/common"
)

func main() {
	// Load configuration
	configPath := os.Getenv("PERCIPIO_CONFIG")
	if configPath == "" {
		configPath = "percipio.toml"
	}
	if _, err := os.Stat(configPath); err != nil {
		// Fall back to defaults plus env when no config file is present
		configPath = ""
	}

	config, err := common.LoadFromFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize minimal logger for MCP server (console only, no file output)
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn") // Minimal logging to avoid cluttering MCP stdio

	// Boot the full application. The scheduler runs in-process so
	// background crawls queued over MCP actually execute.
	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	// Create MCP server
	mcpServer := server.NewMCPServer(
		"percipio",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Register crawl tools
	mcpServer.AddTool(createCrawlWebsiteTool(), handleCrawlWebsite(application.Crawler, logger))
	mcpServer.AddTool(createStartBackgroundCrawlTool(), handleStartBackgroundCrawl(application.Scheduler, logger))
	mcpServer.AddTool(createCrawlStatusTool(), handleCrawlStatus(application.Crawler, application.Storage.JobStorage(), logger))
	mcpServer.AddTool(createStopBackgroundCrawlTool(), handleStopBackgroundCrawl(application.Scheduler, application.Storage.JobStorage(), logger))

	// Register knowledge base tools
	mcpServer.AddTool(createGetLearningBitsTool(), handleGetLearningBits(application.Storage.BitStorage(), logger))
	mcpServer.AddTool(createSearchLearningBitsTool(), handleSearchLearningBits(application.Storage.BitStorage(), logger))
	mcpServer.AddTool(createGetStatisticsTool(), handleGetStatistics(application.Stats, logger))

	// Register categorization rule tools
	mcpServer.AddTool(createAddRuleTool(), handleAddRule(application.Storage.RuleStorage(), application.Categorizer, logger))
	mcpServer.AddTool(createGetRulesTool(), handleGetRules(application.Storage.RuleStorage(), logger))

	// Register web search tools
	mcpServer.AddTool(createSearchWebTool(), handleSearchWeb(application.Search, logger))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
