// Package app wires configuration, storage, the crawl pipeline and the
// HTTP handlers into a single application object.
package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/percipio/internal/common"
	"github.com/ternarybob/percipio/internal/handlers"
	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/queue"
	"github.com/ternarybob/percipio/internal/services/categorizer"
	"github.com/ternarybob/percipio/internal/services/crawler"
	"github.com/ternarybob/percipio/internal/services/extractor"
	"github.com/ternarybob/percipio/internal/services/fetcher"
	"github.com/ternarybob/percipio/internal/services/scheduler"
	"github.com/ternarybob/percipio/internal/services/scorer"
	"github.com/ternarybob/percipio/internal/services/search"
	"github.com/ternarybob/percipio/internal/services/stats"
	"github.com/ternarybob/percipio/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config  *common.Config
	Logger  arbor.ILogger
	Storage interfaces.StorageManager

	// Crawl pipeline
	Fetcher     interfaces.Fetcher
	Extractor   interfaces.Extractor
	Categorizer interfaces.Categorizer
	Scorer      interfaces.Scorer
	Crawler     interfaces.CrawlerService

	// Background job execution
	Queue     interfaces.QueueManager
	Pool      *scheduler.Pool
	Scheduler *scheduler.Service

	// Web search
	Search *search.Service

	// Statistics
	Stats interfaces.StatsService

	// HTTP handlers
	APIHandler    *handlers.APIHandler
	CrawlHandler  *handlers.CrawlHandler
	JobHandler    *handlers.JobHandler
	BitHandler    *handlers.BitHandler
	PageHandler   *handlers.PageHandler
	RuleHandler   *handlers.RuleHandler
	SearchHandler *handlers.SearchHandler
	StatsHandler  *handlers.StatsHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Storage.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	// Workers start after handlers so requests arriving at startup see a
	// fully wired application
	if err := app.Scheduler.Start(); err != nil {
		app.Storage.Close()
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	// Provider quotas are hourly windows
	if err := app.Scheduler.RegisterHourly("search-quota-reset", app.Search.ResetQuotaWindows); err != nil {
		logger.Warn().Err(err).Msg("Failed to schedule search quota reset")
	}

	logger.Info().
		Int("search_providers", len(app.Search.ProviderNames())).
		Int("workers", cfg.Scheduler.MaxConcurrentTasks).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	manager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.Storage = manager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// initServices initializes the business services in dependency order.
func (a *App) initServices() error {
	// 1. Pipeline stages, leaf services first
	a.Fetcher = fetcher.NewService(&a.Config.Crawler, a.Logger)
	a.Extractor = extractor.NewService(a.Logger)
	a.Categorizer = categorizer.NewService(a.Storage.RuleStorage(), a.Logger)
	a.Scorer = scorer.NewService(&a.Config.Scorer, a.Storage.ThresholdStorage(), a.Logger)

	// 2. Crawler composes the stages into the fetch-extract-score loop
	a.Crawler = crawler.NewService(a.Fetcher, a.Extractor, a.Categorizer, a.Scorer, a.Storage, &a.Config.Crawler, a.Logger)
	a.Logger.Debug().Msg("Crawl pipeline initialized")

	// 3. Job queue shares the storage manager's Badger instance
	store, ok := a.Storage.DB().(*badgerhold.Store)
	if !ok {
		return fmt.Errorf("storage manager is not backed by BadgerDB (got %T)", a.Storage.DB())
	}
	queueMgr, err := queue.NewBadgerQueue(
		store.Badger(),
		a.Config.Scheduler.QueueName,
		a.Config.Scheduler.VisibilityTimeoutDuration(),
		a.Config.Scheduler.MaxReceive,
		a.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize job queue: %w", err)
	}
	a.Queue = queueMgr
	a.Logger.Debug().Str("queue_name", a.Config.Scheduler.QueueName).Msg("Job queue initialized")

	// 4. Worker pool executes queued crawl jobs
	a.Pool = scheduler.NewPool(queueMgr, a.Storage.JobStorage(), &a.Config.Scheduler, a.Logger)
	a.Pool.RegisterExecutor(scheduler.NewCrawlExecutor(a.Crawler))
	a.Scheduler = scheduler.NewService(queueMgr, a.Pool, a.Storage, &a.Config.Scheduler, a.Logger)
	a.Logger.Debug().Msg("Scheduler initialized")

	// 5. Web search fan-out; discovered URLs can feed back into the queue
	providers := search.NewProvidersFromConfig(&a.Config.Search, a.Logger)
	a.Search = search.NewService(&a.Config.Search, a.Storage.SearchLogStorage(), a.Logger, providers...)
	a.Search.SetScheduler(a.Scheduler)
	// Queries logged before a restart still count against this hour
	a.Search.PrimeQuota(context.Background())

	// 6. Statistics aggregate over everything above
	a.Stats = stats.NewService(a.Storage, a.Scorer, a.Logger)

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.CrawlHandler = handlers.NewCrawlHandler(a.Crawler, a.Config, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.Scheduler, a.Storage.JobStorage(), a.Config, a.Logger)
	a.BitHandler = handlers.NewBitHandler(a.Storage.BitStorage(), a.Storage.CrossRefStorage(), a.Logger)
	a.PageHandler = handlers.NewPageHandler(a.Storage.PageStorage(), a.Logger)
	a.RuleHandler = handlers.NewRuleHandler(a.Storage.RuleStorage(), a.Categorizer, a.Logger)
	a.SearchHandler = handlers.NewSearchHandler(a.Search, a.Logger)
	a.StatsHandler = handlers.NewStatsHandler(a.Stats, a.Logger)
	a.Logger.Debug().Msg("HTTP handlers initialized")
}

// Close closes all application resources
func (a *App) Close() error {
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler")
		}
	}

	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
