package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // development|production
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Crawler     CrawlerConfig   `toml:"crawler"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Scorer      ScorerConfig    `toml:"scorer"`
	Search      SearchConfig    `toml:"search"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
}

// StorageConfig contains storage configuration
type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig contains BadgerDB-specific configuration
type BadgerConfig struct {
	Path string `toml:"path" validate:"required"` // Directory for the badger value log and LSM tree
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string   `toml:"level"`        // debug|info|warn|error
	Output     []string `toml:"output"`       // stdout, file
	MaxSizeMB  int      `toml:"max_size_mb"`  // Log file rotation size
	MaxBackups int      `toml:"max_backups"`  // Rotated files to keep
}

// CrawlerConfig contains fetch and crawl configuration.
// Per-job values (max_pages, max_depth, crawl_delay, respect_robots) are
// defaults that individual crawl jobs may override.
type CrawlerConfig struct {
	UserAgent             string        `toml:"user_agent"`
	MaxPages              int           `toml:"max_pages" validate:"gte=1"`       // Default page budget per job
	MaxDepth              int           `toml:"max_depth" validate:"gte=0"`       // Default link depth per job
	CrawlDelay            time.Duration `toml:"crawl_delay"`                      // Minimum delay between requests to the same host
	RespectRobots         bool          `toml:"respect_robots"`                   // Honor robots.txt disallow rules
	RobotsCacheTTL        time.Duration `toml:"robots_cache_ttl"`                 // How long fetched robots.txt entries are reused
	RequestTimeout        time.Duration `toml:"request_timeout"`                  // HTTP request timeout
	MaxRedirects          int           `toml:"max_redirects" validate:"gte=0"`   // Redirect hops before giving up
	MaxBodySize           int64         `toml:"max_body_size" validate:"gte=1"`   // Response bodies larger than this are rejected
	MaxConnections        int           `toml:"max_connections" validate:"gte=1"` // Pooled connections across all hosts
	MaxConnectionsPerHost int           `toml:"max_connections_per_host" validate:"gte=1"`
	RetryAttempts         int           `toml:"retry_attempts" validate:"gte=0"` // Retries for transient fetch failures
	RetryBackoff          time.Duration `toml:"retry_backoff"`                   // Base backoff, doubled per attempt
	HostFailureLimit      int           `toml:"host_failure_limit" validate:"gte=1"` // Consecutive failures before a host is blacklisted
}

// SchedulerConfig contains background job scheduling configuration
type SchedulerConfig struct {
	MaxConcurrentTasks int    `toml:"max_concurrent_tasks" validate:"gte=1"` // Worker pool size
	TaskTimeout        string `toml:"task_timeout"`                          // Per-job execution timeout (duration string)
	RetryAttempts      int    `toml:"retry_attempts" validate:"gte=0"`       // Re-queues after timeout or transient failure
	QueueName          string `toml:"queue_name"`
	VisibilityTimeout  string `toml:"visibility_timeout"` // How long a claimed message stays invisible
	PollInterval       string `toml:"poll_interval"`      // Idle polling floor for workers
	MaxReceive         int    `toml:"max_receive" validate:"gte=1"` // Receive count before a message is dropped as poison
}

// ScorerConfig contains importance scoring and adaptive threshold configuration
type ScorerConfig struct {
	MinImportance      float64 `toml:"min_importance" validate:"gte=0,lte=1"`
	MinConfidence      float64 `toml:"min_confidence" validate:"gte=0,lte=1"`
	AdaptationInterval int     `toml:"adaptation_interval" validate:"gte=1"` // Bits scored between threshold reviews
	RetentionTarget    float64 `toml:"retention_target" validate:"gte=0,lte=1"`
	RetentionTolerance float64 `toml:"retention_tolerance" validate:"gte=0,lte=1"`
	MaxStep            float64 `toml:"max_step" validate:"gte=0,lte=1"` // Largest single threshold adjustment
}

// SearchConfig contains web search dispatch configuration
type SearchConfig struct {
	ResultThreshold   float64        `toml:"result_filtering_threshold" validate:"gte=0,lte=1"` // Results scoring below this are dropped
	Deadline          time.Duration  `toml:"deadline"`          // Fan-out deadline across providers
	RateLimit         int            `toml:"search_rate_limit"` // Hourly query quota per provider
	MaxResults        int            `toml:"max_results" validate:"gte=1"`
	EnqueueDiscovered bool           `toml:"enqueue_discovered"` // Queue result URLs as low-priority crawl jobs
	Serper            ProviderConfig `toml:"serper"`
	Brave             ProviderConfig `toml:"brave"`
}

// ProviderConfig contains per-provider search API configuration.
// A provider with no API key is disabled rather than an error.
type ProviderConfig struct {
	APIKey  string  `toml:"api_key"`
	BaseURL string  `toml:"base_url"`
	Trust   float64 `toml:"trust" validate:"gte=0,lte=1"` // Source weight in relevance scoring
}

// NewDefaultConfig creates a configuration with default values
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in percipio.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development", // Default to development mode - allows test URLs
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",                     // Info level for production (debug|info|warn|error)
			Output:     []string{"stdout", "file"}, // Log to both console and file
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
		Crawler: CrawlerConfig{
			UserAgent:             "percipio/1.0 (+https://github.com/ternarybob/percipio)",
			MaxPages:              25,
			MaxDepth:              2,
			CrawlDelay:            1 * time.Second, // Cooperative floor across concurrent jobs
			RespectRobots:         true,
			RobotsCacheTTL:        1 * time.Hour,
			RequestTimeout:        30 * time.Second,
			MaxRedirects:          5,
			MaxBodySize:           10 * 1024 * 1024, // 10MB
			MaxConnections:        32,
			MaxConnectionsPerHost: 4,
			RetryAttempts:         3,
			RetryBackoff:          500 * time.Millisecond,
			HostFailureLimit:      20,
		},
		Scheduler: SchedulerConfig{
			MaxConcurrentTasks: 3,
			TaskTimeout:        "300s",
			RetryAttempts:      3,
			QueueName:          "percipio_jobs",
			VisibilityTimeout:  "5m30s", // Slightly beyond task timeout so running jobs stay claimed
			PollInterval:       "100ms",
			MaxReceive:         4, // One initial delivery plus retry_attempts
		},
		Scorer: ScorerConfig{
			MinImportance:      0.3,
			MinConfidence:      0.3,
			AdaptationInterval: 100,
			RetentionTarget:    0.6,
			RetentionTolerance: 0.1,
			MaxStep:            0.05,
		},
		Search: SearchConfig{
			ResultThreshold:   0.2,
			Deadline:          5 * time.Second,
			RateLimit:         100, // Queries per provider per hour
			MaxResults:        10,
			EnqueueDiscovered: false,
			Serper: ProviderConfig{
				APIKey:  "", // User must provide API key (SERPER_API_KEY or config)
				BaseURL: "https://google.serper.dev/search",
				Trust:   0.9,
			},
			Brave: ProviderConfig{
				APIKey:  "", // User must provide API key (BRAVE_API_KEY or config)
				BaseURL: "https://api.search.brave.com/res/v1/web/search",
				Trust:   0.8,
			},
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files.
// Example: LoadFromFiles("base.toml", "override.toml") - override.toml settings take precedence over base.toml
func LoadFromFiles(paths ...string) (*Config, error) {
	// Start with defaults
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier files)
	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// Apply environment variables (overrides all file configs)
	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: PERCIPIO_ENV, fallback: GO_ENV)
	if env := os.Getenv("PERCIPIO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("PERCIPIO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("PERCIPIO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("PERCIPIO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("PERCIPIO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("PERCIPIO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Crawler configuration
	if userAgent := os.Getenv("PERCIPIO_CRAWLER_USER_AGENT"); userAgent != "" {
		config.Crawler.UserAgent = userAgent
	}
	if maxPages := os.Getenv("PERCIPIO_CRAWLER_MAX_PAGES"); maxPages != "" {
		if mp, err := strconv.Atoi(maxPages); err == nil {
			config.Crawler.MaxPages = mp
		}
	}
	if maxDepth := os.Getenv("PERCIPIO_CRAWLER_MAX_DEPTH"); maxDepth != "" {
		if md, err := strconv.Atoi(maxDepth); err == nil {
			config.Crawler.MaxDepth = md
		}
	}
	if crawlDelay := os.Getenv("PERCIPIO_CRAWLER_CRAWL_DELAY"); crawlDelay != "" {
		if cd, err := time.ParseDuration(crawlDelay); err == nil {
			config.Crawler.CrawlDelay = cd
		}
	}
	if respectRobots := os.Getenv("PERCIPIO_CRAWLER_RESPECT_ROBOTS"); respectRobots != "" {
		if rr, err := strconv.ParseBool(respectRobots); err == nil {
			config.Crawler.RespectRobots = rr
		}
	}
	if requestTimeout := os.Getenv("PERCIPIO_CRAWLER_REQUEST_TIMEOUT"); requestTimeout != "" {
		if rt, err := time.ParseDuration(requestTimeout); err == nil {
			config.Crawler.RequestTimeout = rt
		}
	}
	if maxBodySize := os.Getenv("PERCIPIO_CRAWLER_MAX_BODY_SIZE"); maxBodySize != "" {
		if mbs, err := strconv.ParseInt(maxBodySize, 10, 64); err == nil {
			config.Crawler.MaxBodySize = mbs
		}
	}
	if retryAttempts := os.Getenv("PERCIPIO_CRAWLER_RETRY_ATTEMPTS"); retryAttempts != "" {
		if ra, err := strconv.Atoi(retryAttempts); err == nil {
			config.Crawler.RetryAttempts = ra
		}
	}

	// Scheduler configuration
	if concurrency := os.Getenv("PERCIPIO_SCHEDULER_MAX_CONCURRENT_TASKS"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Scheduler.MaxConcurrentTasks = c
		}
	}
	if taskTimeout := os.Getenv("PERCIPIO_SCHEDULER_TASK_TIMEOUT"); taskTimeout != "" {
		config.Scheduler.TaskTimeout = taskTimeout
	}
	if retryAttempts := os.Getenv("PERCIPIO_SCHEDULER_RETRY_ATTEMPTS"); retryAttempts != "" {
		if ra, err := strconv.Atoi(retryAttempts); err == nil {
			config.Scheduler.RetryAttempts = ra
		}
	}
	if queueName := os.Getenv("PERCIPIO_SCHEDULER_QUEUE_NAME"); queueName != "" {
		config.Scheduler.QueueName = queueName
	}
	if visibilityTimeout := os.Getenv("PERCIPIO_SCHEDULER_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		config.Scheduler.VisibilityTimeout = visibilityTimeout
	}

	// Scorer configuration
	if minImportance := os.Getenv("PERCIPIO_SCORER_MIN_IMPORTANCE"); minImportance != "" {
		if mi, err := strconv.ParseFloat(minImportance, 64); err == nil {
			config.Scorer.MinImportance = mi
		}
	}
	if minConfidence := os.Getenv("PERCIPIO_SCORER_MIN_CONFIDENCE"); minConfidence != "" {
		if mc, err := strconv.ParseFloat(minConfidence, 64); err == nil {
			config.Scorer.MinConfidence = mc
		}
	}
	if retentionTarget := os.Getenv("PERCIPIO_SCORER_RETENTION_TARGET"); retentionTarget != "" {
		if rt, err := strconv.ParseFloat(retentionTarget, 64); err == nil {
			config.Scorer.RetentionTarget = rt
		}
	}

	// Search configuration
	if threshold := os.Getenv("PERCIPIO_SEARCH_RESULT_THRESHOLD"); threshold != "" {
		if t, err := strconv.ParseFloat(threshold, 64); err == nil {
			config.Search.ResultThreshold = t
		}
	}
	if rateLimit := os.Getenv("PERCIPIO_SEARCH_RATE_LIMIT"); rateLimit != "" {
		if rl, err := strconv.Atoi(rateLimit); err == nil {
			config.Search.RateLimit = rl
		}
	}
	if enqueue := os.Getenv("PERCIPIO_SEARCH_ENQUEUE_DISCOVERED"); enqueue != "" {
		if e, err := strconv.ParseBool(enqueue); err == nil {
			config.Search.EnqueueDiscovered = e
		}
	}

	// Provider API keys
	// PERCIPIO_ prefix takes priority over the provider's standard variable
	if apiKey := os.Getenv("SERPER_API_KEY"); apiKey != "" {
		config.Search.Serper.APIKey = apiKey
	}
	if apiKey := os.Getenv("PERCIPIO_SERPER_API_KEY"); apiKey != "" {
		config.Search.Serper.APIKey = apiKey
	}
	if apiKey := os.Getenv("BRAVE_API_KEY"); apiKey != "" {
		config.Search.Brave.APIKey = apiKey
	}
	if apiKey := os.Getenv("PERCIPIO_BRAVE_API_KEY"); apiKey != "" {
		config.Search.Brave.APIKey = apiKey
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks structural constraints and duration strings.
// Called by LoadFromFiles after merging; safe to call again after flag overrides.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	for name, value := range map[string]string{
		"scheduler.task_timeout":       c.Scheduler.TaskTimeout,
		"scheduler.visibility_timeout": c.Scheduler.VisibilityTimeout,
		"scheduler.poll_interval":      c.Scheduler.PollInterval,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s %q: %w", name, value, err)
		}
	}

	return nil
}

// TaskTimeoutDuration returns the parsed per-job timeout, falling back to 300s.
func (c *SchedulerConfig) TaskTimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(c.TaskTimeout); err == nil && d > 0 {
		return d
	}
	return 300 * time.Second
}

// VisibilityTimeoutDuration returns the parsed queue visibility timeout, falling back to 5m30s.
func (c *SchedulerConfig) VisibilityTimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(c.VisibilityTimeout); err == nil && d > 0 {
		return d
	}
	return 5*time.Minute + 30*time.Second
}

// PollIntervalDuration returns the parsed idle poll interval, falling back to 100ms.
func (c *SchedulerConfig) PollIntervalDuration() time.Duration {
	if d, err := time.ParseDuration(c.PollInterval); err == nil && d > 0 {
		return d
	}
	return 100 * time.Millisecond
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// AllowTestURLs returns true if test URLs (localhost, 127.0.0.1, etc.) are allowed
// Test URLs are only allowed in development mode
func (c *Config) AllowTestURLs() bool {
	return !c.IsProduction()
}
