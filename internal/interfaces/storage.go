package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/percipio/internal/models"
)

// ListOptions for listing stored records
type ListOptions struct {
	Limit    int
	Offset   int
	State    string // Filter jobs by state (empty = all)
	Domain   string // Filter pages by domain (empty = all)
	OrderBy  string // created_at (default)
	OrderDir string // asc|desc (default desc)
}

// PageStorage - interface for crawled page persistence
type PageStorage interface {
	// SavePage inserts or updates a page keyed by its canonical URL hash.
	// Re-saving an existing page refreshes last_seen without duplicating.
	SavePage(ctx context.Context, page *models.Page) error
	GetPage(ctx context.Context, pageID string) (*models.Page, error)
	GetPageByURL(ctx context.Context, canonicalURL string) (*models.Page, error)
	ListPages(ctx context.Context, opts *ListOptions) ([]*models.Page, error)
	DeletePage(ctx context.Context, pageID string) error

	// HasContentHash reports whether any page already carries this body hash
	HasContentHash(ctx context.Context, contentHash string) (bool, error)

	// Stats operations
	CountPages(ctx context.Context) (int, error)
	CountPagesByStatus(ctx context.Context) (map[string]int, error)
	TopDomains(ctx context.Context, limit int) ([]models.DomainCount, error)
}

// BitStorage - interface for learning bit persistence and full-text search
type BitStorage interface {
	// SaveBit stores a single bit and its search index entries in one transaction
	SaveBit(ctx context.Context, bit *models.LearningBit) error

	// SaveBits stores bits in batched transactions, index updated alongside.
	// A batch is atomic: either every bit and its index entries land or none do.
	SaveBits(ctx context.Context, bits []*models.LearningBit) error

	GetBit(ctx context.Context, bitID string) (*models.LearningBit, error)
	QueryBits(ctx context.Context, filter *models.BitFilter) ([]*models.LearningBit, error)

	// DeleteBit soft-deletes: the record is kept for history but dropped
	// from the search index, queries and counts. Bit content is immutable,
	// so deletion is the only mutation besides the reference counter.
	DeleteBit(ctx context.Context, bitID string) error

	// SearchBits runs a token search over indexed content, ranked by match
	// count then importance then recency
	SearchBits(ctx context.Context, query string, limit int) ([]*models.LearningBit, error)

	// IncrementReference counts one retrieval of the bit. Retrieval counts
	// feed importance scoring and statistics.
	IncrementReference(ctx context.Context, bitID string) error

	// Stats operations
	CountBits(ctx context.Context) (int, error)
	CountBitsSince(ctx context.Context, since time.Time) (int, error)
	CountByCategory(ctx context.Context) (map[string]int, error)
	CountByContentType(ctx context.Context) (map[string]int, error)
	CountByComplexity(ctx context.Context) (map[string]int, error)
	AverageScores(ctx context.Context) (importance float64, confidence float64, err error)
}

// CrossRefStorage - interface for bit-to-bit relationship persistence
type CrossRefStorage interface {
	SaveCrossRef(ctx context.Context, ref *models.CrossReference) error
	GetRefsForBit(ctx context.Context, bitID string) ([]*models.CrossReference, error)
	DeleteRefsForBit(ctx context.Context, bitID string) error
	CountCrossRefs(ctx context.Context) (int, error)
}

// RuleStorage - interface for categorization rule persistence. Rules are
// deactivated rather than deleted so classified bits keep their provenance.
type RuleStorage interface {
	// CreateRule fails when a rule with the same name already exists
	CreateRule(ctx context.Context, rule *models.CategorizationRule) error
	GetRule(ctx context.Context, name string) (*models.CategorizationRule, error)

	// ListRules returns rules ordered by priority ascending, ties broken by
	// created_at ascending
	ListRules(ctx context.Context, activeOnly bool) ([]*models.CategorizationRule, error)

	UpdateRule(ctx context.Context, rule *models.CategorizationRule) error
	CountRules(ctx context.Context) (int, error)
}

// JobStorage - interface for crawl job persistence
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.CrawlJob) error
	GetJob(ctx context.Context, jobID string) (*models.CrawlJob, error)
	ListJobs(ctx context.Context, opts *ListOptions) ([]*models.CrawlJob, error)
	DeleteJob(ctx context.Context, jobID string) error
	CountJobsByState(ctx context.Context) (map[string]int, error)

	// GetStaleRunningJobs returns running jobs whose heartbeat is older than the cutoff
	GetStaleRunningJobs(ctx context.Context, cutoff time.Time) ([]*models.CrawlJob, error)
}

// SearchLogStorage - interface for web search metrics persistence
type SearchLogStorage interface {
	LogResults(ctx context.Context, records []*models.SearchRecord) error
	RecentSearches(ctx context.Context, since time.Time, limit int) ([]*models.SearchRecord, error)
	CountSearches(ctx context.Context) (int, error)
}

// ThresholdStorage - interface for adaptive scoring threshold persistence
type ThresholdStorage interface {
	// GetThresholds returns stored thresholds, or defaults when none saved yet
	GetThresholds(ctx context.Context) (*models.AdaptiveThresholds, error)

	// SaveThresholds replaces the stored thresholds atomically
	SaveThresholds(ctx context.Context, thresholds *models.AdaptiveThresholds) error
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	PageStorage() PageStorage
	BitStorage() BitStorage
	CrossRefStorage() CrossRefStorage
	RuleStorage() RuleStorage
	JobStorage() JobStorage
	SearchLogStorage() SearchLogStorage
	ThresholdStorage() ThresholdStorage
	DB() interface{}
	Close() error
}
