package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// PageStorage implements the PageStorage interface for Badger
type PageStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPageStorage creates a new PageStorage instance
func NewPageStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PageStorage {
	return &PageStorage{
		db:     db,
		logger: logger,
	}
}

// SavePage inserts or updates a page keyed by PageID. Re-saving an existing
// page refreshes last_seen and the mutable fields without duplicating.
func (s *PageStorage) SavePage(ctx context.Context, page *models.Page) error {
	if page.PageID == "" {
		return models.Kindf(models.ErrBadInput, "page ID is required")
	}

	now := time.Now()
	if page.FetchedAt.IsZero() {
		page.FetchedAt = now
	}
	page.LastSeen = now

	return s.db.WithRetry(ctx, "save page", func() error {
		if err := s.db.Store().Upsert(page.PageID, page); err != nil {
			return fmt.Errorf("failed to save page: %w", err)
		}
		return nil
	})
}

func (s *PageStorage) GetPage(ctx context.Context, pageID string) (*models.Page, error) {
	var page models.Page
	if err := s.db.Store().Get(pageID, &page); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("page not found: %s", pageID)
		}
		return nil, fmt.Errorf("failed to get page: %w", err)
	}
	return &page, nil
}

func (s *PageStorage) GetPageByURL(ctx context.Context, canonicalURL string) (*models.Page, error) {
	return s.GetPage(ctx, models.NewPageID(canonicalURL))
}

func (s *PageStorage) ListPages(ctx context.Context, opts *interfaces.ListOptions) ([]*models.Page, error) {
	query := badgerhold.Where("PageID").Ne("")

	if opts != nil {
		if opts.Domain != "" {
			query = query.And("Domain").Eq(opts.Domain)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
		if opts.OrderDir == "asc" {
			query = query.SortBy("FetchedAt")
		} else {
			query = query.SortBy("FetchedAt").Reverse()
		}
	}

	var pages []models.Page
	if err := s.db.Store().Find(&pages, query); err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}

	result := make([]*models.Page, len(pages))
	for i := range pages {
		result[i] = &pages[i]
	}
	return result, nil
}

func (s *PageStorage) DeletePage(ctx context.Context, pageID string) error {
	if err := s.db.Store().Delete(pageID, &models.Page{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete page: %w", err)
	}
	return nil
}

// HasContentHash reports whether any stored page carries this body hash.
// Used by the crawler to skip pages whose content was already seen under a
// different URL.
func (s *PageStorage) HasContentHash(ctx context.Context, contentHash string) (bool, error) {
	if contentHash == "" {
		return false, nil
	}
	count, err := s.db.Store().Count(&models.Page{}, badgerhold.Where("ContentHash").Eq(contentHash))
	if err != nil {
		return false, fmt.Errorf("failed to check content hash: %w", err)
	}
	return count > 0, nil
}

func (s *PageStorage) CountPages(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Page{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return int(count), nil
}

func (s *PageStorage) CountPagesByStatus(ctx context.Context) (map[string]int, error) {
	var pages []models.Page
	if err := s.db.Store().Find(&pages, nil); err != nil {
		return nil, fmt.Errorf("failed to load pages for status counts: %w", err)
	}

	counts := make(map[string]int)
	for _, page := range pages {
		counts[string(page.Status)]++
	}
	return counts, nil
}

func (s *PageStorage) TopDomains(ctx context.Context, limit int) ([]models.DomainCount, error) {
	var pages []models.Page
	if err := s.db.Store().Find(&pages, nil); err != nil {
		return nil, fmt.Errorf("failed to load pages for domain counts: %w", err)
	}

	counts := make(map[string]int)
	for _, page := range pages {
		if page.Domain != "" {
			counts[page.Domain]++
		}
	}

	domains := make([]models.DomainCount, 0, len(counts))
	for domain, count := range counts {
		domains = append(domains, models.DomainCount{Domain: domain, Count: count})
	}
	sort.Slice(domains, func(i, j int) bool {
		if domains[i].Count != domains[j].Count {
			return domains[i].Count > domains[j].Count
		}
		return domains[i].Domain < domains[j].Domain
	})

	if limit > 0 && len(domains) > limit {
		domains = domains[:limit]
	}
	return domains, nil
}
