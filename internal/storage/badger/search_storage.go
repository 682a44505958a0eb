package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// SearchLogStorage implements the SearchLogStorage interface for Badger.
// Every dispatched web search appends one record per surviving result so
// statistics can report provider activity and result quality over time.
type SearchLogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSearchLogStorage creates a new SearchLogStorage instance
func NewSearchLogStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SearchLogStorage {
	return &SearchLogStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SearchLogStorage) LogResults(ctx context.Context, records []*models.SearchRecord) error {
	return s.db.WithRetry(ctx, "log search results", func() error {
		for _, record := range records {
			if record.Timestamp.IsZero() {
				record.Timestamp = time.Now()
			}
			if err := s.db.Store().Insert(badgerhold.NextSequence(), record); err != nil {
				return fmt.Errorf("failed to log search record: %w", err)
			}
		}
		return nil
	})
}

func (s *SearchLogStorage) RecentSearches(ctx context.Context, since time.Time, limit int) ([]*models.SearchRecord, error) {
	query := badgerhold.Where("Timestamp").Ge(since).SortBy("Timestamp").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []models.SearchRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to load recent searches: %w", err)
	}

	result := make([]*models.SearchRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

func (s *SearchLogStorage) CountSearches(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.SearchRecord{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count search records: %w", err)
	}
	return int(count), nil
}
