// Package stats aggregates corpus-wide statistics for the statistics
// tool and the HTTP stats endpoint.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
)

const (
	recentWindow    = 7 * 24 * time.Hour
	topDomainsLimit = 10
)

// Service assembles LearningStatistics from the storage counters and the
// scorer's effective thresholds.
type Service struct {
	storage interfaces.StorageManager
	scorer  interfaces.Scorer
	logger  arbor.ILogger
}

// NewService creates the statistics aggregator.
func NewService(storage interfaces.StorageManager, scorer interfaces.Scorer, logger arbor.ILogger) interfaces.StatsService {
	return &Service{
		storage: storage,
		scorer:  scorer,
		logger:  logger,
	}
}

// GetStatistics counts the stored corpus and snapshots the current
// thresholds. Counts run against live storage, so concurrent crawls can
// shift numbers between reads; the result is a consistent-enough view
// for reporting, not a transaction.
func (s *Service) GetStatistics(ctx context.Context) (*models.LearningStatistics, error) {
	if err := ctx.Err(); err != nil {
		kind, _ := models.KindOf(err)
		return nil, models.WrapKind(kind, err)
	}

	stats := &models.LearningStatistics{
		RecentWindow: recentWindow,
		GeneratedAt:  time.Now().UTC(),
	}

	var err error
	if stats.TotalPages, err = s.storage.PageStorage().CountPages(ctx); err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}
	if stats.TotalBits, err = s.storage.BitStorage().CountBits(ctx); err != nil {
		return nil, fmt.Errorf("failed to count bits: %w", err)
	}
	if stats.TotalCrossRefs, err = s.storage.CrossRefStorage().CountCrossRefs(ctx); err != nil {
		return nil, fmt.Errorf("failed to count cross references: %w", err)
	}
	if stats.TotalRules, err = s.storage.RuleStorage().CountRules(ctx); err != nil {
		return nil, fmt.Errorf("failed to count rules: %w", err)
	}
	if stats.TotalSearches, err = s.storage.SearchLogStorage().CountSearches(ctx); err != nil {
		return nil, fmt.Errorf("failed to count searches: %w", err)
	}
	if stats.RecentBits, err = s.storage.BitStorage().CountBitsSince(ctx, time.Now().Add(-recentWindow)); err != nil {
		return nil, fmt.Errorf("failed to count recent bits: %w", err)
	}
	if stats.BitsByCategory, err = s.storage.BitStorage().CountByCategory(ctx); err != nil {
		return nil, fmt.Errorf("failed to count bits by category: %w", err)
	}
	if stats.BitsByContentType, err = s.storage.BitStorage().CountByContentType(ctx); err != nil {
		return nil, fmt.Errorf("failed to count bits by content type: %w", err)
	}
	if stats.BitsByComplexity, err = s.storage.BitStorage().CountByComplexity(ctx); err != nil {
		return nil, fmt.Errorf("failed to count bits by complexity: %w", err)
	}
	if stats.AvgImportance, stats.AvgConfidence, err = s.storage.BitStorage().AverageScores(ctx); err != nil {
		return nil, fmt.Errorf("failed to average scores: %w", err)
	}
	if stats.PagesByStatus, err = s.storage.PageStorage().CountPagesByStatus(ctx); err != nil {
		return nil, fmt.Errorf("failed to count pages by status: %w", err)
	}
	if stats.TopDomains, err = s.storage.PageStorage().TopDomains(ctx, topDomainsLimit); err != nil {
		return nil, fmt.Errorf("failed to rank domains: %w", err)
	}
	if stats.JobsByState, err = s.storage.JobStorage().CountJobsByState(ctx); err != nil {
		return nil, fmt.Errorf("failed to count jobs by state: %w", err)
	}

	thresholds, err := s.scorer.Thresholds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read thresholds: %w", err)
	}
	stats.Thresholds = *thresholds

	s.logger.Debug().
		Int("pages", stats.TotalPages).
		Int("bits", stats.TotalBits).
		Int("cross_refs", stats.TotalCrossRefs).
		Msg("Statistics assembled")
	return stats, nil
}
