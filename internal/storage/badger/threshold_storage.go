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

// thresholdKey is the single record key for the current thresholds
const thresholdKey = "current"

// ThresholdStorage implements the ThresholdStorage interface for Badger
type ThresholdStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewThresholdStorage creates a new ThresholdStorage instance
func NewThresholdStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ThresholdStorage {
	return &ThresholdStorage{
		db:     db,
		logger: logger,
	}
}

// GetThresholds returns the stored thresholds, or defaults when none have
// been persisted yet
func (s *ThresholdStorage) GetThresholds(ctx context.Context) (*models.AdaptiveThresholds, error) {
	var thresholds models.AdaptiveThresholds
	if err := s.db.Store().Get(thresholdKey, &thresholds); err != nil {
		if err == badgerhold.ErrNotFound {
			return models.DefaultThresholds(), nil
		}
		return nil, fmt.Errorf("failed to get thresholds: %w", err)
	}
	return &thresholds, nil
}

// SaveThresholds replaces the stored thresholds in one write. The version
// counter increments on every save so readers can detect updates.
func (s *ThresholdStorage) SaveThresholds(ctx context.Context, thresholds *models.AdaptiveThresholds) error {
	if thresholds == nil {
		return models.Kindf(models.ErrBadInput, "thresholds must not be nil")
	}

	saved := thresholds.Clone()
	saved.UpdatedAt = time.Now()
	saved.Version++

	return s.db.WithRetry(ctx, "save thresholds", func() error {
		if err := s.db.Store().Upsert(thresholdKey, saved); err != nil {
			return fmt.Errorf("failed to save thresholds: %w", err)
		}
		return nil
	})
}
