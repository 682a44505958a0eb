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

// CrossRefStorage implements the CrossRefStorage interface for Badger
type CrossRefStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCrossRefStorage creates a new CrossRefStorage instance
func NewCrossRefStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CrossRefStorage {
	return &CrossRefStorage{
		db:     db,
		logger: logger,
	}
}

// SaveCrossRef upserts a reference keyed by its (source, target, relation)
// triple, so re-discovering a relation never duplicates it
func (s *CrossRefStorage) SaveCrossRef(ctx context.Context, ref *models.CrossReference) error {
	if !ref.Valid() {
		return models.Kindf(models.ErrBadInput, "cross reference failed validation: %s -> %s", ref.SourceBitID, ref.TargetBitID)
	}
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = time.Now()
	}

	return s.db.WithRetry(ctx, "save cross reference", func() error {
		if err := s.db.Store().Upsert(ref.Key(), ref); err != nil {
			return fmt.Errorf("failed to save cross reference: %w", err)
		}
		return nil
	})
}

// GetRefsForBit returns references where the bit appears on either side
func (s *CrossRefStorage) GetRefsForBit(ctx context.Context, bitID string) ([]*models.CrossReference, error) {
	var refs []models.CrossReference
	err := s.db.Store().Find(&refs,
		badgerhold.Where("SourceBitID").Eq(bitID).Or(badgerhold.Where("TargetBitID").Eq(bitID)))
	if err != nil {
		return nil, fmt.Errorf("failed to get cross references: %w", err)
	}

	result := make([]*models.CrossReference, len(refs))
	for i := range refs {
		result[i] = &refs[i]
	}
	return result, nil
}

func (s *CrossRefStorage) DeleteRefsForBit(ctx context.Context, bitID string) error {
	err := s.db.Store().DeleteMatching(&models.CrossReference{},
		badgerhold.Where("SourceBitID").Eq(bitID).Or(badgerhold.Where("TargetBitID").Eq(bitID)))
	if err != nil {
		return fmt.Errorf("failed to delete cross references: %w", err)
	}
	return nil
}

func (s *CrossRefStorage) CountCrossRefs(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.CrossReference{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count cross references: %w", err)
	}
	return int(count), nil
}
