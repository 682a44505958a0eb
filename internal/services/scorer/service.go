// Package scorer computes importance and confidence for extracted
// candidates and decides retention against adaptive thresholds. Retention
// is tracked in windows; when a window closes, thresholds move toward the
// configured target rate by a bounded step and persist atomically.
package scorer

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/percipio/internal/common"
	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
)

// Service scores candidates against the cached threshold singleton. One
// mutex guards both the thresholds and the retention window so decisions
// and adaptations serialize.
type Service struct {
	store  interfaces.ThresholdStorage
	logger arbor.ILogger

	interval  int
	target    float64
	tolerance float64
	maxStep   float64
	seed      common.ScorerConfig

	mu         sync.Mutex
	thresholds *models.AdaptiveThresholds
	window     retentionWindow
}

// NewService creates a scorer with thresholds backed by the given storage.
func NewService(config *common.ScorerConfig, store interfaces.ThresholdStorage, logger arbor.ILogger) interfaces.Scorer {
	s := &Service{
		store:     store,
		logger:    logger,
		interval:  config.AdaptationInterval,
		target:    config.RetentionTarget,
		tolerance: config.RetentionTolerance,
		maxStep:   config.MaxStep,
		seed:      *config,
		window:    newRetentionWindow(),
	}
	if s.interval <= 0 {
		s.interval = 100
	}
	if s.target <= 0 {
		s.target = 0.6
	}
	if s.tolerance <= 0 {
		s.tolerance = 0.1
	}
	if s.maxStep <= 0 {
		s.maxStep = 0.05
	}
	return s
}

// Evaluate scores one candidate and records the keep decision in the
// current retention window. Closing a window may adapt and persist the
// thresholds before this call returns.
func (s *Service) Evaluate(ctx context.Context, candidate *models.Candidate, classification *models.Classification, depth, refs int) (*interfaces.ScoreResult, error) {
	if candidate == nil {
		return nil, models.Kindf(models.ErrBadInput, "candidate is required")
	}
	if classification == nil {
		return nil, models.Kindf(models.ErrBadInput, "classification is required")
	}
	if err := ctx.Err(); err != nil {
		kind, _ := models.KindOf(err)
		return nil, models.WrapKind(kind, err)
	}

	importance := importanceScore(candidate, classification, depth, refs)
	confidence := confidenceScore(candidate, classification)

	s.mu.Lock()
	defer s.mu.Unlock()

	thresholds, err := s.currentLocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load thresholds: %w", err)
	}

	bonus := thresholds.Bonus(classification.Category)
	keep := importance >= thresholds.MinImportance+bonus &&
		confidence >= thresholds.MinConfidence+bonus

	s.window.record(classification.Category, keep)
	if s.window.decided >= s.interval {
		s.adaptLocked(ctx)
	}

	return &interfaces.ScoreResult{
		Importance: importance,
		Confidence: confidence,
		Keep:       keep,
	}, nil
}

// Thresholds returns a copy of the currently effective thresholds.
func (s *Service) Thresholds(ctx context.Context) (*models.AdaptiveThresholds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	thresholds, err := s.currentLocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load thresholds: %w", err)
	}
	return thresholds.Clone(), nil
}

// currentLocked returns the cached thresholds, loading them on first use.
// A never-persisted record is seeded from the configured minimums so a
// fresh database honors the operator's starting point.
func (s *Service) currentLocked(ctx context.Context) (*models.AdaptiveThresholds, error) {
	if s.thresholds != nil {
		return s.thresholds, nil
	}

	thresholds, err := s.store.GetThresholds(ctx)
	if err != nil {
		return nil, err
	}
	if thresholds.Version == 0 {
		if s.seed.MinImportance > 0 {
			thresholds.MinImportance = s.seed.MinImportance
		}
		if s.seed.MinConfidence > 0 {
			thresholds.MinConfidence = s.seed.MinConfidence
		}
	}

	s.thresholds = thresholds
	return thresholds, nil
}
