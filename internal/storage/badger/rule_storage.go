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

// RuleStorage implements the RuleStorage interface for Badger
type RuleStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRuleStorage creates a new RuleStorage instance
func NewRuleStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RuleStorage {
	return &RuleStorage{
		db:     db,
		logger: logger,
	}
}

// CreateRule inserts a new rule. Names are unique; creating a rule under an
// existing name fails rather than overwriting.
func (s *RuleStorage) CreateRule(ctx context.Context, rule *models.CategorizationRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	now := time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	return s.db.WithRetry(ctx, "create rule", func() error {
		if err := s.db.Store().Insert(rule.RuleName, rule); err != nil {
			if err == badgerhold.ErrKeyExists {
				return models.Kindf(models.ErrBadInput, "rule %q already exists", rule.RuleName)
			}
			return fmt.Errorf("failed to create rule: %w", err)
		}
		return nil
	})
}

func (s *RuleStorage) GetRule(ctx context.Context, name string) (*models.CategorizationRule, error) {
	var rule models.CategorizationRule
	if err := s.db.Store().Get(name, &rule); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("rule not found: %s", name)
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return &rule, nil
}

// ListRules returns rules ordered by priority ascending; equal priorities
// fall back to creation time so evaluation order is deterministic
func (s *RuleStorage) ListRules(ctx context.Context, activeOnly bool) ([]*models.CategorizationRule, error) {
	var rules []models.CategorizationRule

	var query *badgerhold.Query
	if activeOnly {
		query = badgerhold.Where("Active").Eq(true)
	}
	if err := s.db.Store().Find(&rules, query); err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})

	result := make([]*models.CategorizationRule, len(rules))
	for i := range rules {
		result[i] = &rules[i]
	}
	return result, nil
}

func (s *RuleStorage) UpdateRule(ctx context.Context, rule *models.CategorizationRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	existing, err := s.GetRule(ctx, rule.RuleName)
	if err != nil {
		return err
	}
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()

	return s.db.WithRetry(ctx, "update rule", func() error {
		if err := s.db.Store().Upsert(rule.RuleName, rule); err != nil {
			return fmt.Errorf("failed to update rule: %w", err)
		}
		return nil
	})
}

func (s *RuleStorage) CountRules(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.CategorizationRule{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count rules: %w", err)
	}
	return int(count), nil
}
