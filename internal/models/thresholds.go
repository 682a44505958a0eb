package models

import "time"

// AdaptiveThresholds is the singleton score cutoff tuple consulted on every
// keep decision and updated by the adaptive loop. Version increments on
// every persisted adaptation step.
type AdaptiveThresholds struct {
	MinImportance float64            `json:"min_importance"`
	MinConfidence float64            `json:"min_confidence"`
	CategoryBonus map[string]float64 `json:"category_bonus,omitempty"`
	UpdatedAt     time.Time          `json:"updated_at"`
	Version       int64              `json:"version"`
}

// DefaultThresholds returns the cutoffs used before any adaptation ran.
func DefaultThresholds() *AdaptiveThresholds {
	return &AdaptiveThresholds{
		MinImportance: 0.3,
		MinConfidence: 0.3,
		CategoryBonus: map[string]float64{},
	}
}

// Bonus returns the per-category adjustment, zero when none is recorded.
func (t *AdaptiveThresholds) Bonus(category string) float64 {
	if t.CategoryBonus == nil {
		return 0
	}
	return t.CategoryBonus[category]
}

// Clone returns a deep copy so readers never share the bonus map with the
// adaptive writer.
func (t *AdaptiveThresholds) Clone() *AdaptiveThresholds {
	cp := *t
	cp.CategoryBonus = make(map[string]float64, len(t.CategoryBonus))
	for k, v := range t.CategoryBonus {
		cp.CategoryBonus[k] = v
	}
	return &cp
}
