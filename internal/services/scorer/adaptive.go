package scorer

import (
	"context"
	"math"
)

// Thresholds stay inside [0.05, 0.95] and per-category bonuses inside
// [-0.2, 0.2]. A category needs a minimum sample in the window before its
// bonus moves, so a handful of decisions cannot swing it.
const (
	thresholdFloor   = 0.05
	thresholdCeiling = 0.95
	bonusLimit       = 0.2
	minCategoryCount = 10
)

type categoryStats struct {
	decided int
	kept    int
}

// retentionWindow accumulates keep decisions between adaptations.
type retentionWindow struct {
	decided    int
	kept       int
	byCategory map[string]*categoryStats
}

func newRetentionWindow() retentionWindow {
	return retentionWindow{byCategory: make(map[string]*categoryStats)}
}

func (w *retentionWindow) record(category string, keep bool) {
	w.decided++
	stats := w.byCategory[category]
	if stats == nil {
		stats = &categoryStats{}
		w.byCategory[category] = stats
	}
	stats.decided++
	if keep {
		w.kept++
		stats.kept++
	}
}

// adaptLocked closes the current window: when retention drifts outside the
// target band, thresholds move by a bounded step and persist. The window
// resets regardless of the outcome. Caller holds s.mu.
func (s *Service) adaptLocked(ctx context.Context) {
	window := s.window
	s.window = newRetentionWindow()
	if window.decided == 0 {
		return
	}

	retention := float64(window.kept) / float64(window.decided)
	delta := s.boundedStep(retention)

	next := s.thresholds.Clone()
	changed := false
	if delta != 0 {
		next.MinImportance = clampThreshold(next.MinImportance + delta)
		next.MinConfidence = clampThreshold(next.MinConfidence + delta/2)
		changed = true
	}

	for category, stats := range window.byCategory {
		if stats.decided < minCategoryCount {
			continue
		}
		catDelta := s.boundedStep(float64(stats.kept) / float64(stats.decided))
		if catDelta == 0 {
			continue
		}
		if next.CategoryBonus == nil {
			next.CategoryBonus = make(map[string]float64)
		}
		next.CategoryBonus[category] = clampBonus(next.CategoryBonus[category] + catDelta)
		changed = true
	}

	if !changed {
		s.logger.Debug().
			Int("decided", window.decided).
			Int("kept", window.kept).
			Msg("Retention within target band, thresholds unchanged")
		return
	}

	if err := s.store.SaveThresholds(ctx, next); err != nil {
		// Keep serving the last persisted copy; the next window retries.
		s.logger.Warn().Err(err).Msg("Failed to persist adapted thresholds")
		return
	}

	fresh, err := s.store.GetThresholds(ctx)
	if err != nil {
		s.thresholds = next
	} else {
		s.thresholds = fresh
	}

	s.logger.Info().
		Float64("retention", retention).
		Float64("min_importance", s.thresholds.MinImportance).
		Float64("min_confidence", s.thresholds.MinConfidence).
		Int64("version", s.thresholds.Version).
		Msg("Adapted scoring thresholds")
}

// boundedStep converts a window retention rate into a threshold delta:
// zero inside the tolerance band, otherwise half the drift capped at the
// configured max step.
func (s *Service) boundedStep(retention float64) float64 {
	diff := retention - s.target
	if math.Abs(diff) <= s.tolerance {
		return 0
	}
	step := 0.5 * diff
	if step > s.maxStep {
		return s.maxStep
	}
	if step < -s.maxStep {
		return -s.maxStep
	}
	return step
}

func clampThreshold(v float64) float64 {
	if v > thresholdCeiling {
		return thresholdCeiling
	}
	if v < thresholdFloor {
		return thresholdFloor
	}
	return v
}

func clampBonus(v float64) float64 {
	if v > bonusLimit {
		return bonusLimit
	}
	if v < -bonusLimit {
		return -bonusLimit
	}
	return v
}
