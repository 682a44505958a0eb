package interfaces

import (
	"context"

	"github.com/ternarybob/percipio/internal/models"
)

// ScoreResult carries the scoring outcome for one candidate
type ScoreResult struct {
	Importance float64 // [0,1]
	Confidence float64 // [0,1]
	Keep       bool    // true when both scores clear their thresholds
}

// Scorer computes importance and confidence for candidates and decides
// retention against adaptive thresholds. Implementations track retention
// over time and nudge thresholds toward the configured target rate.
type Scorer interface {
	// Evaluate scores one candidate. depth is the page depth within the
	// crawl; refs is the inbound cross-reference count, zero for new bits.
	Evaluate(ctx context.Context, candidate *models.Candidate, classification *models.Classification, depth, refs int) (*ScoreResult, error)

	// Thresholds returns the currently effective thresholds
	Thresholds(ctx context.Context) (*models.AdaptiveThresholds, error)
}
