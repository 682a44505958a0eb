package interfaces

import (
	"context"

	"github.com/ternarybob/percipio/internal/models"
)

// Categorizer assigns a category, content type and tags to a candidate by
// evaluating stored rules in priority order.
type Categorizer interface {
	Categorize(ctx context.Context, candidate *models.Candidate) (*models.Classification, error)

	// InvalidateRules drops the cached rule set so the next Categorize call
	// reloads from storage. Called after rule mutations.
	InvalidateRules()
}
