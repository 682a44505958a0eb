package interfaces

import (
	"context"

	"github.com/ternarybob/percipio/internal/models"
)

// Extractor turns raw HTML into candidate learning bits and discovered links.
// Boilerplate regions (navigation, scripts, footers) are stripped before
// candidate generation; links come back canonicalized and deduplicated.
type Extractor interface {
	Extract(ctx context.Context, pageURL string, body []byte) (*models.ExtractionResult, error)
}
