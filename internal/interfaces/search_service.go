package interfaces

import (
	"context"

	"github.com/ternarybob/percipio/internal/models"
)

// SearchProvider is the adapter contract for external web search APIs.
// Implementations translate provider responses into ProviderResult values
// with 1-based ranks; transport and quota errors surface as classified errors.
type SearchProvider interface {
	// Name identifies the provider in logs and result attribution
	Name() string

	// Trust is the provider's source weight in relevance scoring, [0,1]
	Trust() float64

	// Query runs a search and returns up to limit ranked results
	Query(ctx context.Context, text string, limit int) ([]models.ProviderResult, error)
}

// SearchService fans a query out to all enabled providers, merges and
// deduplicates results by canonical URL, scores relevance and filters
// low-scoring results. With no providers configured it returns an empty
// result set with a reason rather than an error.
type SearchService interface {
	Search(ctx context.Context, query string, limit int) (*models.SearchResponse, error)

	// ProviderNames returns the enabled providers in registration order
	ProviderNames() []string
}
