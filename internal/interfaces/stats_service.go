package interfaces

import (
	"context"

	"github.com/ternarybob/percipio/internal/models"
)

// StatsService aggregates corpus statistics across pages, bits, cross
// references, jobs and thresholds
type StatsService interface {
	GetStatistics(ctx context.Context) (*models.LearningStatistics, error)
}
