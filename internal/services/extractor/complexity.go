package extractor

import (
	"strings"

	"github.com/ternarybob/percipio/internal/models"
)

// estimateComplexity buckets a span by token count and vocabulary
// sophistication. The four-way estimate (simple, moderate, complex,
// very-complex) folds into the stored three-level audience scale, with the
// top two buckets both reading as advanced.
func estimateComplexity(text string, role models.StructuralRole) models.ComplexityLevel {
	words := strings.Fields(text)
	if len(words) == 0 {
		return models.ComplexityBeginner
	}

	totalLen := 0
	longWords := 0
	for _, word := range words {
		word = strings.Trim(word, ".,;:!?\"'()[]")
		totalLen += len(word)
		if len(word) >= 9 {
			longWords++
		}
	}
	avgLen := float64(totalLen) / float64(len(words))
	longRatio := float64(longWords) / float64(len(words))

	score := 0
	if len(words) > 60 {
		score++
	}
	if len(words) > 150 {
		score++
	}
	if avgLen > 5.5 {
		score++
	}
	// ratio is too noisy on tiny spans
	if longRatio > 0.15 && len(words) >= 8 {
		score++
	}
	if role == models.RoleCodeBlock {
		score++
	}

	switch {
	case score <= 1:
		return models.ComplexityBeginner
	case score == 2:
		return models.ComplexityIntermediate
	default:
		return models.ComplexityAdvanced
	}
}
