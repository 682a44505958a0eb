package scorer

import (
	"math"

	"github.com/ternarybob/percipio/internal/models"
)

// Importance is a logistic squash over a weighted feature sum. The center
// and slope are fixed so that a short heading-paragraph on a shallow page
// lands mid-range and a long matched candidate approaches 1.
const (
	weightLength    = 1.0
	weightStructure = 0.8
	weightKeywords  = 1.2
	weightDepth     = 0.4
	weightRefs      = 0.6

	featureCenter = 1.2
	logisticSlope = 2.2

	midRangeLowWords  = 40
	midRangeHighWords = 400
)

func importanceScore(candidate *models.Candidate, classification *models.Classification, depth, refs int) float64 {
	sum := weightLength*lengthFeature(candidate.WordCount) +
		weightStructure*structureFeature(candidate.Role) +
		weightKeywords*keywordFeature(classification) +
		weightDepth*depthFeature(depth) +
		weightRefs*refsFeature(refs)

	return logistic(logisticSlope * (sum - featureCenter))
}

// confidenceScore starts at 0.5 and moves by rule matches, the boost sum,
// language certainty and boilerplate signals, clamped to [0,1].
func confidenceScore(candidate *models.Candidate, classification *models.Classification) float64 {
	conf := 0.5
	conf += math.Min(0.24, 0.08*float64(classification.MatchedRules))
	conf += 0.2 * classification.ConfidenceBoost
	conf += 0.1 * candidate.LanguageCertainty
	if candidate.Boilerplate {
		conf -= 0.15
	} else {
		conf += 0.15
	}
	return clamp01(conf)
}

// lengthFeature prefers mid-range spans: a ramp up to 40 words, flat
// through 400, then a decline reaching zero at 1000.
func lengthFeature(words int) float64 {
	switch {
	case words <= 0:
		return 0
	case words < midRangeLowWords:
		return float64(words) / float64(midRangeLowWords)
	case words <= midRangeHighWords:
		return 1
	default:
		f := 1 - float64(words-midRangeHighWords)/600.0
		if f < 0 {
			return 0
		}
		return f
	}
}

func structureFeature(role models.StructuralRole) float64 {
	switch role {
	case models.RoleHeadingParagraph, models.RoleDefinition, models.RoleCodeBlock, models.RoleTutorialStep:
		return 1
	case models.RoleListItem, models.RoleBlockquote:
		return 0.5
	default:
		return 0
	}
}

// keywordFeature saturates at three matched rules.
func keywordFeature(classification *models.Classification) float64 {
	f := float64(classification.MatchedRules) / 3
	if f > 1 {
		return 1
	}
	return f
}

// depthFeature weighs shallow pages more: 1 at the seed, falling as 1/(1+d).
func depthFeature(depth int) float64 {
	if depth < 0 {
		return 1
	}
	return 1 / float64(1+depth)
}

// refsFeature saturates as inbound references grow.
func refsFeature(refs int) float64 {
	if refs <= 0 {
		return 0
	}
	return float64(refs) / float64(refs+3)
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
