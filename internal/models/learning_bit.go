package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// ContentType classifies the structural nature of a learning bit.
type ContentType string

const (
	ContentTypeConcept      ContentType = "concept"
	ContentTypeDefinition   ContentType = "definition"
	ContentTypeExample      ContentType = "example"
	ContentTypeTutorialStep ContentType = "tutorial-step"
	ContentTypeCode         ContentType = "code"
	ContentTypeReference    ContentType = "reference"
	ContentTypeOther        ContentType = "other"
)

// ComplexityLevel is the audience bucket assigned to a learning bit.
type ComplexityLevel string

const (
	ComplexityBeginner     ComplexityLevel = "beginner"
	ComplexityIntermediate ComplexityLevel = "intermediate"
	ComplexityAdvanced     ComplexityLevel = "advanced"
)

// CategoryUncategorized is assigned when no categorization rule matches.
const CategoryUncategorized = "uncategorized"

// MaxContextLength bounds the surrounding-context excerpt stored per bit.
const MaxContextLength = 1000

// LearningBit is one extracted knowledge unit: a definition, example,
// concept, code snippet, or tutorial step with classification and scores.
// Content is immutable after insert; only ReferenceCount and the Deleted
// flag change afterwards.
type LearningBit struct {
	BitID           string          `json:"bit_id" badgerhold:"unique"` // SHA-256 over page_id + normalized content
	PageID          string          `json:"page_id" badgerhold:"index"`
	Content         string          `json:"content"`
	Context         string          `json:"context,omitempty"`
	ContentType     ContentType     `json:"content_type" badgerhold:"index"`
	Category        string          `json:"category" badgerhold:"index"`
	Subcategory     string          `json:"subcategory,omitempty"`
	ComplexityLevel ComplexityLevel `json:"complexity_level" badgerhold:"index"`
	ImportanceScore float64         `json:"importance_score"`
	ConfidenceScore float64         `json:"confidence_score"`
	Tags            []string        `json:"tags,omitempty"`
	ExtractedAt     time.Time       `json:"extracted_at"`
	ReferenceCount  int             `json:"reference_count"`
	Deleted         bool            `json:"deleted,omitempty"`
}

// NewBitID derives the stable bit identifier from its page and normalized
// content. Normalization collapses whitespace and lowercases so trivial
// formatting differences do not create duplicate bits.
func NewBitID(pageID, content string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(content), " "))
	sum := sha256.Sum256([]byte(pageID + "|" + normalized))
	return hex.EncodeToString(sum[:])
}

// Valid reports whether the bit satisfies its stored invariants.
func (b *LearningBit) Valid() bool {
	if b.BitID == "" || b.PageID == "" || strings.TrimSpace(b.Content) == "" {
		return false
	}
	if b.ImportanceScore < 0 || b.ImportanceScore > 1 {
		return false
	}
	if b.ConfidenceScore < 0 || b.ConfidenceScore > 1 {
		return false
	}
	return true
}

// ToJSON serializes the bit for storage and transport.
func (b *LearningBit) ToJSON() (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// BitFilter narrows QueryBits results. Zero values mean "no constraint".
type BitFilter struct {
	Category      string          `json:"category,omitempty"`
	Subcategory   string          `json:"subcategory,omitempty"`
	ContentType   ContentType     `json:"content_type,omitempty"`
	Complexity    ComplexityLevel `json:"complexity,omitempty"`
	MinImportance float64         `json:"min_importance,omitempty"`
	Limit         int             `json:"limit,omitempty"`
	Offset        int             `json:"offset,omitempty"`
}
