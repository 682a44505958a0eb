package models

// StructuralRole names where in the document tree a candidate span came
// from. Content types derive from the role, not from rules.
type StructuralRole string

const (
	RoleHeadingParagraph StructuralRole = "heading-paragraph"
	RoleDefinition       StructuralRole = "definition"
	RoleListItem         StructuralRole = "list-item"
	RoleTutorialStep     StructuralRole = "tutorial-step"
	RoleCodeBlock        StructuralRole = "code-block"
	RoleBlockquote       StructuralRole = "blockquote"
	RoleParagraph        StructuralRole = "paragraph"
)

// ContentTypeForRole maps a structural role onto the bit content type.
func ContentTypeForRole(role StructuralRole) ContentType {
	switch role {
	case RoleCodeBlock:
		return ContentTypeCode
	case RoleDefinition:
		return ContentTypeDefinition
	case RoleTutorialStep:
		return ContentTypeTutorialStep
	case RoleHeadingParagraph:
		return ContentTypeConcept
	case RoleBlockquote:
		return ContentTypeReference
	case RoleListItem:
		return ContentTypeExample
	default:
		return ContentTypeOther
	}
}

// Candidate is one span enumerated by the extractor, before classification
// and scoring.
type Candidate struct {
	RawText string `json:"raw_text"`
	// Context is the surrounding text, bounded to MaxContextLength.
	Context string `json:"context,omitempty"`
	// Heading is the nearest ancestor heading text, used by structure rules.
	Heading    string          `json:"heading,omitempty"`
	Role       StructuralRole  `json:"structural_role"`
	Position   int             `json:"position"` // order within the document
	WordCount  int             `json:"word_count"`
	Complexity ComplexityLevel `json:"complexity"`
	// LanguageCertainty is the page-level detection certainty, stamped by
	// the extractor and consumed as a scoring confidence feature.
	LanguageCertainty float64 `json:"language_certainty,omitempty"`
	// Boilerplate marks spans that survived stripping but still look like
	// chrome; scorers penalize confidence for them.
	Boilerplate bool `json:"boilerplate,omitempty"`
}

// Classification is the categorizer's verdict for one candidate.
type Classification struct {
	Category        string      `json:"category"`
	Subcategory     string      `json:"subcategory,omitempty"`
	ContentType     ContentType `json:"content_type"`
	Tags            []string    `json:"tags,omitempty"`
	ConfidenceBoost float64     `json:"confidence_boost"` // clamped [-1,1]
	MatchedRules    int         `json:"matched_rules"`
}

// ExtractionResult is everything the extractor produced for one page.
type ExtractionResult struct {
	Title             string      `json:"title"`
	Language          string      `json:"language"`
	LanguageCertainty float64     `json:"language_certainty"`
	Candidates        []Candidate `json:"candidates"`
	Links             []string    `json:"links"` // canonical outbound URLs
}
