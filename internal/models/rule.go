package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// RuleType names how a categorization rule's pattern is evaluated.
type RuleType string

const (
	// RuleTypeKeyword matches by case-insensitive substring.
	RuleTypeKeyword RuleType = "keyword"
	// RuleTypeRegex matches by regular expression, bounded by a per-pattern
	// evaluation deadline.
	RuleTypeRegex RuleType = "regex"
	// RuleTypeStructure matches the candidate's structural role, optionally
	// qualified as "role:heading-pattern".
	RuleTypeStructure RuleType = "structure"
	// RuleTypeSemantic matches when enough keywords of a named cluster occur.
	RuleTypeSemantic RuleType = "semantic"
)

// CategorizationRule is a mutable classification rule. Names are unique;
// creating a rule under an existing name is rejected rather than overwritten.
type CategorizationRule struct {
	RuleName        string    `json:"rule_name" badgerhold:"unique"`
	RuleType        RuleType  `json:"rule_type"`
	Pattern         string    `json:"pattern"`
	Category        string    `json:"category" badgerhold:"index"`
	Subcategory     string    `json:"subcategory,omitempty"`
	ConfidenceBoost float64   `json:"confidence_boost"` // [-1,1]
	Priority        int       `json:"priority"`         // lower value wins
	Active          bool      `json:"active" badgerhold:"index"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Validate checks the rule before it is accepted. Regex patterns must
// compile; the boost must stay within [-1,1].
func (r *CategorizationRule) Validate() error {
	if strings.TrimSpace(r.RuleName) == "" {
		return Kindf(ErrBadInput, "rule name is required")
	}
	switch r.RuleType {
	case RuleTypeKeyword, RuleTypeRegex, RuleTypeStructure, RuleTypeSemantic:
	default:
		return Kindf(ErrBadInput, "unknown rule type %q", r.RuleType)
	}
	if strings.TrimSpace(r.Pattern) == "" {
		return Kindf(ErrBadInput, "rule pattern is required")
	}
	if strings.TrimSpace(r.Category) == "" {
		return Kindf(ErrBadInput, "rule category is required")
	}
	if r.ConfidenceBoost < -1 || r.ConfidenceBoost > 1 {
		return Kindf(ErrBadInput, "confidence boost %.2f outside [-1,1]", r.ConfidenceBoost)
	}
	if r.RuleType == RuleTypeRegex {
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return Kindf(ErrBadInput, "invalid regex pattern: %v", err)
		}
	}
	return nil
}

// String renders the rule for log lines.
func (r *CategorizationRule) String() string {
	return fmt.Sprintf("%s[%s p%d -> %s]", r.RuleName, r.RuleType, r.Priority, r.Category)
}
