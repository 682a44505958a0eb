// Package categorizer assigns categories, tags and confidence boosts to
// extracted candidates by evaluating the stored rule set in priority order.
package categorizer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
)

// regexDeadline bounds how long a single regex rule may hold the pipeline.
// A rule that exceeds it is skipped and logged, never a job error.
const regexDeadline = 100 * time.Millisecond

// ruleSet is one immutable snapshot of the active rules. Snapshots are
// replaced wholesale on invalidation, never mutated.
type ruleSet struct {
	rules       []*models.CategorizationRule
	compiled    map[string]*regexp.Regexp
	hasSemantic bool
}

// Service evaluates categorization rules against candidates. Rules are
// cached after the first load and dropped on InvalidateRules.
type Service struct {
	store  interfaces.RuleStorage
	logger arbor.ILogger

	mu    sync.RWMutex
	cache *ruleSet
}

// NewService creates a rule-driven categorizer backed by the given storage.
func NewService(store interfaces.RuleStorage, logger arbor.ILogger) interfaces.Categorizer {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Categorize evaluates all active rules against the candidate. The first
// match sets category and subcategory; every match appends a tag derived
// from the rule name and adds its confidence boost, with the running sum
// clamped to [-1,1]. The content type always derives from the structural
// role, so an unmatched code block still persists as code.
func (s *Service) Categorize(ctx context.Context, candidate *models.Candidate) (*models.Classification, error) {
	if candidate == nil {
		return nil, models.Kindf(models.ErrBadInput, "candidate is required")
	}
	if err := ctx.Err(); err != nil {
		kind, _ := models.KindOf(err)
		return nil, models.WrapKind(kind, err)
	}

	set, err := s.ruleSet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categorization rules: %w", err)
	}

	result := &models.Classification{
		Category:    models.CategoryUncategorized,
		ContentType: models.ContentTypeForRole(candidate.Role),
	}

	lowered := strings.ToLower(candidate.RawText)
	var tokens map[string]struct{}
	if set.hasSemantic {
		tokens = tokenSet(lowered)
	}

	for _, rule := range set.rules {
		if !s.matches(rule, set.compiled[rule.RuleName], candidate, lowered, tokens) {
			continue
		}
		if result.MatchedRules == 0 {
			result.Category = rule.Category
			result.Subcategory = rule.Subcategory
		}
		result.Tags = append(result.Tags, tagForRule(rule.RuleName))
		result.ConfidenceBoost = clampBoost(result.ConfidenceBoost + rule.ConfidenceBoost)
		result.MatchedRules++
	}

	return result, nil
}

// InvalidateRules drops the cached rule set. The next Categorize call
// reloads from storage.
func (s *Service) InvalidateRules() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}

// ruleSet returns the cached snapshot, loading it from storage when empty.
// ListRules already orders by priority ascending with created_at breaking
// ties, so evaluation order is exactly storage order.
func (s *Service) ruleSet(ctx context.Context) (*ruleSet, error) {
	s.mu.RLock()
	set := s.cache
	s.mu.RUnlock()
	if set != nil {
		return set, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache != nil {
		return s.cache, nil
	}

	rules, err := s.store.ListRules(ctx, true)
	if err != nil {
		return nil, err
	}

	set = &ruleSet{
		rules:    rules,
		compiled: make(map[string]*regexp.Regexp),
	}
	for _, rule := range rules {
		switch rule.RuleType {
		case models.RuleTypeRegex:
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				s.logger.Warn().Str("rule", rule.RuleName).Err(err).Msg("Skipping rule with invalid regex pattern")
				continue
			}
			set.compiled[rule.RuleName] = re
		case models.RuleTypeSemantic:
			set.hasSemantic = true
		}
	}

	s.cache = set
	s.logger.Debug().Int("rules", len(rules)).Msg("Categorization rules loaded")
	return set, nil
}

func (s *Service) matches(rule *models.CategorizationRule, re *regexp.Regexp, candidate *models.Candidate, lowered string, tokens map[string]struct{}) bool {
	switch rule.RuleType {
	case models.RuleTypeKeyword:
		return matchKeyword(rule.Pattern, lowered)
	case models.RuleTypeRegex:
		if re == nil {
			return false
		}
		return s.matchRegex(re, rule.RuleName, candidate.RawText)
	case models.RuleTypeStructure:
		return matchStructure(rule.Pattern, candidate)
	case models.RuleTypeSemantic:
		cluster, ok := ClusterByName(strings.ToLower(strings.TrimSpace(rule.Pattern)))
		if !ok {
			s.logger.Debug().Str("rule", rule.RuleName).Str("cluster", rule.Pattern).Msg("Semantic rule names unknown cluster")
			return false
		}
		return matchCluster(cluster, lowered, tokens)
	default:
		return false
	}
}

// matchRegex evaluates the pattern under the rule deadline. The match runs
// in its own goroutine with a buffered result channel so an overrun never
// leaks a blocked sender.
func (s *Service) matchRegex(re *regexp.Regexp, ruleName, text string) bool {
	done := make(chan bool, 1)
	go func() {
		done <- re.MatchString(text)
	}()

	select {
	case matched := <-done:
		return matched
	case <-time.After(regexDeadline):
		s.logger.Warn().Str("rule", ruleName).Msg("Regex rule exceeded evaluation deadline, skipped")
		return false
	}
}

// matchKeyword treats the pattern as comma-separated alternatives and
// matches when any term occurs in the lowercased text.
func matchKeyword(pattern, lowered string) bool {
	for _, term := range strings.Split(pattern, ",") {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}

// matchStructure compares the pattern against the candidate's structural
// role. The qualified form "role:heading-pattern" additionally requires the
// heading text to contain the pattern, case-insensitively.
func matchStructure(pattern string, candidate *models.Candidate) bool {
	rolePart, headingPart, qualified := strings.Cut(pattern, ":")
	if string(candidate.Role) != strings.TrimSpace(rolePart) {
		return false
	}
	if !qualified {
		return true
	}
	headingPart = strings.ToLower(strings.TrimSpace(headingPart))
	if headingPart == "" {
		return true
	}
	return strings.Contains(strings.ToLower(candidate.Heading), headingPart)
}

// matchCluster reports whether at least two distinct cluster keywords occur
// in the text. Single-word keywords match whole tokens; phrases match as
// substrings.
func matchCluster(cluster Cluster, lowered string, tokens map[string]struct{}) bool {
	hits := 0
	for _, keyword := range cluster.Keywords {
		if strings.ContainsAny(keyword, " /") {
			if strings.Contains(lowered, keyword) {
				hits++
			}
		} else if _, ok := tokens[keyword]; ok {
			hits++
		}
		if hits >= 2 {
			return true
		}
	}
	return false
}

func tokenSet(lowered string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[token] = struct{}{}
	}
	return set
}

// tagForRule derives a stable tag from a rule name: lowercased, with
// non-alphanumeric runs collapsed to single dashes.
func tagForRule(name string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		} else {
			pendingDash = true
		}
	}
	return b.String()
}

func clampBoost(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
