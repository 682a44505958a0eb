package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
)

// RuleHandler manages categorization rules over the API.
type RuleHandler struct {
	rules       interfaces.RuleStorage
	categorizer interfaces.Categorizer
	logger      arbor.ILogger
}

func NewRuleHandler(rules interfaces.RuleStorage, categorizer interfaces.Categorizer, logger arbor.ILogger) *RuleHandler {
	return &RuleHandler{
		rules:       rules,
		categorizer: categorizer,
		logger:      logger,
	}
}

// ListRulesHandler returns rules in priority order.
// GET /api/rules?active=true
func (h *RuleHandler) ListRulesHandler(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	rules, err := h.rules.ListRules(r.Context(), activeOnly)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list rules")
		WriteKindError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"count": len(rules),
	})
}

// CreateRuleHandler adds a categorization rule. Duplicate names are
// rejected.
// POST /api/rules
func (h *RuleHandler) CreateRuleHandler(w http.ResponseWriter, r *http.Request) {
	var rule models.CategorizationRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.rules.CreateRule(r.Context(), &rule); err != nil {
		h.logger.Warn().Err(err).Str("rule_name", rule.RuleName).Msg("Rule creation rejected")
		WriteKindError(w, err)
		return
	}
	h.categorizer.InvalidateRules()

	h.logger.Info().
		Str("rule_name", rule.RuleName).
		Str("category", rule.Category).
		Msg("Categorization rule created")
	WriteJSON(w, http.StatusCreated, rule)
}

// HandleRuleByName dispatches /api/rules/{name} requests.
func (h *RuleHandler) HandleRuleByName(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/rules/")
	name = strings.Trim(name, "/")
	if name == "" || strings.Contains(name, "/") {
		WriteError(w, http.StatusBadRequest, "rule name is required")
		return
	}

	switch r.Method {
	case "GET":
		h.getRule(w, r, name)
	case "DELETE":
		h.deactivateRule(w, r, name)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// getRule returns a single rule by name.
// GET /api/rules/{name}
func (h *RuleHandler) getRule(w http.ResponseWriter, r *http.Request, name string) {
	rule, err := h.rules.GetRule(r.Context(), name)
	if err != nil {
		WriteError(w, http.StatusNotFound, "rule not found")
		return
	}
	WriteJSON(w, http.StatusOK, rule)
}

// deactivateRule flips a rule inactive. Rules are never hard-deleted over
// the API so prior categorizations stay explainable.
// DELETE /api/rules/{name}
func (h *RuleHandler) deactivateRule(w http.ResponseWriter, r *http.Request, name string) {
	rule, err := h.rules.GetRule(r.Context(), name)
	if err != nil {
		WriteError(w, http.StatusNotFound, "rule not found")
		return
	}

	if rule.Active {
		rule.Active = false
		rule.UpdatedAt = time.Now()
		if err := h.rules.UpdateRule(r.Context(), rule); err != nil {
			h.logger.Error().Err(err).Str("rule_name", name).Msg("Failed to deactivate rule")
			WriteKindError(w, err)
			return
		}
		h.categorizer.InvalidateRules()
		h.logger.Info().Str("rule_name", name).Msg("Categorization rule deactivated")
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rule_name": name,
		"active":    false,
	})
}
