package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/percipio/internal/interfaces"
)

// SearchHandler serves web search dispatch over the API.
type SearchHandler struct {
	search interfaces.SearchService
	logger arbor.ILogger
}

func NewSearchHandler(search interfaces.SearchService, logger arbor.ILogger) *SearchHandler {
	return &SearchHandler{search: search, logger: logger}
}

// SearchHandler fans the query out to the configured providers.
// GET /api/search?q=&limit=
func (h *SearchHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		WriteError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	limit := QueryInt(r, "limit", 0)

	response, err := h.search.Search(r.Context(), query, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("query", query).Msg("Web search failed")
		WriteKindError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, response)
}
