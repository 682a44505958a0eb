package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/percipio/internal/interfaces"
)

// PageHandler serves the crawl provenance index. Page records gate refetch
// and cross-URL deduplication, so deleting one makes the crawler treat that
// URL and its content as new again.
type PageHandler struct {
	pages  interfaces.PageStorage
	logger arbor.ILogger
}

func NewPageHandler(pages interfaces.PageStorage, logger arbor.ILogger) *PageHandler {
	return &PageHandler{
		pages:  pages,
		logger: logger,
	}
}

// ListPagesHandler returns fetched pages, optionally filtered by domain.
// GET /api/pages?domain=&limit=&offset=
func (h *PageHandler) ListPagesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	ctx := r.Context()

	opts := &interfaces.ListOptions{
		Limit:  QueryInt(r, "limit", 50),
		Offset: QueryInt(r, "offset", 0),
		Domain: r.URL.Query().Get("domain"),
	}

	pages, err := h.pages.ListPages(ctx, opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list pages")
		WriteKindError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"pages":  pages,
		"count":  len(pages),
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// HandlePageByID dispatches /api/pages/{id} requests.
func (h *PageHandler) HandlePageByID(w http.ResponseWriter, r *http.Request) {
	pageID := strings.TrimPrefix(r.URL.Path, "/api/pages/")
	pageID = strings.Trim(pageID, "/")
	if pageID == "" || strings.Contains(pageID, "/") {
		WriteError(w, http.StatusBadRequest, "page ID is required")
		return
	}

	switch r.Method {
	case "GET":
		h.getPage(w, r, pageID)
	case "DELETE":
		h.deletePage(w, r, pageID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// getPage returns a single page record by ID.
// GET /api/pages/{id}
func (h *PageHandler) getPage(w http.ResponseWriter, r *http.Request, pageID string) {
	page, err := h.pages.GetPage(r.Context(), pageID)
	if err != nil {
		h.logger.Debug().Err(err).Str("page_id", pageID).Msg("Page lookup failed")
		WriteError(w, http.StatusNotFound, "page not found")
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

// deletePage removes the page record so a later crawl re-ingests the URL.
// Bits extracted from the page stay in the corpus.
// DELETE /api/pages/{id}
func (h *PageHandler) deletePage(w http.ResponseWriter, r *http.Request, pageID string) {
	if _, err := h.pages.GetPage(r.Context(), pageID); err != nil {
		WriteError(w, http.StatusNotFound, "page not found")
		return
	}

	if err := h.pages.DeletePage(r.Context(), pageID); err != nil {
		h.logger.Error().Err(err).Str("page_id", pageID).Msg("Failed to delete page")
		WriteKindError(w, err)
		return
	}

	h.logger.Info().Str("page_id", pageID).Msg("Page record deleted")
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"page_id": pageID,
		"deleted": true,
	})
}
