package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
)

// BitHandler serves stored learning bits.
type BitHandler struct {
	bits   interfaces.BitStorage
	refs   interfaces.CrossRefStorage
	logger arbor.ILogger
}

func NewBitHandler(bits interfaces.BitStorage, refs interfaces.CrossRefStorage, logger arbor.ILogger) *BitHandler {
	return &BitHandler{bits: bits, refs: refs, logger: logger}
}

// ListBitsHandler returns bits matching the query filters.
// GET /api/bits?category=&content_type=&complexity=&min_importance=&limit=&offset=
func (h *BitHandler) ListBitsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	filter := &models.BitFilter{
		Category:      r.URL.Query().Get("category"),
		Subcategory:   r.URL.Query().Get("subcategory"),
		ContentType:   models.ContentType(r.URL.Query().Get("content_type")),
		Complexity:    models.ComplexityLevel(r.URL.Query().Get("complexity")),
		MinImportance: QueryFloat(r, "min_importance", 0),
		Limit:         QueryInt(r, "limit", 50),
		Offset:        QueryInt(r, "offset", 0),
	}

	bits, err := h.bits.QueryBits(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to query bits")
		WriteKindError(w, err)
		return
	}
	h.touchBits(r.Context(), bits)

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"bits":   bits,
		"count":  len(bits),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// SearchBitsHandler runs a full-text search over stored bits.
// GET /api/bits/search?q=&limit=
func (h *BitHandler) SearchBitsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		WriteError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	limit := QueryInt(r, "limit", 20)

	bits, err := h.bits.SearchBits(r.Context(), query, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("query", query).Msg("Bit search failed")
		WriteKindError(w, err)
		return
	}
	h.touchBits(r.Context(), bits)

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"results": bits,
		"count":   len(bits),
	})
}

// HandleBitByID dispatches /api/bits/{id} requests.
func (h *BitHandler) HandleBitByID(w http.ResponseWriter, r *http.Request) {
	bitID := strings.TrimPrefix(r.URL.Path, "/api/bits/")
	bitID = strings.Trim(bitID, "/")
	if bitID == "" || strings.Contains(bitID, "/") {
		WriteError(w, http.StatusBadRequest, "bit ID is required")
		return
	}

	switch r.Method {
	case "GET":
		h.getBit(w, r, bitID)
	case "DELETE":
		h.deleteBit(w, r, bitID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// getBit returns one bit together with its cross references.
// GET /api/bits/{id}
func (h *BitHandler) getBit(w http.ResponseWriter, r *http.Request, bitID string) {
	bit, err := h.bits.GetBit(r.Context(), bitID)
	if err != nil || bit.Deleted {
		WriteError(w, http.StatusNotFound, "bit not found")
		return
	}
	h.touchBits(r.Context(), []*models.LearningBit{bit})

	refs, err := h.refs.GetRefsForBit(r.Context(), bitID)
	if err != nil {
		h.logger.Warn().Err(err).Str("bit_id", bitID).Msg("Failed to load cross references")
		refs = nil
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"bit":        bit,
		"references": refs,
	})
}

// deleteBit soft-deletes a bit; the record stays behind for history. Its
// cross references go with it since neither side can serve them anymore.
// DELETE /api/bits/{id}
func (h *BitHandler) deleteBit(w http.ResponseWriter, r *http.Request, bitID string) {
	bit, err := h.bits.GetBit(r.Context(), bitID)
	if err != nil || bit.Deleted {
		WriteError(w, http.StatusNotFound, "bit not found")
		return
	}

	if err := h.bits.DeleteBit(r.Context(), bitID); err != nil {
		h.logger.Error().Err(err).Str("bit_id", bitID).Msg("Failed to delete bit")
		WriteKindError(w, err)
		return
	}
	if err := h.refs.DeleteRefsForBit(r.Context(), bitID); err != nil {
		h.logger.Warn().Err(err).Str("bit_id", bitID).Msg("Failed to drop cross references")
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"bit_id":  bitID,
		"deleted": true,
	})
}

// touchBits bumps the reference counter of every served bit. Retrieval
// counts feed importance scoring, so a failed bump is logged and never
// surfaced to the caller.
func (h *BitHandler) touchBits(ctx context.Context, bits []*models.LearningBit) {
	for _, bit := range bits {
		if err := h.bits.IncrementReference(ctx, bit.BitID); err != nil {
			h.logger.Warn().Err(err).Str("bit_id", bit.BitID).Msg("Failed to bump reference count")
		}
	}
}
