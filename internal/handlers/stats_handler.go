package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/percipio/internal/interfaces"
)

// StatsHandler serves corpus statistics.
type StatsHandler struct {
	stats  interfaces.StatsService
	logger arbor.ILogger
}

func NewStatsHandler(stats interfaces.StatsService, logger arbor.ILogger) *StatsHandler {
	return &StatsHandler{stats: stats, logger: logger}
}

// StatsHandler returns the aggregate corpus view.
// GET /api/stats
func (h *StatsHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	stats, err := h.stats.GetStatistics(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to assemble statistics")
		WriteKindError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}
