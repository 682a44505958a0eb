package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/percipio/internal/common"
	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
)

// CrawlHandler runs foreground crawls over the API.
type CrawlHandler struct {
	crawler interfaces.CrawlerService
	config  *common.Config
	logger  arbor.ILogger
}

func NewCrawlHandler(crawler interfaces.CrawlerService, config *common.Config, logger arbor.ILogger) *CrawlHandler {
	return &CrawlHandler{
		crawler: crawler,
		config:  config,
		logger:  logger,
	}
}

type crawlRequest struct {
	SeedURL string              `json:"seed_url"`
	Config  *models.CrawlConfig `json:"config,omitempty"`
}

// rejectPrivateSeed blocks loopback and private-network seeds outside
// development mode. The check lives at the API boundary so crawls against
// local fixtures stay possible in tests and development.
func rejectPrivateSeed(config *common.Config, seedURL string) error {
	if !config.AllowTestURLs() && common.IsPrivateHost(seedURL) {
		return models.Kindf(models.ErrPolicyBlocked, "private or loopback hosts cannot be crawled in production")
	}
	return nil
}

// CrawlHandler runs a crawl synchronously and returns the finished job
// with its metrics.
// POST /api/crawl
func (h *CrawlHandler) CrawlHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := models.ValidateSeed(req.SeedURL); err != nil {
		WriteKindError(w, err)
		return
	}
	if err := rejectPrivateSeed(h.config, req.SeedURL); err != nil {
		WriteKindError(w, err)
		return
	}

	h.logger.Info().Str("seed_url", req.SeedURL).Msg("Foreground crawl requested")

	job, err := h.crawler.CrawlSite(r.Context(), req.SeedURL, req.Config)
	if err != nil {
		h.logger.Error().Err(err).Str("seed_url", req.SeedURL).Msg("Foreground crawl failed")
		// The job carries partial metrics even when the crawl aborted
		if job != nil {
			WriteJSON(w, StatusForError(err), map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
				"job":    job,
			})
			return
		}
		WriteKindError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}
