package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Blocking crawl
	mux.HandleFunc("/api/crawl", s.app.CrawlHandler.CrawlHandler) // POST - crawl and wait

	// Background crawl jobs
	mux.HandleFunc("/api/jobs", s.handleJobsRoute)               // GET (list), POST (create)
	mux.HandleFunc("/api/jobs/", s.app.JobHandler.HandleJobByID) // GET/DELETE /{id}

	// Learning bits. The exact /api/bits/search pattern wins over the
	// /api/bits/ prefix, so the by-ID handler never sees search requests.
	mux.HandleFunc("/api/bits", s.app.BitHandler.ListBitsHandler)
	mux.HandleFunc("/api/bits/search", s.app.BitHandler.SearchBitsHandler)
	mux.HandleFunc("/api/bits/", s.app.BitHandler.HandleBitByID) // GET/DELETE /{id}

	// Crawled pages
	mux.HandleFunc("/api/pages", s.app.PageHandler.ListPagesHandler)
	mux.HandleFunc("/api/pages/", s.app.PageHandler.HandlePageByID) // GET/DELETE /{id}

	// Categorization rules
	mux.HandleFunc("/api/rules", s.handleRulesRoute)                  // GET (list), POST (create)
	mux.HandleFunc("/api/rules/", s.app.RuleHandler.HandleRuleByName) // GET/DELETE /{name}

	// Web search
	mux.HandleFunc("/api/search", s.app.SearchHandler.SearchHandler)

	// Statistics
	mux.HandleFunc("/api/stats", s.app.StatsHandler.StatsHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobsRoute routes /api/jobs requests (list and create)
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.JobHandler.ListJobsHandler, s.app.JobHandler.CreateJobHandler)
}

// handleRulesRoute routes /api/rules requests (list and create)
func (s *Server) handleRulesRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.RuleHandler.ListRulesHandler, s.app.RuleHandler.CreateRuleHandler)
}
