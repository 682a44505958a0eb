// Package search fans queries out to external web search providers,
// merges their results by canonical URL and scores relevance against
// the query. Providers are adapters over HTTP APIs; the dispatcher
// tolerates any subset of them failing.
package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/percipio/internal/common"
	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
)

// Relevance blends the provider's own ranking with lexical overlap
// against the query and the provider's trust weight.
const (
	rankWeight    = 0.5
	overlapWeight = 0.3
	trustWeight   = 0.2
)

// Service dispatches queries across all registered providers.
type Service struct {
	providers []interfaces.SearchProvider
	quotas    *quotaTracker
	config    *common.SearchConfig
	searchLog interfaces.SearchLogStorage
	logger    arbor.ILogger

	mu        sync.RWMutex
	scheduler interfaces.SchedulerService
}

// NewService creates the search dispatcher over the given providers.
// Providers answer in registration order when ranks tie.
func NewService(config *common.SearchConfig, searchLog interfaces.SearchLogStorage, logger arbor.ILogger, providers ...interfaces.SearchProvider) *Service {
	s := &Service{
		providers: providers,
		quotas:    newQuotaTracker(config.RateLimit),
		config:    config,
		searchLog: searchLog,
		logger:    logger,
	}
	for _, p := range providers {
		logger.Debug().
			Str("provider", p.Name()).
			Float64("trust", p.Trust()).
			Msg("Search provider registered")
	}
	return s
}

// SetScheduler wires the scheduler used to enqueue discovered URLs as
// low-priority crawl jobs. The scheduler is built after the search
// service, so it cannot be a constructor argument.
func (s *Service) SetScheduler(scheduler interfaces.SchedulerService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler = scheduler
}

// ResetQuotaWindows opens a fresh hourly quota window for every provider.
func (s *Service) ResetQuotaWindows() {
	s.quotas.reset()
	s.logger.Debug().Msg("Search quota windows reset")
}

// PrimeQuota charges the current window with queries already logged inside
// it, so a restart does not hand every provider a fresh hourly budget. The
// log keeps one row per kept result attributed to its best-ranked provider,
// so distinct queries stand in for dispatch counts, and every provider is
// charged because dispatch fans each query out to all of them.
func (s *Service) PrimeQuota(ctx context.Context) {
	if s.searchLog == nil || s.config.RateLimit <= 0 {
		return
	}
	records, err := s.searchLog.RecentSearches(ctx, time.Now().Add(-quotaWindow), quotaPrimeScan)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to prime search quotas from the log")
		return
	}
	queries := make(map[string]struct{})
	for _, record := range records {
		queries[record.Query] = struct{}{}
	}
	if len(queries) == 0 {
		return
	}
	for _, p := range s.providers {
		s.quotas.seed(p.Name(), len(queries))
	}
	s.logger.Info().
		Int("queries", len(queries)).
		Msg("Search quotas primed from logged searches")
}

// QuotaRemaining reports the unused hourly query budget per provider.
// Negative values mean quota tracking is disabled.
func (s *Service) QuotaRemaining() map[string]int {
	out := make(map[string]int, len(s.providers))
	for _, p := range s.providers {
		out[p.Name()] = s.quotas.remaining(p.Name())
	}
	return out
}

// ProviderNames returns the registered providers in registration order.
func (s *Service) ProviderNames() []string {
	names := make([]string, 0, len(s.providers))
	for _, p := range s.providers {
		names = append(names, p.Name())
	}
	return names
}

// providerBatch is one provider's answer to a dispatched query.
type providerBatch struct {
	name    string
	trust   float64
	results []models.ProviderResult
	err     error
}

// mergedResult accumulates one canonical URL across providers. Rank,
// title and provider attribution follow the best (lowest) rank seen;
// distinct snippets concatenate.
type mergedResult struct {
	result   models.SearchResult
	trust    float64
	snippets []string
}

// Search fans the query out to every provider with quota left, waits up
// to the configured deadline, then merges, scores and filters what came
// back. Provider failures degrade the result set instead of failing the
// call; with nothing to dispatch to it returns an empty set with a reason.
func (s *Service) Search(ctx context.Context, query string, limit int) (*models.SearchResponse, error) {
	if err := ctx.Err(); err != nil {
		kind, _ := models.KindOf(err)
		return nil, models.WrapKind(kind, err)
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.Kindf(models.ErrBadInput, "query is empty")
	}
	if limit <= 0 {
		limit = s.config.MaxResults
	}
	if limit <= 0 {
		limit = 10
	}

	start := time.Now()
	response := &models.SearchResponse{
		Query:     query,
		Results:   []models.SearchResult{},
		Providers: []string{},
	}

	eligible := make([]interfaces.SearchProvider, 0, len(s.providers))
	for _, p := range s.providers {
		if !s.quotas.allow(p.Name()) {
			s.logger.Debug().
				Str("provider", p.Name()).
				Msg("Provider skipped: quota window exhausted")
			continue
		}
		eligible = append(eligible, p)
	}

	if len(eligible) == 0 {
		response.Reason = "no providers"
		response.Elapsed = time.Since(start)
		s.logger.Warn().
			Str("query", query).
			Int("registered", len(s.providers)).
			Msg("Search dispatched with no eligible providers")
		return response, nil
	}

	deadline := s.config.Deadline
	if deadline <= 0 {
		deadline = 5 * time.Second
	}
	dispatchCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	out := make(chan providerBatch, len(eligible))
	var wg sync.WaitGroup
	for _, p := range eligible {
		provider := p
		wg.Add(1)
		common.SafeGo(s.logger, "search-"+provider.Name(), func() {
			defer wg.Done()
			results, err := provider.Query(dispatchCtx, query, limit)
			out <- providerBatch{
				name:    provider.Name(),
				trust:   provider.Trust(),
				results: results,
				err:     err,
			}
		})
	}
	wg.Wait()
	close(out)

	batches := make(map[string]providerBatch, len(eligible))
	for batch := range out {
		batches[batch.name] = batch
	}

	merged := make(map[string]*mergedResult)
	order := make([]string, 0)
	for _, p := range eligible {
		batch, ok := batches[p.Name()]
		if !ok {
			continue
		}
		if batch.err != nil {
			kind, _ := models.KindOf(batch.err)
			if kind == models.ErrQuotaExhausted {
				s.quotas.exhaust(batch.name)
			}
			s.logger.Warn().
				Str("provider", batch.name).
				Str("kind", string(kind)).
				Err(batch.err).
				Msg("Provider query failed")
			continue
		}
		response.Providers = append(response.Providers, batch.name)
		for _, raw := range batch.results {
			canonical, err := common.CanonicalizeURL(raw.URL)
			if err != nil {
				s.logger.Debug().
					Str("provider", batch.name).
					Str("url", raw.URL).
					Msg("Dropping result with unusable URL")
				continue
			}
			rank := raw.Rank
			if rank < 1 {
				rank = 1
			}
			entry, seen := merged[canonical]
			if !seen {
				entry = &mergedResult{
					result: models.SearchResult{
						URL:      canonical,
						Title:    raw.Title,
						Rank:     rank,
						Provider: batch.name,
					},
					trust: batch.trust,
				}
				merged[canonical] = entry
				order = append(order, canonical)
			} else if rank < entry.result.Rank {
				entry.result.Rank = rank
				entry.result.Provider = batch.name
				entry.trust = batch.trust
				if raw.Title != "" {
					entry.result.Title = raw.Title
				}
			}
			entry.addSnippet(raw.Snippet)
		}
	}

	if len(response.Providers) == 0 {
		response.Reason = "all providers failed"
		response.Elapsed = time.Since(start)
		return response, nil
	}

	queryTokens := tokenize(query)
	scored := make([]models.SearchResult, 0, len(order))
	for _, canonical := range order {
		entry := merged[canonical]
		entry.result.Snippet = strings.Join(entry.snippets, " ... ")
		entry.result.RelevanceScore = relevance(queryTokens, entry)
		if entry.result.RelevanceScore < s.config.ResultThreshold {
			continue
		}
		scored = append(scored, entry.result)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].RelevanceScore != scored[j].RelevanceScore {
			return scored[i].RelevanceScore > scored[j].RelevanceScore
		}
		if scored[i].Rank != scored[j].Rank {
			return scored[i].Rank < scored[j].Rank
		}
		return scored[i].URL < scored[j].URL
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	response.Results = scored

	s.logSearch(ctx, response)
	s.enqueueDiscovered(ctx, response.Results)

	response.Elapsed = time.Since(start)
	s.logger.Info().
		Str("query", query).
		Int("providers", len(response.Providers)).
		Int("results", len(response.Results)).
		Int64("elapsed_ms", response.Elapsed.Milliseconds()).
		Msg("Search completed")
	return response, nil
}

func (m *mergedResult) addSnippet(snippet string) {
	snippet = strings.TrimSpace(snippet)
	if snippet == "" {
		return
	}
	for _, existing := range m.snippets {
		if existing == snippet {
			return
		}
	}
	m.snippets = append(m.snippets, snippet)
}

// relevance scores a merged result in [0,1]. Rank contributes its
// reciprocal so rank 1 dominates, lexical overlap measures how much of
// the query the result text echoes, and trust carries the provider weight.
func relevance(queryTokens map[string]struct{}, entry *mergedResult) float64 {
	rankScore := 1.0 / float64(entry.result.Rank)
	overlap := tokenOverlap(queryTokens, entry.result.Title+" "+entry.result.Snippet)
	score := rankWeight*rankScore + overlapWeight*overlap + trustWeight*entry.trust
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// tokenOverlap reports the fraction of query tokens present in the text.
func tokenOverlap(queryTokens map[string]struct{}, text string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	textTokens := tokenize(text)
	hits := 0
	for token := range queryTokens {
		if _, ok := textTokens[token]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens))
}

// tokenize lowercases and splits on non-alphanumeric runs, dropping
// single-character tokens. Must stay aligned with the learning bit
// index tokenizer so search text and stored text agree.
func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	var b strings.Builder
	flush := func() {
		if b.Len() >= 2 {
			tokens[b.String()] = struct{}{}
		}
		b.Reset()
	}
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// logSearch persists the dispatched results for statistics. Log failures
// never fail the search.
func (s *Service) logSearch(ctx context.Context, response *models.SearchResponse) {
	if s.searchLog == nil || len(response.Results) == 0 {
		return
	}
	records := make([]*models.SearchRecord, 0, len(response.Results))
	for _, r := range response.Results {
		records = append(records, &models.SearchRecord{
			Query:          response.Query,
			Provider:       r.Provider,
			ResultURL:      r.URL,
			Title:          r.Title,
			Snippet:        r.Snippet,
			RelevanceScore: r.RelevanceScore,
			ContentType:    r.ContentType,
		})
	}
	if err := s.searchLog.LogResults(ctx, records); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to log search results")
	}
}

// enqueueDiscovered schedules kept result URLs as low-priority crawl
// jobs when the feature is enabled and a scheduler is wired.
func (s *Service) enqueueDiscovered(ctx context.Context, results []models.SearchResult) {
	if !s.config.EnqueueDiscovered {
		return
	}
	s.mu.RLock()
	scheduler := s.scheduler
	s.mu.RUnlock()
	if scheduler == nil {
		return
	}

	enqueued := 0
	for _, r := range results {
		job := &models.CrawlJob{
			SeedURL:  r.URL,
			Priority: models.PriorityLow,
			Config:   models.DefaultCrawlConfig(),
		}
		if err := scheduler.Schedule(ctx, job); err != nil {
			s.logger.Warn().
				Str("url", r.URL).
				Err(err).
				Msg("Failed to enqueue discovered URL")
			continue
		}
		enqueued++
	}
	if enqueued > 0 {
		s.logger.Info().
			Int("jobs", enqueued).
			Msg("Discovered URLs queued for crawling")
	}
}
