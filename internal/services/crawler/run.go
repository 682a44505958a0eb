package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/percipio/internal/common"
	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
)

// run walks the frontier breadth-first until the page budget is spent, the
// frontier drains, or the context ends. Metrics accumulate on the job even
// when the run fails partway.
func (s *Service) run(ctx context.Context, job *models.CrawlJob) error {
	start := time.Now()
	defer func() { job.Metrics.Duration = time.Since(start) }()

	seed, err := common.CanonicalizeURL(job.SeedURL)
	if err != nil {
		return models.Kindf(models.ErrBadInput, "seed URL %q: %v", job.SeedURL, err)
	}
	seedHost := common.HostKey(seed)

	front := newFrontier()
	front.push(seed, 0)
	guard := newHostGuard(s.config.HostFailureLimit)

	for front.len() > 0 {
		if err := ctx.Err(); err != nil {
			kind, _ := models.KindOf(err)
			return models.WrapKind(kind, err)
		}
		if job.Metrics.PagesFetched >= job.Config.MaxPages {
			s.logger.Debug().
				Str("job_id", job.JobID).
				Int("max_pages", job.Config.MaxPages).
				Msg("Page budget reached")
			break
		}

		entry := front.pop()
		if err := s.crawlPage(ctx, job, entry, front, guard, seedHost); err != nil {
			return err
		}

		job.Heartbeat = time.Now().UTC()
		if err := s.jobs.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to persist job heartbeat: %w", err)
		}
	}
	return nil
}

// crawlPage fetches one frontier entry and runs it through the extraction,
// categorization and scoring pipeline. Per-page failures are counted on the
// job and swallowed so one bad URL cannot sink the crawl; storage failures
// and context cancellation propagate.
func (s *Service) crawlPage(ctx context.Context, job *models.CrawlJob, entry frontierEntry, front *frontier, guard *hostGuard, seedHost string) error {
	host := common.HostKey(entry.url)

	if guard.blocked(host) {
		job.Metrics.PagesSkipped++
		job.Metrics.CountError(models.ErrPolicyBlocked)
		s.logger.Debug().
			Str("job_id", job.JobID).
			Str("url", entry.url).
			Str("host", host).
			Msg("Skipping URL on blacklisted host")
		return nil
	}

	if job.Config.RespectRobots && !s.fetcher.Allowed(ctx, entry.url) {
		job.Metrics.PagesSkipped++
		job.Metrics.CountError(models.ErrPolicyBlocked)
		page := &models.Page{
			PageID: entry.urlHash,
			URL:    entry.url,
			Domain: host,
			Depth:  entry.depth,
			Status: models.PageStatusSkippedRobots,
		}
		if err := s.pages.SavePage(ctx, page); err != nil {
			return fmt.Errorf("failed to save robots-skipped page: %w", err)
		}
		s.logger.Debug().
			Str("job_id", job.JobID).
			Str("url", entry.url).
			Msg("Robots.txt disallows URL")
		return nil
	}

	if delay := job.Config.DelayDuration(); delay > 0 {
		s.fetcher.RaiseHostDelay(entry.url, delay)
	}

	result, err := s.fetcher.Fetch(ctx, entry.url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			kind, _ := models.KindOf(ctxErr)
			return models.WrapKind(kind, ctxErr)
		}
		kind, _ := models.KindOf(err)
		job.Metrics.CountError(kind)
		if kind == models.ErrPolicyBlocked {
			// A policy rejection (the body cap) is a skip, not a host failure.
			job.Metrics.PagesSkipped++
			page := &models.Page{
				PageID: entry.urlHash,
				URL:    entry.url,
				Domain: host,
				Depth:  entry.depth,
				Status: models.PageStatusSkipped,
			}
			if saveErr := s.pages.SavePage(ctx, page); saveErr != nil {
				return fmt.Errorf("failed to save skipped page: %w", saveErr)
			}
			s.logger.Debug().
				Err(err).
				Str("job_id", job.JobID).
				Str("url", entry.url).
				Msg("Skipping URL on fetch policy")
			return nil
		}
		if guard.recordFailure(host) {
			s.logger.Warn().
				Str("job_id", job.JobID).
				Str("host", host).
				Int("failures", guard.limit).
				Msg("Host blacklisted after consecutive failures")
		}
		s.logger.Warn().
			Err(err).
			Str("job_id", job.JobID).
			Str("url", entry.url).
			Str("kind", string(kind)).
			Msg("Fetch failed")
		return nil
	}
	guard.recordSuccess(host)
	job.Metrics.BytesDownloaded += int64(len(result.Body))

	// The final URL after redirects is the page identity.
	finalURL := result.URL
	pageID := models.NewPageID(finalURL)
	domain := common.HostKey(finalURL)
	if finalURL != entry.url {
		front.markVisited(finalURL)
	}

	if !isHTML(result.ContentType) {
		job.Metrics.PagesSkipped++
		page := &models.Page{
			PageID:     pageID,
			URL:        finalURL,
			Domain:     domain,
			Depth:      entry.depth,
			FetchedAt:  result.FetchedAt,
			Status:     models.PageStatusSkipped,
			ByteLength: len(result.Body),
		}
		if err := s.pages.SavePage(ctx, page); err != nil {
			return fmt.Errorf("failed to save skipped page: %w", err)
		}
		s.logger.Debug().
			Str("job_id", job.JobID).
			Str("url", finalURL).
			Str("content_type", result.ContentType).
			Msg("Skipping non-HTML content")
		return nil
	}

	contentHash := models.HashContent(result.Body)

	if existing, getErr := s.pages.GetPage(ctx, pageID); getErr == nil {
		if existing.ContentHash == contentHash {
			// Refetch with unchanged content: bump last_seen, keep the
			// original fetch time, skip re-extraction.
			job.Metrics.PagesFetched++
			if err := s.pages.SavePage(ctx, existing); err != nil {
				return fmt.Errorf("failed to refresh page: %w", err)
			}
			s.logger.Debug().
				Str("job_id", job.JobID).
				Str("url", finalURL).
				Msg("Page unchanged since last fetch")
			return nil
		}
	} else {
		seen, hashErr := s.pages.HasContentHash(ctx, contentHash)
		if hashErr != nil {
			return fmt.Errorf("failed to check content hash: %w", hashErr)
		}
		if seen {
			// Same body already stored under another URL. Record the alias
			// so the URL is remembered, but emit nothing from it.
			job.Metrics.PagesSkipped++
			page := &models.Page{
				PageID:      pageID,
				URL:         finalURL,
				Domain:      domain,
				Depth:       entry.depth,
				FetchedAt:   result.FetchedAt,
				ContentHash: contentHash,
				Status:      models.PageStatusSkippedDedup,
				ByteLength:  len(result.Body),
			}
			if err := s.pages.SavePage(ctx, page); err != nil {
				return fmt.Errorf("failed to save deduplicated page: %w", err)
			}
			s.logger.Debug().
				Str("job_id", job.JobID).
				Str("url", finalURL).
				Msg("Content already seen under another URL")
			return nil
		}
	}

	extraction, err := s.extractor.Extract(ctx, finalURL, result.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			kind, _ := models.KindOf(ctxErr)
			return models.WrapKind(kind, ctxErr)
		}
		kind, _ := models.KindOf(err)
		job.Metrics.PagesFetched++
		job.Metrics.CountError(kind)
		page := &models.Page{
			PageID:      pageID,
			URL:         finalURL,
			Domain:      domain,
			Depth:       entry.depth,
			FetchedAt:   result.FetchedAt,
			ContentHash: contentHash,
			Status:      models.PageStatusParseFailed,
			ByteLength:  len(result.Body),
		}
		if saveErr := s.pages.SavePage(ctx, page); saveErr != nil {
			return fmt.Errorf("failed to save parse-failed page: %w", saveErr)
		}
		s.logger.Warn().
			Err(err).
			Str("job_id", job.JobID).
			Str("url", finalURL).
			Msg("Extraction failed")
		return nil
	}

	page := &models.Page{
		PageID:      pageID,
		URL:         finalURL,
		Domain:      domain,
		Depth:       entry.depth,
		FetchedAt:   result.FetchedAt,
		ContentHash: contentHash,
		Status:      models.PageStatusFetched,
		Title:       extraction.Title,
		Language:    extraction.Language,
		ByteLength:  len(result.Body),
	}
	if err := s.pages.SavePage(ctx, page); err != nil {
		return fmt.Errorf("failed to save page: %w", err)
	}
	job.Metrics.PagesFetched++

	bits := make([]*models.LearningBit, 0, len(extraction.Candidates))
	for i := range extraction.Candidates {
		if err := ctx.Err(); err != nil {
			kind, _ := models.KindOf(err)
			return models.WrapKind(kind, err)
		}
		candidate := &extraction.Candidates[i]
		job.Metrics.BitsEmitted++

		classification, catErr := s.categorizer.Categorize(ctx, candidate)
		if catErr != nil {
			kind, _ := models.KindOf(catErr)
			job.Metrics.CountError(kind)
			s.logger.Warn().
				Err(catErr).
				Str("job_id", job.JobID).
				Str("url", finalURL).
				Msg("Categorization failed for candidate")
			continue
		}

		score, scoreErr := s.scorer.Evaluate(ctx, candidate, classification, entry.depth, 0)
		if scoreErr != nil {
			kind, _ := models.KindOf(scoreErr)
			job.Metrics.CountError(kind)
			s.logger.Warn().
				Err(scoreErr).
				Str("job_id", job.JobID).
				Str("url", finalURL).
				Msg("Scoring failed for candidate")
			continue
		}
		if !score.Keep {
			continue
		}
		bits = append(bits, buildBit(pageID, candidate, classification, score))
	}

	if len(bits) > 0 {
		if err := s.bits.SaveBits(ctx, bits); err != nil {
			return fmt.Errorf("failed to save learning bits: %w", err)
		}
		job.Metrics.BitsKept += len(bits)
		if err := s.linkBits(ctx, bits); err != nil {
			return fmt.Errorf("failed to save cross references: %w", err)
		}
	}

	s.logger.Debug().
		Str("job_id", job.JobID).
		Str("url", finalURL).
		Int("depth", entry.depth).
		Int("candidates", len(extraction.Candidates)).
		Int("kept", len(bits)).
		Int("links", len(extraction.Links)).
		Msg("Page processed")

	if !job.Config.FollowLinks || entry.depth >= job.Config.MaxDepth {
		return nil
	}
	for _, link := range extraction.Links {
		if !allowedHost(&job.Config, seedHost, link) {
			continue
		}
		if front.push(link, entry.depth+1) {
			job.Metrics.LinksDiscovered++
		}
	}
	return nil
}

// linkBits records relations between a page's kept bits. Bits arrive in
// document order, so consecutive bits under the same heading are related,
// and a tutorial step depends on the step before it. The triple key makes
// re-crawls idempotent.
func (s *Service) linkBits(ctx context.Context, bits []*models.LearningBit) error {
	now := time.Now().UTC()
	for i := 1; i < len(bits); i++ {
		prev, cur := bits[i-1], bits[i]
		if prev.Context == "" || prev.Context != cur.Context {
			continue
		}
		ref := &models.CrossReference{
			SourceBitID:  cur.BitID,
			TargetBitID:  prev.BitID,
			RelationType: models.RelationRelated,
			Strength:     0.5,
			CreatedAt:    now,
		}
		if prev.ContentType == models.ContentTypeTutorialStep && cur.ContentType == models.ContentTypeTutorialStep {
			ref.RelationType = models.RelationDependsOn
			ref.Strength = 0.7
		}
		if err := s.refs.SaveCrossRef(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}

// buildBit assembles the stored learning bit from the pipeline outputs.
func buildBit(pageID string, candidate *models.Candidate, classification *models.Classification, score *interfaces.ScoreResult) *models.LearningBit {
	return &models.LearningBit{
		BitID:           models.NewBitID(pageID, candidate.RawText),
		PageID:          pageID,
		Content:         candidate.RawText,
		Context:         candidate.Context,
		ContentType:     classification.ContentType,
		Category:        classification.Category,
		Subcategory:     classification.Subcategory,
		ComplexityLevel: candidate.Complexity,
		ImportanceScore: score.Importance,
		ConfidenceScore: score.Confidence,
		Tags:            classification.Tags,
		ExtractedAt:     time.Now().UTC(),
	}
}

// allowedHost applies the job's host policy to a discovered link.
func allowedHost(config *models.CrawlConfig, seedHost, link string) bool {
	host := common.HostKey(link)
	if host == "" {
		return false
	}
	if config.SameHostOnly && host != seedHost {
		return false
	}
	for _, deny := range config.DenyHosts {
		if hostMatches(host, deny) {
			return false
		}
	}
	if len(config.AllowHosts) > 0 {
		allowed := false
		for _, allow := range config.AllowHosts {
			if hostMatches(host, allow) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	return true
}

// hostMatches reports whether host equals pattern or is a subdomain of it.
func hostMatches(host, pattern string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return false
	}
	return host == pattern || strings.HasSuffix(host, "."+pattern)
}

// isHTML accepts documents the extractor can parse. Servers that omit the
// Content-Type header get the benefit of the doubt.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	return strings.Contains(strings.ToLower(contentType), "html")
}
