package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/percipio/internal/common"
	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
)

// Service is the HTTP fetcher. It owns a pooled client bounded by total and
// per-host connection limits, a per-host rate limiter, a robots.txt cache,
// and the retry policy for transient failures.
type Service struct {
	client  *http.Client
	limiter *RateLimiter
	robots  *robotsCache
	policy  *RetryPolicy
	config  *common.CrawlerConfig
	logger  arbor.ILogger
}

// NewService creates a fetcher from the crawler configuration
func NewService(config *common.CrawlerConfig, logger arbor.ILogger) interfaces.Fetcher {
	transport := &http.Transport{
		MaxIdleConns:        config.MaxConnections,
		MaxConnsPerHost:     config.MaxConnectionsPerHost,
		MaxIdleConnsPerHost: config.MaxConnectionsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}

	client := &http.Client{
		Transport:     transport,
		Timeout:       config.RequestTimeout,
		CheckRedirect: redirectPolicy(config.MaxRedirects),
	}

	limiter := NewRateLimiter(config.CrawlDelay)

	return &Service{
		client:  client,
		limiter: limiter,
		robots:  newRobotsCache(client, limiter, config.UserAgent, config.RobotsCacheTTL, logger),
		policy:  NewRetryPolicy(config.RetryAttempts, config.RetryBackoff),
		config:  config,
		logger:  logger,
	}
}

// redirectPolicy bounds redirect chains and detects cycles by revisited URL
func redirectPolicy(maxRedirects int) func(req *http.Request, via []*http.Request) error {
	if maxRedirects < 1 {
		maxRedirects = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return models.Kindf(models.ErrPermanentHttp, "stopped after %d redirects", maxRedirects)
		}
		next := req.URL.String()
		for _, prev := range via {
			if prev.URL.String() == next {
				return models.Kindf(models.ErrPermanentHttp, "redirect loop at %s", next)
			}
		}
		return nil
	}
}

// Fetch retrieves one URL, waiting out the host's politeness delay before
// every attempt. Network errors and 5xx responses retry with exponential
// backoff; 4xx responses fail the URL immediately.
func (s *Service) Fetch(ctx context.Context, rawURL string) (*interfaces.FetchResult, error) {
	canonical, err := common.CanonicalizeURL(rawURL)
	if err != nil {
		return nil, models.Kindf(models.ErrBadInput, "invalid fetch URL: %v", err)
	}
	if ctx.Err() != nil {
		kind, _ := models.KindOf(ctx.Err())
		return nil, models.WrapKind(kind, ctx.Err())
	}

	var result *interfaces.FetchResult
	_, err = s.policy.Do(ctx, s.logger, func() (int, error) {
		if werr := s.limiter.Wait(ctx, canonical); werr != nil {
			kind, _ := models.KindOf(werr)
			return 0, models.WrapKind(kind, werr)
		}
		res, ferr := s.doFetch(ctx, canonical)
		if ferr != nil {
			code := 0
			if res != nil {
				code = res.StatusCode
			}
			return code, ferr
		}
		result = res
		return res.StatusCode, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("url", canonical).
		Int("status_code", result.StatusCode).
		Int("bytes", len(result.Body)).
		Dur("elapsed", result.Elapsed).
		Msg("Fetched URL")

	return result, nil
}

// doFetch performs a single request attempt. On 4xx/5xx the returned result
// carries the status code alongside the classified error.
func (s *Service) doFetch(ctx context.Context, canonical string) (*interfaces.FetchResult, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, canonical, nil)
	if err != nil {
		return nil, models.Kindf(models.ErrBadInput, "build request for %s: %v", canonical, err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	partial := &interfaces.FetchResult{
		URL:        canonical,
		StatusCode: resp.StatusCode,
		FetchedAt:  start,
		Elapsed:    time.Since(start),
	}

	switch {
	case resp.StatusCode >= 500:
		return partial, models.Kindf(models.ErrTransientNetwork, "server error %d for %s", resp.StatusCode, canonical)
	case resp.StatusCode >= 400:
		return partial, models.Kindf(models.ErrPermanentHttp, "client error %d for %s", resp.StatusCode, canonical)
	}

	limit := s.config.MaxBodySize
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return partial, classifyTransport(err)
	}
	if int64(len(body)) > limit {
		// The body cap is a policy outcome, not an HTTP failure; callers
		// record the page as skipped instead of failed.
		return partial, models.Kindf(models.ErrPolicyBlocked, "response body for %s exceeds %d bytes", canonical, limit)
	}

	finalURL := canonical
	if resp.Request != nil && resp.Request.URL != nil {
		if cu, cerr := common.CanonicalizeURL(resp.Request.URL.String()); cerr == nil {
			finalURL = cu
		}
	}

	return &interfaces.FetchResult{
		URL:         finalURL,
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		FetchedAt:   start,
		Elapsed:     time.Since(start),
	}, nil
}

// Allowed reports whether robots.txt permits fetching the URL
func (s *Service) Allowed(ctx context.Context, rawURL string) bool {
	return s.robots.Allowed(ctx, rawURL)
}

// RaiseHostDelay lifts a host's politeness delay, typically from a job
// configured to crawl slower than the service default. Delays at or below
// the current one are ignored.
func (s *Service) RaiseHostDelay(rawURL string, delay time.Duration) {
	host := common.HostKey(rawURL)
	if host == "" || delay <= s.limiter.HostDelay(host) {
		return
	}
	s.limiter.SetHostDelay(host, delay)
	s.logger.Debug().Str("host", host).Dur("delay", delay).Msg("Raised host politeness delay")
}

// Close releases pooled connections
func (s *Service) Close() {
	s.client.CloseIdleConnections()
}

// classifyTransport maps transport failures onto the error taxonomy,
// preserving an existing classification when one is present
func classifyTransport(err error) error {
	var ce *models.ClassifiedError
	if errors.As(err, &ce) {
		return err
	}
	if kind, ok := models.KindOf(err); ok {
		return models.WrapKind(kind, err)
	}
	return models.WrapKind(models.ErrTransientNetwork, fmt.Errorf("request failed: %w", err))
}
