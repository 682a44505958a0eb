package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/percipio/internal/common"
)

// maxCrawlDelay caps how far a robots Crawl-delay directive can slow a host
const maxCrawlDelay = 30 * time.Second

// robotsEntry caches one host's parsed robots.txt. A nil policy means the
// file could not be fetched and the host fails open.
type robotsEntry struct {
	policy    *robotstxt.RobotsData
	fetchedAt time.Time
}

// robotsCache fetches and caches per-host robots.txt policies with a TTL.
// Policy fetches run through the shared rate limiter so they count against
// host politeness like any other request.
type robotsCache struct {
	entries map[string]*robotsEntry
	mu      sync.Mutex
	client  *http.Client
	limiter *RateLimiter
	agent   string
	ttl     time.Duration
	logger  arbor.ILogger
}

func newRobotsCache(client *http.Client, limiter *RateLimiter, userAgent string, ttl time.Duration, logger arbor.ILogger) *robotsCache {
	// robots groups match on the product token, not the full UA string
	agent := userAgent
	if idx := strings.IndexAny(agent, "/ "); idx > 0 {
		agent = agent[:idx]
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &robotsCache{
		entries: make(map[string]*robotsEntry),
		client:  client,
		limiter: limiter,
		agent:   agent,
		ttl:     ttl,
		logger:  logger,
	}
}

// Allowed reports whether robots.txt permits fetching the URL. Unparseable
// URLs and unreachable robots.txt fail open.
func (rc *robotsCache) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	base := u.Scheme + "://" + strings.ToLower(u.Host)

	policy := rc.lookup(ctx, base)
	if policy == nil {
		return true
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	return policy.TestAgent(path, rc.agent)
}

func (rc *robotsCache) lookup(ctx context.Context, base string) *robotstxt.RobotsData {
	rc.mu.Lock()
	entry, ok := rc.entries[base]
	rc.mu.Unlock()

	if ok && time.Since(entry.fetchedAt) < rc.ttl {
		return entry.policy
	}

	policy := rc.fetch(ctx, base)

	rc.mu.Lock()
	rc.entries[base] = &robotsEntry{policy: policy, fetchedAt: time.Now()}
	rc.mu.Unlock()

	return policy
}

func (rc *robotsCache) fetch(ctx context.Context, base string) *robotstxt.RobotsData {
	robotsURL := base + "/robots.txt"

	if err := rc.limiter.Wait(ctx, robotsURL); err != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}

	resp, err := rc.client.Do(req)
	if err != nil {
		rc.logger.Debug().Err(err).Str("url", robotsURL).Msg("robots.txt unreachable, failing open")
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil
	}

	// FromStatusAndBytes applies the standard status semantics: 4xx means
	// no restrictions, 5xx means everything is disallowed
	policy, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		rc.logger.Debug().Err(err).Str("url", robotsURL).Msg("robots.txt unparseable, failing open")
		return nil
	}

	rc.applyCrawlDelay(policy, robotsURL)
	return policy
}

// applyCrawlDelay honors a Crawl-delay directive by raising the host's
// politeness delay, capped so a hostile file cannot stall the crawler.
func (rc *robotsCache) applyCrawlDelay(policy *robotstxt.RobotsData, robotsURL string) {
	group := policy.FindGroup(rc.agent)
	if group == nil || group.CrawlDelay <= 0 {
		return
	}

	delay := group.CrawlDelay
	if delay > maxCrawlDelay {
		delay = maxCrawlDelay
	}

	host := common.HostKey(robotsURL)
	if host == "" || delay <= rc.limiter.HostDelay(host) {
		return
	}
	rc.limiter.SetHostDelay(host, delay)
	rc.logger.Debug().Str("host", host).Dur("delay", delay).Msg("Applied robots crawl-delay")
}
