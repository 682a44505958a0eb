package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/percipio/internal/common"
	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
	"github.com/ternarybob/percipio/internal/services/categorizer"
	"github.com/ternarybob/percipio/internal/services/extractor"
	"github.com/ternarybob/percipio/internal/services/fetcher"
	"github.com/ternarybob/percipio/internal/services/scorer"
	"github.com/ternarybob/percipio/internal/storage/badger"
)

func crawlerTestConfig() *common.CrawlerConfig {
	return &common.CrawlerConfig{
		UserAgent:             "percipio-test/1.0",
		MaxPages:              25,
		MaxDepth:              2,
		CrawlDelay:            time.Millisecond,
		RespectRobots:         true,
		RobotsCacheTTL:        time.Hour,
		RequestTimeout:        5 * time.Second,
		MaxRedirects:          5,
		MaxBodySize:           1 << 20,
		MaxConnections:        32,
		MaxConnectionsPerHost: 4,
		RetryAttempts:         0,
		RetryBackoff:          time.Millisecond,
		HostFailureLimit:      20,
	}
}

// testCrawlConfig returns default job settings tuned for local test servers:
// robots checks off and no extra politeness delay.
func testCrawlConfig() models.CrawlConfig {
	config := models.DefaultCrawlConfig()
	config.CrawlDelay = 0
	return config
}

type testStack struct {
	crawler interfaces.CrawlerService
	storage interfaces.StorageManager
}

// newTestStack assembles the full pipeline over a throwaway badger store
func newTestStack(t *testing.T, config *common.CrawlerConfig) *testStack {
	t.Helper()
	logger := arbor.NewLogger()

	storage, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })

	fetchService := fetcher.NewService(config, logger)
	t.Cleanup(fetchService.Close)

	scorerConfig := &common.ScorerConfig{
		MinImportance:      0.3,
		MinConfidence:      0.3,
		AdaptationInterval: 100,
		RetentionTarget:    0.6,
		RetentionTolerance: 0.1,
		MaxStep:            0.05,
	}

	service := NewService(
		fetchService,
		extractor.NewService(logger),
		categorizer.NewService(storage.RuleStorage(), logger),
		scorer.NewService(scorerConfig, storage.ThresholdStorage(), logger),
		storage,
		config,
		logger,
	)

	return &testStack{crawler: service, storage: storage}
}

// requestRecorder wraps a handler and records request paths in arrival order
type requestRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *requestRecorder) record(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *requestRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func pageHTML(title, text string, links ...string) string {
	body := fmt.Sprintf("<h1>%s</h1><p>%s</p>", title, text)
	for _, link := range links {
		body += fmt.Sprintf(`<a href="%s">%s</a>`, link, link)
	}
	return fmt.Sprintf(`<html lang="en"><head><title>%s</title></head><body>%s</body></html>`, title, body)
}

func TestCrawlSiteTraversalAndDedup(t *testing.T) {
	// 1. Three pages that link to each other, including back-links and a
	// self-link. Every URL should be fetched exactly once.
	recorder := &requestRecorder{}
	mux := http.NewServeMux()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder.record(r.URL.Path)
		mux.ServeHTTP(w, r)
	}))
	defer server.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML("Home", "The home page introduces the two topic pages in this set.", "/a", "/b", "/"))
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML("Topic A", "Topic A describes the first subject in reasonable detail.", "/", "/b"))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML("Topic B", "Topic B covers the second subject with its own paragraph.", "/a"))
	})

	stack := newTestStack(t, crawlerTestConfig())
	config := testCrawlConfig()

	// 2. Run the crawl to completion
	job, err := stack.crawler.CrawlSite(context.Background(), server.URL, &config)
	if err != nil {
		t.Fatalf("Failed to crawl: %v", err)
	}
	if job.State != models.JobStateCompleted {
		t.Errorf("Expected completed state, got %s", job.State)
	}

	// 3. Exactly three pages fetched, each URL once
	if job.Metrics.PagesFetched != 3 {
		t.Errorf("Expected 3 pages fetched, got %d", job.Metrics.PagesFetched)
	}
	if job.Metrics.LinksDiscovered != 2 {
		t.Errorf("Expected 2 links discovered, got %d", job.Metrics.LinksDiscovered)
	}

	paths := recorder.recorded()
	if len(paths) != 3 {
		t.Fatalf("Expected 3 requests, got %d: %v", len(paths), paths)
	}

	// 4. Traversal order is deterministic: seed first, then depth-1 URLs
	// ordered by URL hash
	expected := []string{"/", "/a", "/b"}
	if models.NewPageID(server.URL+"/b") < models.NewPageID(server.URL+"/a") {
		expected = []string{"/", "/b", "/a"}
	}
	for i, path := range expected {
		if paths[i] != path {
			t.Errorf("Expected request %d to be %s, got %s", i, path, paths[i])
		}
	}

	// 5. Pages and bits landed in storage
	count, err := stack.storage.PageStorage().CountPages(context.Background())
	if err != nil {
		t.Fatalf("Failed to count pages: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 stored pages, got %d", count)
	}
	if job.Metrics.BitsKept == 0 {
		t.Error("Expected at least one learning bit kept")
	}
	bits, err := stack.storage.BitStorage().CountBits(context.Background())
	if err != nil {
		t.Fatalf("Failed to count bits: %v", err)
	}
	if bits != job.Metrics.BitsKept {
		t.Errorf("Expected %d stored bits, got %d", job.Metrics.BitsKept, bits)
	}
}

func TestCrawlSiteMaxDepthZero(t *testing.T) {
	recorder := &requestRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder.record(r.URL.Path)
		fmt.Fprint(w, pageHTML("Seed", "The seed page links onward but depth zero stops here.", "/next", "/other"))
	}))
	defer server.Close()

	stack := newTestStack(t, crawlerTestConfig())
	config := testCrawlConfig()
	config.MaxDepth = 0

	job, err := stack.crawler.CrawlSite(context.Background(), server.URL, &config)
	if err != nil {
		t.Fatalf("Failed to crawl: %v", err)
	}

	if job.Metrics.PagesFetched != 1 {
		t.Errorf("Expected only the seed fetched, got %d pages", job.Metrics.PagesFetched)
	}
	if job.Metrics.LinksDiscovered != 0 {
		t.Errorf("Expected no links discovered at depth zero, got %d", job.Metrics.LinksDiscovered)
	}
	if paths := recorder.recorded(); len(paths) != 1 {
		t.Errorf("Expected 1 request, got %v", paths)
	}
}

func TestCrawlSiteSinglePage(t *testing.T) {
	// 1. A bare concept page: no title tag, one heading with its definition
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<h1>Alpha</h1><p>Definition of Alpha.</p>")
	}))
	defer server.Close()

	stack := newTestStack(t, crawlerTestConfig())
	config := testCrawlConfig()
	config.MaxPages = 1
	config.MaxDepth = 0

	job, err := stack.crawler.CrawlSite(context.Background(), server.URL, &config)
	if err != nil {
		t.Fatalf("Failed to crawl: %v", err)
	}
	if job.State != models.JobStateCompleted {
		t.Errorf("Expected completed state, got %s", job.State)
	}
	if job.Metrics.PagesFetched != 1 {
		t.Errorf("Expected 1 page fetched, got %d", job.Metrics.PagesFetched)
	}
	if job.Metrics.BitsKept != 1 {
		t.Errorf("Expected 1 bit kept, got %d", job.Metrics.BitsKept)
	}

	// 2. The page landed with the h1 standing in for the missing title tag
	pages, err := stack.storage.PageStorage().ListPages(context.Background(), nil)
	if err != nil {
		t.Fatalf("Failed to list pages: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("Expected 1 stored page, got %d", len(pages))
	}
	if pages[0].Title != "Alpha" {
		t.Errorf("Expected title Alpha, got %q", pages[0].Title)
	}

	// 3. One concept bit, uncategorized without rules, scores inside the
	// acceptance band
	bits, err := stack.storage.BitStorage().QueryBits(context.Background(), &models.BitFilter{})
	if err != nil {
		t.Fatalf("Failed to query bits: %v", err)
	}
	if len(bits) != 1 {
		t.Fatalf("Expected 1 stored bit, got %d", len(bits))
	}
	bit := bits[0]
	if bit.ContentType != models.ContentTypeConcept {
		t.Errorf("Expected concept content type, got %s", bit.ContentType)
	}
	if bit.Category != models.CategoryUncategorized {
		t.Errorf("Expected uncategorized category, got %s", bit.Category)
	}
	if bit.Context != "Alpha" {
		t.Errorf("Expected heading context Alpha, got %q", bit.Context)
	}
	if bit.ImportanceScore < 0.3 || bit.ImportanceScore > 0.7 {
		t.Errorf("Expected importance in [0.3,0.7], got %f", bit.ImportanceScore)
	}
	if bit.ConfidenceScore < 0.5 || bit.ConfidenceScore > 1.0 {
		t.Errorf("Expected confidence in [0.5,1.0], got %f", bit.ConfidenceScore)
	}
}

func TestCrawlSiteMaxPagesBudget(t *testing.T) {
	// 1. The seed links to four more pages but the budget allows two fetches
	recorder := &requestRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder.record(r.URL.Path)
		if r.URL.Path == "/" {
			fmt.Fprint(w, pageHTML("Hub", "The hub page links to four detail pages.",
				"/p1", "/p2", "/p3", "/p4"))
			return
		}
		fmt.Fprint(w, pageHTML("Detail", "A detail page with a paragraph of its own content."))
	}))
	defer server.Close()

	stack := newTestStack(t, crawlerTestConfig())
	config := testCrawlConfig()
	config.MaxPages = 2

	job, err := stack.crawler.CrawlSite(context.Background(), server.URL, &config)
	if err != nil {
		t.Fatalf("Failed to crawl: %v", err)
	}

	// 2. The job completes normally at the budget, leaving the frontier behind
	if job.State != models.JobStateCompleted {
		t.Errorf("Expected completed state, got %s", job.State)
	}
	if job.Metrics.PagesFetched != 2 {
		t.Errorf("Expected exactly 2 pages fetched, got %d", job.Metrics.PagesFetched)
	}
	if paths := recorder.recorded(); len(paths) != 2 {
		t.Errorf("Expected 2 requests, got %v", paths)
	}

	count, err := stack.storage.PageStorage().CountPages(context.Background())
	if err != nil {
		t.Fatalf("Failed to count pages: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 stored pages, got %d", count)
	}
}

func TestCrawlSiteRobotsDeniedSeed(t *testing.T) {
	// 1. robots.txt disallows everything
	recorder := &requestRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder.record(r.URL.Path)
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /\n")
			return
		}
		fmt.Fprint(w, pageHTML("Hidden", "This page should never be fetched by a polite crawler."))
	}))
	defer server.Close()

	stack := newTestStack(t, crawlerTestConfig())
	config := models.DefaultCrawlConfig()

	// 2. The job completes normally with zero pages processed
	job, err := stack.crawler.CrawlSite(context.Background(), server.URL, &config)
	if err != nil {
		t.Fatalf("Expected clean completion, got %v", err)
	}
	if job.State != models.JobStateCompleted {
		t.Errorf("Expected completed state, got %s", job.State)
	}
	if job.Metrics.PagesFetched != 0 {
		t.Errorf("Expected 0 pages fetched, got %d", job.Metrics.PagesFetched)
	}
	if job.Metrics.PagesSkipped != 1 {
		t.Errorf("Expected 1 page skipped, got %d", job.Metrics.PagesSkipped)
	}
	if job.Metrics.ErrorCounts[string(models.ErrPolicyBlocked)] != 1 {
		t.Errorf("Expected 1 policy_blocked error, got %v", job.Metrics.ErrorCounts)
	}

	// 3. Only robots.txt was requested
	for _, path := range recorder.recorded() {
		if path != "/robots.txt" {
			t.Errorf("Unexpected request to %s", path)
		}
	}

	// 4. The skip is recorded as a page marker
	page, err := stack.storage.PageStorage().GetPageByURL(context.Background(), server.URL+"/")
	if err != nil {
		t.Fatalf("Expected a stored page marker: %v", err)
	}
	if page.Status != models.PageStatusSkippedRobots {
		t.Errorf("Expected skipped-robots status, got %s", page.Status)
	}
}

func TestCrawlSiteContentDedup(t *testing.T) {
	// Two URLs serve a byte-identical body; the second is recorded as a
	// duplicate and emits nothing.
	body := pageHTML("Mirror", "The same body is served from two distinct addresses here.", "/copy")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	stack := newTestStack(t, crawlerTestConfig())
	config := testCrawlConfig()

	job, err := stack.crawler.CrawlSite(context.Background(), server.URL, &config)
	if err != nil {
		t.Fatalf("Failed to crawl: %v", err)
	}

	if job.Metrics.PagesFetched != 1 {
		t.Errorf("Expected 1 page fetched, got %d", job.Metrics.PagesFetched)
	}
	if job.Metrics.PagesSkipped != 1 {
		t.Errorf("Expected 1 page skipped as duplicate, got %d", job.Metrics.PagesSkipped)
	}

	page, err := stack.storage.PageStorage().GetPageByURL(context.Background(), server.URL+"/copy")
	if err != nil {
		t.Fatalf("Expected duplicate page marker: %v", err)
	}
	if page.Status != models.PageStatusSkippedDedup {
		t.Errorf("Expected skipped-dedup status, got %s", page.Status)
	}

	// Bits came only from the first copy
	bits, err := stack.storage.BitStorage().QueryBits(context.Background(), &models.BitFilter{})
	if err != nil {
		t.Fatalf("Failed to query bits: %v", err)
	}
	firstPageID := models.NewPageID(server.URL + "/")
	for _, bit := range bits {
		if bit.PageID != firstPageID {
			t.Errorf("Expected bits only from the first page, got one from %s", bit.PageID)
		}
	}
}

func TestCrawlSiteOversizedBody(t *testing.T) {
	// 1. The seed links to a page whose body exceeds the fetch cap
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/big" {
			fmt.Fprint(w, strings.Repeat("x", 4096))
			return
		}
		fmt.Fprint(w, pageHTML("Index", "A small page linking to an oversized download.", "/big"))
	}))
	defer server.Close()

	config := crawlerTestConfig()
	config.MaxBodySize = 1024

	stack := newTestStack(t, config)
	crawlConfig := testCrawlConfig()

	// 2. The job completes; the oversized page is skipped, not failed
	job, err := stack.crawler.CrawlSite(context.Background(), server.URL, &crawlConfig)
	if err != nil {
		t.Fatalf("Failed to crawl: %v", err)
	}
	if job.State != models.JobStateCompleted {
		t.Errorf("Expected completed state, got %s", job.State)
	}
	if job.Metrics.PagesFetched != 1 {
		t.Errorf("Expected 1 page fetched, got %d", job.Metrics.PagesFetched)
	}
	if job.Metrics.PagesSkipped != 1 {
		t.Errorf("Expected 1 page skipped, got %d", job.Metrics.PagesSkipped)
	}
	if job.Metrics.ErrorCounts[string(models.ErrPolicyBlocked)] != 1 {
		t.Errorf("Expected 1 policy_blocked error, got %v", job.Metrics.ErrorCounts)
	}

	// 3. The oversized URL is recorded as a skipped page marker
	page, err := stack.storage.PageStorage().GetPageByURL(context.Background(), server.URL+"/big")
	if err != nil {
		t.Fatalf("Expected a stored page marker: %v", err)
	}
	if page.Status != models.PageStatusSkipped {
		t.Errorf("Expected skipped status, got %s", page.Status)
	}
}

func TestCrawlSiteEmptySeed(t *testing.T) {
	stack := newTestStack(t, crawlerTestConfig())

	_, err := stack.crawler.CrawlSite(context.Background(), "   ", nil)
	if err == nil {
		t.Fatal("Expected error for empty seed")
	}
	var classified *models.ClassifiedError
	if !errors.As(err, &classified) || classified.Kind != models.ErrBadInput {
		t.Errorf("Expected bad_input kind, got %v", err)
	}

	// Nothing was persisted
	jobs, err := stack.crawler.ListJobs(context.Background(), nil)
	if err != nil {
		t.Fatalf("Failed to list jobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("Expected no jobs persisted, got %d", len(jobs))
	}
}

func TestCrawlSiteHostBlacklist(t *testing.T) {
	// 1. A healthy seed host linking to a host that always fails
	var badRequests atomic.Int32
	badServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		badRequests.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer badServer.Close()

	seedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML("Seed", "This page links to three URLs on a failing host.",
			badServer.URL+"/x1", badServer.URL+"/x2", badServer.URL+"/x3"))
	}))
	defer seedServer.Close()

	config := crawlerTestConfig()
	config.HostFailureLimit = 2

	stack := newTestStack(t, config)
	crawlConfig := testCrawlConfig()

	// 2. After two consecutive failures the third URL is skipped unfetched
	job, err := stack.crawler.CrawlSite(context.Background(), seedServer.URL, &crawlConfig)
	if err != nil {
		t.Fatalf("Failed to crawl: %v", err)
	}
	if job.State != models.JobStateCompleted {
		t.Errorf("Expected completed state, got %s", job.State)
	}
	if got := badRequests.Load(); got != 2 {
		t.Errorf("Expected 2 requests to the failing host, got %d", got)
	}
	if job.Metrics.ErrorCounts[string(models.ErrTransientNetwork)] != 2 {
		t.Errorf("Expected 2 transient_network errors, got %v", job.Metrics.ErrorCounts)
	}
	if job.Metrics.ErrorCounts[string(models.ErrPolicyBlocked)] != 1 {
		t.Errorf("Expected 1 policy_blocked error, got %v", job.Metrics.ErrorCounts)
	}
	if job.Metrics.PagesSkipped != 1 {
		t.Errorf("Expected 1 page skipped, got %d", job.Metrics.PagesSkipped)
	}
	if job.Metrics.LinksDiscovered != 3 {
		t.Errorf("Expected 3 links discovered, got %d", job.Metrics.LinksDiscovered)
	}
}

func TestCrawlSiteSameHostOnly(t *testing.T) {
	otherServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Off-host URL should not be fetched")
	}))
	defer otherServer.Close()

	seedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML("Seed", "Links leave the seed host but the config confines the crawl.",
			otherServer.URL+"/away", "/local"))
	}))
	defer seedServer.Close()

	stack := newTestStack(t, crawlerTestConfig())
	config := testCrawlConfig()
	config.SameHostOnly = true

	job, err := stack.crawler.CrawlSite(context.Background(), seedServer.URL, &config)
	if err != nil {
		t.Fatalf("Failed to crawl: %v", err)
	}
	if job.Metrics.LinksDiscovered != 1 {
		t.Errorf("Expected only the local link discovered, got %d", job.Metrics.LinksDiscovered)
	}
}

func TestCrawlSiteCancellation(t *testing.T) {
	// 1. Cancel while the second page is in flight
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML("Seed", "The seed page completes before cancellation strikes.", "/slow"))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		cancel()
		// Let the client observe cancellation before the body arrives
		time.Sleep(50 * time.Millisecond)
		fmt.Fprint(w, pageHTML("Late", "This body arrives after the context ended."))
	})

	stack := newTestStack(t, crawlerTestConfig())
	config := testCrawlConfig()

	job, err := stack.crawler.CrawlSite(ctx, server.URL, &config)
	if err == nil {
		t.Fatal("Expected cancellation error")
	}
	if kind, ok := models.KindOf(err); !ok || kind != models.ErrCancelled {
		t.Errorf("Expected cancelled kind, got %v", err)
	}

	// 2. Partial metrics survive on the job
	if job == nil {
		t.Fatal("Expected the partial job back")
	}
	if job.State != models.JobStateCancelled {
		t.Errorf("Expected cancelled state, got %s", job.State)
	}
	if job.Metrics.PagesFetched != 1 {
		t.Errorf("Expected 1 page fetched before cancellation, got %d", job.Metrics.PagesFetched)
	}

	// 3. The terminal state was persisted despite the dead context
	stored, err := stack.crawler.GetJobStatus(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("Failed to load job: %v", err)
	}
	if stored.State != models.JobStateCancelled {
		t.Errorf("Expected stored cancelled state, got %s", stored.State)
	}
}

func TestCrawlSiteRefetchUnchanged(t *testing.T) {
	// Crawling the same seed twice stores one page and refreshes last_seen
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML("Stable", "The body of this page never changes between visits."))
	}))
	defer server.Close()

	stack := newTestStack(t, crawlerTestConfig())
	config := testCrawlConfig()

	first, err := stack.crawler.CrawlSite(context.Background(), server.URL, &config)
	if err != nil {
		t.Fatalf("Failed first crawl: %v", err)
	}
	page1, err := stack.storage.PageStorage().GetPageByURL(context.Background(), server.URL+"/")
	if err != nil {
		t.Fatalf("Failed to load page: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	second, err := stack.crawler.CrawlSite(context.Background(), server.URL, &config)
	if err != nil {
		t.Fatalf("Failed second crawl: %v", err)
	}
	if second.Metrics.PagesFetched != 1 {
		t.Errorf("Expected refetch counted, got %d", second.Metrics.PagesFetched)
	}
	if second.Metrics.BitsEmitted != 0 {
		t.Errorf("Expected no re-extraction for unchanged content, got %d candidates", second.Metrics.BitsEmitted)
	}

	page2, err := stack.storage.PageStorage().GetPageByURL(context.Background(), server.URL+"/")
	if err != nil {
		t.Fatalf("Failed to reload page: %v", err)
	}
	if !page2.FetchedAt.Equal(page1.FetchedAt) {
		t.Error("Expected original fetch time preserved on refetch")
	}
	if !page2.LastSeen.After(page1.LastSeen) {
		t.Error("Expected last_seen refreshed on refetch")
	}

	count, err := stack.storage.PageStorage().CountPages(context.Background())
	if err != nil {
		t.Fatalf("Failed to count pages: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected a single stored page, got %d", count)
	}

	// Both jobs are retained
	if first.JobID == second.JobID {
		t.Error("Expected distinct job IDs")
	}
}

func TestCrawlSitePerJobDelay(t *testing.T) {
	// 1. Three same-host pages with a 150ms per-job politeness delay
	var mu sync.Mutex
	var arrivals []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		mu.Unlock()
		if r.URL.Path == "/" {
			fmt.Fprint(w, pageHTML("Seed", "The seed page links to two more pages on this host.", "/a", "/b"))
			return
		}
		fmt.Fprint(w, pageHTML("Leaf "+r.URL.Path, "A distinct paragraph about the page at "+r.URL.Path+" lives here."))
	}))
	defer server.Close()

	stack := newTestStack(t, crawlerTestConfig())
	config := testCrawlConfig()
	config.CrawlDelay = 0.15

	job, err := stack.crawler.CrawlSite(context.Background(), server.URL, &config)
	if err != nil {
		t.Fatalf("Failed to crawl: %v", err)
	}
	if job.Metrics.PagesFetched != 3 {
		t.Fatalf("Expected 3 pages fetched, got %d", job.Metrics.PagesFetched)
	}

	// 2. The job delay raised the host politeness above the 1ms service
	// default: two gaps of at least 150ms separate the three fetches
	mu.Lock()
	defer mu.Unlock()
	if len(arrivals) != 3 {
		t.Fatalf("Expected 3 requests, got %d", len(arrivals))
	}
	if span := arrivals[2].Sub(arrivals[0]); span < 280*time.Millisecond {
		t.Errorf("Expected at least two 150ms politeness gaps, got %v", span)
	}
}

func TestExecuteSkipsCancelledJob(t *testing.T) {
	stack := newTestStack(t, crawlerTestConfig())

	job := &models.CrawlJob{
		JobID:   common.NewJobID(),
		SeedURL: "http://example.com",
		Config:  models.DefaultCrawlConfig(),
		State:   models.JobStateCancelled,
	}
	if err := stack.crawler.Execute(context.Background(), job); err != nil {
		t.Fatalf("Expected cancelled job to be skipped, got %v", err)
	}
	if job.State != models.JobStateCancelled {
		t.Errorf("Expected state untouched, got %s", job.State)
	}
}

func TestExecuteRejectsCompletedJob(t *testing.T) {
	stack := newTestStack(t, crawlerTestConfig())

	job := &models.CrawlJob{
		JobID:   common.NewJobID(),
		SeedURL: "http://example.com",
		Config:  models.DefaultCrawlConfig(),
		State:   models.JobStateCompleted,
	}
	err := stack.crawler.Execute(context.Background(), job)
	if err == nil {
		t.Fatal("Expected error for completed job")
	}
	var classified *models.ClassifiedError
	if !errors.As(err, &classified) || classified.Kind != models.ErrBadInput {
		t.Errorf("Expected bad_input kind, got %v", err)
	}
}

func TestWaitForJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML("Quick", "A single page crawl finishes fast enough to wait for."))
	}))
	defer server.Close()

	stack := newTestStack(t, crawlerTestConfig())
	config := testCrawlConfig()

	job, err := stack.crawler.CrawlSite(context.Background(), server.URL, &config)
	if err != nil {
		t.Fatalf("Failed to crawl: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done, err := stack.crawler.WaitForJob(ctx, job.JobID)
	if err != nil {
		t.Fatalf("Failed to wait: %v", err)
	}
	if done.State != models.JobStateCompleted {
		t.Errorf("Expected completed state, got %s", done.State)
	}
}
