package extractor

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/percipio/internal/common"
)

// extractLinks discovers outbound links in document order. Relative hrefs
// resolve against the page URL; results are canonical, http(s) only, and
// deduplicated.
func (s *Service) extractLinks(doc *goquery.Document, pageURL string) []string {
	baseURL, err := url.Parse(pageURL)
	if err != nil {
		s.logger.Warn().Err(err).Str("source_url", pageURL).Msg("Failed to parse source URL for link resolution")
		baseURL = nil
	}

	seen := make(map[string]bool)
	links := []string{}

	appendLink := func(href string) {
		if shouldSkipLink(href) {
			return
		}
		resolved := resolveURL(href, baseURL)
		if resolved == "" {
			return
		}
		canonical, err := common.CanonicalizeURL(resolved)
		if err != nil {
			return
		}
		if !strings.HasPrefix(canonical, "http://") && !strings.HasPrefix(canonical, "https://") {
			return
		}
		if !seen[canonical] {
			seen[canonical] = true
			links = append(links, canonical)
		}
	}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		if href, exists := sel.Attr("href"); exists {
			appendLink(href)
		}
	})

	// Pagination and canonical hints also feed the frontier
	doc.Find("link[href]").Each(func(_ int, sel *goquery.Selection) {
		rel, _ := sel.Attr("rel")
		switch rel {
		case "canonical", "next", "prev":
			if href, exists := sel.Attr("href"); exists {
				appendLink(href)
			}
		}
	})

	s.logger.Debug().
		Str("source_url", pageURL).
		Int("links_found", len(links)).
		Msg("Links extracted from HTML content")

	return links
}

// shouldSkipLink filters hrefs that can never become crawlable URLs
func shouldSkipLink(href string) bool {
	href = strings.ToLower(strings.TrimSpace(href))
	if href == "" {
		return true
	}
	if strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "sms:") ||
		strings.HasPrefix(href, "ftp:") ||
		strings.HasPrefix(href, "data:") {
		return true
	}
	// Fragment-only anchors point back into the same page
	return strings.HasPrefix(href, "#")
}

// resolveURL resolves a potentially relative href against the page URL
func resolveURL(href string, baseURL *url.URL) string {
	if baseURL == nil {
		if parsed, err := url.Parse(href); err == nil && parsed.IsAbs() {
			return parsed.String()
		}
		return ""
	}
	resolved, err := baseURL.Parse(href)
	if err != nil {
		return ""
	}
	return resolved.String()
}
