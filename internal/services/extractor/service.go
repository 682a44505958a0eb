package extractor

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
)

// minCandidateWords filters fragments too short to carry a fact. Code blocks
// are exempt.
const minCandidateWords = 3

// stepsHeading marks sections whose ordered lists read as tutorial steps
var stepsHeading = regexp.MustCompile(`(?i)\b(steps?|how to|getting started|installation|install|setup|tutorial|usage)\b`)

// Service parses fetched HTML into candidate spans and outbound links.
// Link discovery runs before boilerplate stripping so navigation links still
// feed the frontier; candidates are enumerated after.
type Service struct {
	logger arbor.ILogger
}

// NewService creates a new extractor
func NewService(logger arbor.ILogger) interfaces.Extractor {
	return &Service{
		logger: logger,
	}
}

// Extract parses one page body into candidates and links
func (s *Service) Extract(ctx context.Context, pageURL string, body []byte) (*models.ExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		kind, _ := models.KindOf(err)
		return nil, models.WrapKind(kind, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, models.Kindf(models.ErrParseFailed, "failed to parse HTML for %s: %v", pageURL, err)
	}

	title := pageTitle(doc)
	links := s.extractLinks(doc, pageURL)

	stripBoilerplate(doc)

	lang, certainty := pageLanguage(doc)
	candidates := s.collectCandidates(doc, pageURL)
	for i := range candidates {
		candidates[i].LanguageCertainty = certainty
	}

	s.logger.Debug().
		Str("url", pageURL).
		Int("candidates", len(candidates)).
		Int("links", len(links)).
		Str("language", lang).
		Msg("Extracted page")

	return &models.ExtractionResult{
		Title:             title,
		Language:          lang,
		LanguageCertainty: certainty,
		Candidates:        candidates,
		Links:             links,
	}, nil
}

// pageTitle prefers the title tag, falling back to the first h1
func pageTitle(doc *goquery.Document) string {
	title := cleanText(doc.Find("title").First().Text())
	if title == "" {
		title = cleanText(doc.Find("h1").First().Text())
	}
	return title
}

// stripBoilerplate removes script, style, and chrome elements before
// candidate enumeration
func stripBoilerplate(doc *goquery.Document) {
	doc.Find("script, style, noscript, iframe, svg").Remove()
	doc.Find("nav, header, footer, aside").Remove()
	doc.Find("[class*=sidebar], [class*=promo], [class*=cookie]").Remove()
}

// pageLanguage uses the html lang attribute when present, otherwise the
// stopword heuristic over the stripped body text
func pageLanguage(doc *goquery.Document) (string, float64) {
	if lang := doc.Find("html").AttrOr("lang", ""); lang != "" {
		if idx := strings.IndexAny(lang, "-_"); idx > 0 {
			lang = lang[:idx]
		}
		return strings.ToLower(lang), 0.9
	}
	return detectLanguage(doc.Find("body").Text())
}

// candidateCollector accumulates candidates in document order
type candidateCollector struct {
	candidates []models.Candidate
	position   int
}

func (c *candidateCollector) add(raw string, role models.StructuralRole, heading, context string, boilerplate bool) {
	if raw == "" {
		return
	}
	words := len(strings.Fields(raw))
	if role != models.RoleCodeBlock && words < minCandidateWords {
		return
	}

	c.candidates = append(c.candidates, models.Candidate{
		RawText:     raw,
		Context:     truncate(context, models.MaxContextLength),
		Heading:     heading,
		Role:        role,
		Position:    c.position,
		WordCount:   words,
		Complexity:  estimateComplexity(raw, role),
		Boilerplate: boilerplate,
	})
	c.position++
}

// collectCandidates enumerates candidate spans: headings paired with their
// following paragraph, list items, code blocks, definition-list pairs, and
// blockquotes. Later paragraphs of a section are plain paragraph spans.
func (s *Service) collectCandidates(doc *goquery.Document, pageURL string) []models.Candidate {
	collector := &candidateCollector{}
	converter := md.NewConverter(pageURL, true, nil)

	var lastHeading string
	prevWasHeading := false

	doc.Find("h1, h2, h3, h4, h5, h6, p, li, pre, dl, blockquote").Each(func(_ int, sel *goquery.Selection) {
		switch goquery.NodeName(sel) {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			lastHeading = cleanText(sel.Text())
			prevWasHeading = true
			return

		case "p":
			// Paragraphs inside list items, quotes, or definition lists are
			// covered by the enclosing candidate
			if sel.ParentsFiltered("li, blockquote, dl").Length() == 0 {
				role := models.RoleParagraph
				if prevWasHeading {
					role = models.RoleHeadingParagraph
				}
				collector.add(renderInline(converter, sel), role, lastHeading, surroundingText(sel, lastHeading), false)
			}

		case "li":
			// Only leaf items; nested lists and embedded code blocks are
			// their own candidates
			if sel.Find("li, pre").Length() == 0 {
				role := models.RoleListItem
				if sel.Closest("ol").Length() > 0 && stepsHeading.MatchString(lastHeading) {
					role = models.RoleTutorialStep
				}
				raw := cleanText(sel.Text())
				collector.add(raw, role, lastHeading, surroundingText(sel, lastHeading), linkDominated(sel, raw))
			}

		case "pre":
			collector.add(cleanCode(sel.Text()), models.RoleCodeBlock, lastHeading, surroundingText(sel, lastHeading), false)

		case "dl":
			sel.ChildrenFiltered("dt").Each(func(_ int, dt *goquery.Selection) {
				term := cleanText(dt.Text())
				def := cleanText(dt.NextFiltered("dd").Text())
				if term == "" || def == "" {
					return
				}
				collector.add(term+": "+def, models.RoleDefinition, lastHeading, surroundingText(sel, lastHeading), false)
			})

		case "blockquote":
			if sel.ParentsFiltered("blockquote").Length() == 0 {
				collector.add(cleanText(sel.Text()), models.RoleBlockquote, lastHeading, surroundingText(sel, lastHeading), false)
			}
		}
		prevWasHeading = false
	})

	return collector.candidates
}

// renderInline keeps inline code and emphasis markers by converting the
// span to markdown; plain spans pass through as text
func renderInline(converter *md.Converter, sel *goquery.Selection) string {
	if sel.Find("code, strong, em").Length() > 0 {
		if html, err := goquery.OuterHtml(sel); err == nil {
			if markdown, err := converter.ConvertString(html); err == nil {
				if text := cleanText(markdown); text != "" {
					return text
				}
			}
		}
	}
	return cleanText(sel.Text())
}

// surroundingText builds the bounded context excerpt from the section
// heading and adjacent siblings
func surroundingText(sel *goquery.Selection, heading string) string {
	parts := make([]string, 0, 3)
	if heading != "" {
		parts = append(parts, heading)
	}
	if prev := cleanText(sel.Prev().Text()); prev != "" && prev != heading {
		parts = append(parts, prev)
	}
	if next := cleanText(sel.Next().Text()); next != "" && next != heading {
		parts = append(parts, next)
	}
	return strings.Join(parts, " ")
}

// linkDominated flags spans that are mostly anchor text, the usual shape of
// navigation chrome that survived stripping
func linkDominated(sel *goquery.Selection, raw string) bool {
	if len(raw) == 0 {
		return false
	}
	anchorLen := len(cleanText(sel.Find("a").Text()))
	return anchorLen*5 >= len(raw)*4
}

// cleanText collapses runs of whitespace into single spaces
func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// cleanCode trims surrounding blank lines but preserves internal layout
func cleanCode(text string) string {
	return strings.Trim(text, "\n\r\t ")
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	// back up to a rune boundary
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
