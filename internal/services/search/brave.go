package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
)

const braveDefaultBaseURL = "https://api.search.brave.com/res/v1/web/search"

// braveProvider queries the Brave web search API.
type braveProvider struct {
	opts   *providerOptions
	logger arbor.ILogger
}

// NewBraveProvider creates a Brave adapter. WithAPIKey is required.
func NewBraveProvider(logger arbor.ILogger, opts ...ProviderOption) (interfaces.SearchProvider, error) {
	o, err := newProviderOptions(braveDefaultBaseURL, 0.8, opts)
	if err != nil {
		return nil, fmt.Errorf("brave: %w", err)
	}
	return &braveProvider{opts: o, logger: logger}, nil
}

func (p *braveProvider) Name() string {
	return "brave"
}

func (p *braveProvider) Trust() float64 {
	return p.opts.trust
}

func (p *braveProvider) Query(ctx context.Context, text string, limit int) ([]models.ProviderResult, error) {
	if err := p.opts.limiter.Wait(ctx); err != nil {
		return nil, classifyTransportError(err)
	}

	params := url.Values{}
	params.Set("q", text)
	if limit > 0 {
		params.Set("count", strconv.Itoa(limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.opts.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, models.WrapKind(models.ErrBadInput, err)
	}
	req.Header.Set("X-Subscription-Token", p.opts.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.opts.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(p.Name(), resp.StatusCode); err != nil {
		return nil, err
	}

	var parsed struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, models.Kindf(models.ErrParseFailed, "brave response: %v", err)
	}

	results := make([]models.ProviderResult, 0, len(parsed.Web.Results))
	for i, item := range parsed.Web.Results {
		if item.URL == "" {
			continue
		}
		results = append(results, models.ProviderResult{
			URL:     item.URL,
			Title:   item.Title,
			Snippet: item.Description,
			Rank:    i + 1,
		})
		if limit > 0 && len(results) >= limit {
			break
		}
	}

	p.logger.Debug().
		Str("query", text).
		Int("results", len(results)).
		Msg("Brave search completed")

	return results, nil
}
