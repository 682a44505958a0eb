package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
)

const serperDefaultBaseURL = "https://google.serper.dev/search"

// serperProvider queries the Serper Google search API.
type serperProvider struct {
	opts   *providerOptions
	logger arbor.ILogger
}

// NewSerperProvider creates a Serper adapter. WithAPIKey is required.
func NewSerperProvider(logger arbor.ILogger, opts ...ProviderOption) (interfaces.SearchProvider, error) {
	o, err := newProviderOptions(serperDefaultBaseURL, 0.9, opts)
	if err != nil {
		return nil, fmt.Errorf("serper: %w", err)
	}
	return &serperProvider{opts: o, logger: logger}, nil
}

func (p *serperProvider) Name() string {
	return "serper"
}

func (p *serperProvider) Trust() float64 {
	return p.opts.trust
}

func (p *serperProvider) Query(ctx context.Context, text string, limit int) ([]models.ProviderResult, error) {
	if err := p.opts.limiter.Wait(ctx); err != nil {
		return nil, classifyTransportError(err)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"q":   text,
		"num": limit,
	})
	if err != nil {
		return nil, models.WrapKind(models.ErrBadInput, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.opts.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, models.WrapKind(models.ErrBadInput, err)
	}
	req.Header.Set("X-API-KEY", p.opts.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.opts.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(p.Name(), resp.StatusCode); err != nil {
		return nil, err
	}

	var parsed struct {
		Organic []struct {
			Title    string `json:"title"`
			Link     string `json:"link"`
			Snippet  string `json:"snippet"`
			Position int    `json:"position"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, models.Kindf(models.ErrParseFailed, "serper response: %v", err)
	}

	results := make([]models.ProviderResult, 0, len(parsed.Organic))
	for i, item := range parsed.Organic {
		if item.Link == "" {
			continue
		}
		rank := item.Position
		if rank < 1 {
			rank = i + 1
		}
		results = append(results, models.ProviderResult{
			URL:     item.Link,
			Title:   item.Title,
			Snippet: item.Snippet,
			Rank:    rank,
		})
		if limit > 0 && len(results) >= limit {
			break
		}
	}

	p.logger.Debug().
		Str("query", text).
		Int("results", len(results)).
		Msg("Serper search completed")

	return results, nil
}
