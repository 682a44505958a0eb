package search

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/ternarybob/percipio/internal/models"
)

// providerOptions carries the shared adapter configuration. Every provider
// needs an API key; the rest has working defaults.
type providerOptions struct {
	apiKey  string
	baseURL string
	client  *http.Client
	trust   float64
	limiter *rate.Limiter
}

// ProviderOption configures a search provider adapter.
type ProviderOption func(*providerOptions)

// WithAPIKey sets the provider API key. Required.
func WithAPIKey(key string) ProviderOption {
	return func(o *providerOptions) { o.apiKey = key }
}

// WithBaseURL overrides the provider endpoint, mainly for tests.
func WithBaseURL(baseURL string) ProviderOption {
	return func(o *providerOptions) { o.baseURL = baseURL }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(o *providerOptions) { o.client = client }
}

// WithTrust sets the provider's source weight in relevance scoring.
func WithTrust(trust float64) ProviderOption {
	return func(o *providerOptions) { o.trust = trust }
}

// WithLimiter overrides the request smoothing limiter.
func WithLimiter(limiter *rate.Limiter) ProviderOption {
	return func(o *providerOptions) { o.limiter = limiter }
}

func newProviderOptions(defaultBaseURL string, defaultTrust float64, opts []ProviderOption) (*providerOptions, error) {
	o := &providerOptions{
		baseURL: defaultBaseURL,
		trust:   defaultTrust,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(1), 5),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.apiKey == "" {
		return nil, models.Kindf(models.ErrBadInput, "api key is required")
	}
	if o.trust < 0 {
		o.trust = 0
	}
	if o.trust > 1 {
		o.trust = 1
	}
	return o, nil
}

// classifyStatus maps provider HTTP statuses onto error kinds. 429 means
// the provider-side quota ran out and drops the provider for the window;
// 5xx may succeed next dispatch.
func classifyStatus(provider string, status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests:
		return models.Kindf(models.ErrQuotaExhausted, "%s rate limited: status %d", provider, status)
	case status >= 500:
		return models.Kindf(models.ErrTransientNetwork, "%s server error %d", provider, status)
	default:
		return models.Kindf(models.ErrPermanentHttp, "%s request rejected: status %d", provider, status)
	}
}

// classifyTransportError keeps context and net classifications and treats
// everything else as transient.
func classifyTransportError(err error) error {
	if kind, ok := models.KindOf(err); ok {
		return models.WrapKind(kind, err)
	}
	return models.WrapKind(models.ErrTransientNetwork, err)
}
