package search

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/percipio/internal/common"
	"github.com/ternarybob/percipio/internal/interfaces"
)

// NewProvidersFromConfig builds the provider set from configuration.
// Providers without an API key are skipped, so an unconfigured install
// runs with web search disabled rather than failing to start.
func NewProvidersFromConfig(config *common.SearchConfig, logger arbor.ILogger) []interfaces.SearchProvider {
	providers := make([]interfaces.SearchProvider, 0, 2)

	if config.Serper.APIKey != "" {
		provider, err := NewSerperProvider(logger, providerConfigOptions(&config.Serper)...)
		if err != nil {
			logger.Warn().Err(err).Msg("Serper provider disabled")
		} else {
			providers = append(providers, provider)
		}
	}

	if config.Brave.APIKey != "" {
		provider, err := NewBraveProvider(logger, providerConfigOptions(&config.Brave)...)
		if err != nil {
			logger.Warn().Err(err).Msg("Brave provider disabled")
		} else {
			providers = append(providers, provider)
		}
	}

	if len(providers) == 0 {
		logger.Warn().Msg("Web search disabled: no provider API keys configured")
	}
	return providers
}

func providerConfigOptions(config *common.ProviderConfig) []ProviderOption {
	opts := []ProviderOption{WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, WithBaseURL(config.BaseURL))
	}
	if config.Trust > 0 {
		opts = append(opts, WithTrust(config.Trust))
	}
	return opts
}
