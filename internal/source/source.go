// Package source pairs each configured source with the provider that serves it.
package source

import (
	"fmt"
	"net/http"

	"financeexporter/internal/config"
	"financeexporter/internal/provider"
	"financeexporter/internal/provider/alphavantage"
	"financeexporter/internal/provider/cache"
	"financeexporter/internal/provider/iexcloud"
	"financeexporter/internal/provider/ratelimit"
	"financeexporter/internal/provider/yfinance"
)

// HTTPClient describes an HTTP client shared by every provider.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Bound is a source together with its provider. The provider is bound once
// at startup and the embedded Source is never modified.
type Bound struct {
	config.Source
	Provider provider.Provider
}

// NewProvider builds the client for plugin.
func NewProvider(plugin config.Plugin, apiKey string, hc HTTPClient) (provider.Provider, error) {
	switch plugin {
	case config.PluginYFinance:
		return yfinance.NewClient(yfinance.WithHTTPClient(hc))
	case config.PluginAlphaVantage:
		return alphavantage.NewClient(apiKey, alphavantage.WithHTTPClient(hc))
	case config.PluginIEXCloud:
		return iexcloud.NewClient(apiKey, iexcloud.WithHTTPClient(hc))
	}
	return nil, fmt.Errorf("unknown plugin %q", plugin)
}

// RequestsPerFetch is the number of upstream requests one Fetch of plugin
// makes. Request budgets are charged per upstream request.
func RequestsPerFetch(plugin config.Plugin) int {
	if plugin == config.PluginAlphaVantage {
		return alphavantage.RequestsPerFetch
	}
	return 1
}

type clientKey struct {
	plugin config.Plugin
	apiKey string
}

// Bind builds a provider for every source. Sources with the same plugin and
// credentials share one coalescing client. Request budgets and quote caches
// stay per source, and a cache hit does not spend a request.
func Bind(sources []config.Source, hc HTTPClient) ([]Bound, error) {
	shared := make(map[clientKey]provider.Provider)
	out := make([]Bound, 0, len(sources))
	for _, s := range sources {
		k := clientKey{plugin: s.Plugin, apiKey: s.APIKey}
		p, ok := shared[k]
		if !ok {
			client, err := NewProvider(s.Plugin, s.APIKey, hc)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", s.Name, err)
			}
			p = provider.Coalesce(client)
			shared[k] = p
		}
		out = append(out, Bound{
			Source:   s,
			Provider: cache.New(ratelimit.PerMinute(p, s.RequestsPerMinute, s.Burst, RequestsPerFetch(s.Plugin)), s.CacheTTL),
		})
	}
	return out, nil
}
