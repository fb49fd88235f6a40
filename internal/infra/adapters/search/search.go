// Package search holds the web search adapters and their decorators.
package search

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"agentic-workflow/internal/config"
	"agentic-workflow/internal/domain/ports/adapter"
	red "agentic-workflow/internal/infra/redis"
)

func orDefaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{}
}

// New builds the configured provider with metrics and, when cache is not
// nil, a Redis result cache in front. It returns nil when no key is set:
// search is then disabled and directives are ignored.
func New(cfg config.SearchConfig, apiKey string, cache red.RedisClient, logger *zerolog.Logger) (adapter.SearchAdapter, error) {
	if apiKey == "" {
		return nil, nil
	}
	client := &http.Client{Timeout: cfg.Timeout}

	var (
		inner adapter.SearchAdapter
		err   error
	)
	switch cfg.Provider {
	case "tavily", "":
		inner, err = NewTavilyAdapter(apiKey, "", client)
	case "serper":
		inner, err = NewSerperAdapter(apiKey, "", client)
	case "brave":
		inner, err = NewBraveAdapter(apiKey, "", client)
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	provider := cfg.Provider
	if provider == "" {
		provider = "tavily"
	}
	out := NewInstrumentedSearch(inner, provider)
	if cache != nil {
		out = NewCachedSearch(out, provider, cache, cfg.CacheTTL, logger)
	}
	return out, nil
}
