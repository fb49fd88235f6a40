package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/adapter"
	"agentic-workflow/internal/infra/metrics"
	red "agentic-workflow/internal/infra/redis"
)

var _ adapter.SearchAdapter = (*cachedSearch)(nil)

// cachedSearch keeps successful results in Redis. Failures are never cached.
type cachedSearch struct {
	inner    adapter.SearchAdapter
	provider string
	cache    red.RedisClient
	ttl      time.Duration
	log      *zerolog.Logger
}

func NewCachedSearch(inner adapter.SearchAdapter, provider string, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) adapter.SearchAdapter {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &cachedSearch{inner: inner, provider: provider, cache: cache, ttl: ttl, log: logger}
}

func CacheKey(provider string, maxResults int, query string) string {
	return fmt.Sprintf("search:%s:%d:%s", provider, maxResults, strings.ToLower(strings.TrimSpace(query)))
}

func (c *cachedSearch) Search(ctx context.Context, query string, maxResults int) (model.SearchResult, error) {
	key := CacheKey(c.provider, maxResults, query)
	val, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var res model.SearchResult
		if json.Unmarshal([]byte(val), &res) == nil {
			metrics.IncCacheRequest("search", "hit")
			res.Query = query
			return res, nil
		}
	case !errors.Is(err, redis.Nil):
		metrics.IncCacheRequest("search", "error")
		c.log.Warn().Err(err).Str("query", query).Msg("search cache read failed")
	}
	metrics.IncCacheRequest("search", "miss")

	res, err := c.inner.Search(ctx, query, maxResults)
	if err != nil {
		return res, err
	}
	if b, err := json.Marshal(res); err == nil {
		if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
			c.log.Debug().Err(err).Msg("search cache write failed")
		}
	}
	return res, nil
}
