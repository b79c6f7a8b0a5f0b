package ingestion

import (
	"context"
	"time"

	"Trendline/backend/go/internal/models"
	"Trendline/backend/go/pkg/util"
)

// CachedFetcher memoizes successful fetches per URL so a re-run of the same search
// inside the TTL does not scrape the same pages again. Failures are not cached.
type CachedFetcher struct {
	inner ContentFetcher
	cache *util.LRUCache[string, models.ScrapeResult]
}

// NewCachedFetcher wraps inner with an LRU cache.
func NewCachedFetcher(inner ContentFetcher, capacity int, ttl time.Duration) (*CachedFetcher, error) {
	cache, err := util.NewWithConfig[string, models.ScrapeResult](util.CacheConfig{Capacity: capacity, TTL: ttl})
	if err != nil {
		return nil, err
	}
	return &CachedFetcher{inner: inner, cache: cache}, nil
}

// Fetch implements ContentFetcher.
func (c *CachedFetcher) Fetch(ctx context.Context, url string) (*models.ScrapeResult, error) {
	if hit, ok := c.cache.Get(url); ok {
		res := hit
		return &res, nil
	}
	res, err := c.inner.Fetch(ctx, url)
	if err != nil || res == nil {
		return nil, err
	}
	c.cache.Put(url, *res, 1)
	return res, nil
}
