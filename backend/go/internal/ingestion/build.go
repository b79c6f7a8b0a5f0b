package ingestion

import (
	"fmt"
	"time"

	"Trendline/backend/go/internal/config"
	httpclient "Trendline/backend/go/pkg/http"
	"Trendline/backend/go/pkg/logger"
	"Trendline/backend/go/pkg/ratelimiter"
)

// NewFromConfig wires the search provider, content fetcher and media checker.
//
// Only the search client carries the circuit breaker. Article pages and media live on
// arbitrary hosts, so their failures are per item and must not shut out healthy links.
// The rate limiter, when enabled, is shared by both clients.
func NewFromConfig(search config.SearchConfig, mw config.MiddlewareConfig, log *logger.Logger) (*Fetcher, error) {
	opts := []httpclient.Option{httpclient.WithUserAgent(search.UserAgent)}
	if rl := mw.RateLimiter; rl.Enabled {
		opts = append(opts, httpclient.WithLimiter(ratelimiter.NewTokenBucket(rl.TokenBucket.Rate, rl.TokenBucket.Capacity)))
	}
	searchClient, err := httpclient.NewClient(mw.CircuitBreaker, opts...)
	if err != nil {
		return nil, fmt.Errorf("search client: %w", err)
	}
	pageClient := httpclient.New(opts...)

	serper := NewSerperClient(searchClient, SerperConfig{
		APIKey:    search.APIKey,
		NewsURL:   search.NewsURL,
		ScrapeURL: search.ScrapeURL,
		Num:       search.Num,
		TimeRange: search.TimeRange,
	}, WithScrapeClient(pageClient))

	var content ContentFetcher = serper
	if search.Provider == "direct" {
		content = NewWebScraper(pageClient)
	}
	if search.CacheCapacity > 0 {
		cached, err := NewCachedFetcher(content, search.CacheCapacity, config.Duration(search.CacheTTL, 30*time.Minute))
		if err != nil {
			return nil, fmt.Errorf("scrape cache: %w", err)
		}
		content = cached
	}

	return NewFetcher(serper, content, NewHTTPMediaChecker(pageClient), Config{
		Concurrency:   search.Concurrency,
		MediaLimit:    search.MediaLimit,
		SearchTimeout: config.Duration(search.SearchTimeout, 15*time.Second),
		FetchTimeout:  config.Duration(search.FetchTimeout, 20*time.Second),
		MediaTimeout:  config.Duration(search.MediaTimeout, 5*time.Second),
	}, log), nil
}
