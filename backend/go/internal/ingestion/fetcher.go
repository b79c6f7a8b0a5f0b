// Package ingestion turns a search query into a batch of evidence items.
package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Trendline/backend/go/internal/metrics"
	"Trendline/backend/go/internal/models"
	"Trendline/backend/go/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Config controls fan-out and timeouts of one ingestion cycle.
type Config struct {
	Concurrency   int
	MediaLimit    int
	SearchTimeout time.Duration
	FetchTimeout  time.Duration
	MediaTimeout  time.Duration
	SearchParams  map[string]string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:   5,
		MediaLimit:    8,
		SearchTimeout: 15 * time.Second,
		FetchTimeout:  20 * time.Second,
		MediaTimeout:  5 * time.Second,
	}
}

// Fetcher runs search, content fetch and media validation.
type Fetcher struct {
	search  SearchProvider
	content ContentFetcher
	checker MediaChecker
	cfg     Config
	logger  *logger.Logger
	now     func() time.Time
}

// NewFetcher creates a Fetcher. Zero config values fall back to DefaultConfig.
func NewFetcher(search SearchProvider, content ContentFetcher, checker MediaChecker, cfg Config, log *logger.Logger) *Fetcher {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.MediaLimit < 0 {
		cfg.MediaLimit = 0
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = def.SearchTimeout
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.MediaTimeout <= 0 {
		cfg.MediaTimeout = def.MediaTimeout
	}
	return &Fetcher{
		search:  search,
		content: content,
		checker: checker,
		cfg:     cfg,
		logger:  log.WithField("component", "ingestion"),
		now:     time.Now,
	}
}

// WithClock replaces the time source used by FetchActivity.
func (f *Fetcher) WithClock(now func() time.Time) *Fetcher {
	f.now = now
	return f
}

// FetchBatch searches for query, fetches every candidate concurrently and validates media.
// Only a failed search is an error; failed fetches and media checks shrink the batch instead.
func (f *Fetcher) FetchBatch(ctx context.Context, query string) ([]models.EvidenceItem, error) {
	searchCtx, cancel := context.WithTimeout(ctx, f.cfg.SearchTimeout)
	results, err := f.search.Search(searchCtx, query, f.cfg.SearchParams)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrSearchFailed, query, err)
	}
	results = uniqueLinks(results)

	fetched := make([]*models.EvidenceItem, len(results))
	var g errgroup.Group
	g.SetLimit(f.cfg.Concurrency)
	for i, r := range results {
		i, r := i, r
		g.Go(func() error {
			fetched[i] = f.fetchOne(ctx, r)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items := make([]models.EvidenceItem, 0, len(fetched))
	for _, it := range fetched {
		if it != nil {
			items = append(items, *it)
		}
	}
	f.validateMedia(ctx, items)

	f.logger.WithPayload(map[string]interface{}{
		"query":      query,
		"candidates": len(results),
		"fetched":    len(items),
	}).Info("ingestion batch fetched")
	return items, nil
}

// fetchOne returns nil when the fetch fails or yields no text.
func (f *Fetcher) fetchOne(ctx context.Context, r models.SearchResult) *models.EvidenceItem {
	fetchCtx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
	defer cancel()

	res, err := f.content.Fetch(fetchCtx, r.Link)
	if err != nil {
		metrics.EvidenceFetched.WithLabelValues(metrics.ResultError).Inc()
		f.logger.WithErr("fetch_error", err).WithField("link", r.Link).Debug("dropping evidence")
		return nil
	}
	if res == nil || strings.TrimSpace(res.Text) == "" {
		metrics.EvidenceFetched.WithLabelValues(metrics.ResultDropped).Inc()
		return nil
	}
	metrics.EvidenceFetched.WithLabelValues(metrics.ResultOK).Inc()
	return &models.EvidenceItem{
		ID:          r.Link,
		Title:       r.Title,
		Text:        res.Text,
		MediaURL:    strings.TrimSpace(res.MediaURL),
		PublishedAt: r.Date,
	}
}

// validateMedia checks the first MediaLimit media URLs concurrently and clears the rest.
// An item whose media fails keeps its text.
func (f *Fetcher) validateMedia(ctx context.Context, items []models.EvidenceItem) {
	var candidates []int
	for i := range items {
		if items[i].MediaURL == "" {
			continue
		}
		if len(candidates) < f.cfg.MediaLimit && f.checker != nil {
			candidates = append(candidates, i)
			continue
		}
		items[i].MediaURL = ""
	}

	ok := make([]bool, len(candidates))
	var g errgroup.Group
	g.SetLimit(f.cfg.Concurrency)
	for n, idx := range candidates {
		n, url := n, items[idx].MediaURL
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, f.cfg.MediaTimeout)
			defer cancel()
			res, err := f.checker.Check(checkCtx, url)
			ok[n] = err == nil && IsImage(res)
			if ok[n] {
				metrics.MediaChecked.WithLabelValues(metrics.ResultOK).Inc()
			} else {
				metrics.MediaChecked.WithLabelValues(metrics.ResultDropped).Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	for n, idx := range candidates {
		if ok[n] {
			items[idx].Validated = true
		} else {
			items[idx].MediaURL = ""
		}
	}
}

// FetchActivity stamps an interaction with the current time. It does no I/O.
func (f *Fetcher) FetchActivity(description, actorID string) models.ActivityEvent {
	return models.ActivityEvent{
		ID:          uuid.NewString(),
		Timestamp:   f.now().UTC().Truncate(time.Microsecond),
		ActorID:     actorID,
		Description: strings.TrimSpace(description),
	}
}

func uniqueLinks(results []models.SearchResult) []models.SearchResult {
	seen := make(map[string]struct{}, len(results))
	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		link := strings.TrimSpace(r.Link)
		if link == "" {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		r.Link = link
		out = append(out, r)
	}
	return out
}
