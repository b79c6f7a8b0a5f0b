package ingestion

import (
	"context"
	"errors"

	"Trendline/backend/go/internal/models"
)

// ErrSearchFailed marks a failed search call. It is fatal to the ingestion cycle.
var ErrSearchFailed = errors.New("search failed")

// SearchProvider returns candidate links for a query.
type SearchProvider interface {
	Search(ctx context.Context, query string, params map[string]string) ([]models.SearchResult, error)
}

// ContentFetcher returns the full text and lead image of a page.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) (*models.ScrapeResult, error)
}

// MediaChecker checks a media URL without downloading it.
type MediaChecker interface {
	Check(ctx context.Context, url string) (*models.MediaCheck, error)
}
