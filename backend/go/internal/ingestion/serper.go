package ingestion

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"Trendline/backend/go/internal/models"
	httpclient "Trendline/backend/go/pkg/http"
)

// SerperClient talks to the serper.dev news search and scrape endpoints.
// It implements both SearchProvider and ContentFetcher.
type SerperClient struct {
	client    *httpclient.Client
	scraper   *httpclient.Client
	apiKey    string
	newsURL   string
	scrapeURL string
	defaults  map[string]string
}

// SerperConfig holds endpoint and default query parameters.
type SerperConfig struct {
	APIKey    string
	NewsURL   string
	ScrapeURL string
	Num       int
	TimeRange string
}

// SerperOption configures a SerperClient.
type SerperOption func(*SerperClient)

// WithScrapeClient sends scrape calls through c instead of the search client.
// One bad article then cannot trip the breaker guarding search.
func WithScrapeClient(c *httpclient.Client) SerperOption {
	return func(s *SerperClient) { s.scraper = c }
}

// NewSerperClient creates a SerperClient.
func NewSerperClient(client *httpclient.Client, cfg SerperConfig, opts ...SerperOption) *SerperClient {
	if cfg.NewsURL == "" {
		cfg.NewsURL = "https://google.serper.dev/news"
	}
	if cfg.ScrapeURL == "" {
		cfg.ScrapeURL = "https://scrape.serper.dev"
	}
	if cfg.Num <= 0 {
		cfg.Num = 20
	}
	if cfg.TimeRange == "" {
		cfg.TimeRange = "qdr:h"
	}
	s := &SerperClient{
		client:    client,
		scraper:   client,
		apiKey:    cfg.APIKey,
		newsURL:   cfg.NewsURL,
		scrapeURL: cfg.ScrapeURL,
		defaults:  map[string]string{"num": strconv.Itoa(cfg.Num), "tbs": cfg.TimeRange},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type serperNewsResponse struct {
	News []struct {
		Title string `json:"title"`
		Link  string `json:"link"`
		Date  string `json:"date"`
	} `json:"news"`
}

type serperScrapeResponse struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}

func (s *SerperClient) headers() map[string]string {
	return map[string]string{"X-API-KEY": s.apiKey}
}

// Search implements SearchProvider. params override the configured "num" and "tbs".
func (s *SerperClient) Search(ctx context.Context, query string, params map[string]string) ([]models.SearchResult, error) {
	body := map[string]interface{}{"q": query}
	for k, v := range s.defaults {
		body[k] = v
	}
	for k, v := range params {
		body[k] = v
	}
	if n, ok := body["num"].(string); ok {
		if parsed, err := strconv.Atoi(n); err == nil {
			body["num"] = parsed
		}
	}

	var resp serperNewsResponse
	if err := s.client.DoJSON(ctx, http.MethodPost, s.newsURL, s.headers(), body, &resp); err != nil {
		return nil, fmt.Errorf("serper news search: %w", err)
	}
	out := make([]models.SearchResult, 0, len(resp.News))
	for _, n := range resp.News {
		out = append(out, models.SearchResult{Link: n.Link, Title: n.Title, Date: n.Date})
	}
	return out, nil
}

// Fetch implements ContentFetcher via the scrape endpoint.
func (s *SerperClient) Fetch(ctx context.Context, url string) (*models.ScrapeResult, error) {
	var resp serperScrapeResponse
	if err := s.scraper.DoJSON(ctx, http.MethodPost, s.scrapeURL, s.headers(), map[string]string{"url": url}, &resp); err != nil {
		return nil, fmt.Errorf("serper scrape %s: %w", url, err)
	}
	out := &models.ScrapeResult{Text: strings.TrimSpace(resp.Text)}
	if img, ok := resp.Metadata["og:image"].(string); ok {
		out.MediaURL = strings.TrimSpace(img)
	}
	return out, nil
}
