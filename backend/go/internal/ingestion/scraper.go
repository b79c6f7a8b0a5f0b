package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"Trendline/backend/go/internal/models"
	httpclient "Trendline/backend/go/pkg/http"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"
)

const maxPageBytes = 2 << 20

// WebScraper fetches pages directly and converts them to markdown.
// It is the ContentFetcher used when no scrape API is configured.
type WebScraper struct {
	client      *httpclient.Client
	mdConverter *converter.Converter
}

// NewWebScraper creates a WebScraper.
func NewWebScraper(client *httpclient.Client) *WebScraper {
	return &WebScraper{
		client: client,
		mdConverter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Fetch implements ContentFetcher.
func (w *WebScraper) Fetch(ctx context.Context, pageURL string) (*models.ScrapeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, fmt.Errorf("fetch %s: not an html page (%s)", pageURL, ct)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pageURL, err)
	}

	md, err := w.mdConverter.ConvertString(string(raw), converter.WithDomain(pageURL))
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", pageURL, err)
	}
	return &models.ScrapeResult{
		Text:     strings.TrimSpace(md),
		MediaURL: resolveURL(pageURL, extractOGImage(bytes.NewReader(raw))),
	}, nil
}

// extractOGImage returns the content of the first og:image meta tag in the document head.
func extractOGImage(r io.Reader) string {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.EndTagToken:
			if tn, _ := z.TagName(); string(tn) == "head" {
				return ""
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := z.TagName()
			if string(tn) != "meta" || !hasAttr {
				continue
			}
			var prop, content string
			for {
				key, val, more := z.TagAttr()
				switch string(key) {
				case "property", "name":
					prop = string(val)
				case "content":
					content = string(val)
				}
				if !more {
					break
				}
			}
			if prop == "og:image" && content != "" {
				return strings.TrimSpace(content)
			}
		}
	}
}

func resolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return b.ResolveReference(r).String()
}
