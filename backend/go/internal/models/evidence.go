package models

// EvidenceItem is one unit of external information eligible for merging into a Summary.
// ID is stable across fetches (the source URL for news articles, the event id for activity).
type EvidenceItem struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Text        string `json:"text"`
	MediaURL    string `json:"media_url,omitempty"` // set only when Validated
	Validated   bool   `json:"validated"`
	PublishedAt string `json:"published_at,omitempty"`
}

// SearchResult is a candidate link returned by the search provider.
type SearchResult struct {
	Link  string `json:"link"`
	Title string `json:"title"`
	Date  string `json:"date"`
}

// ScrapeResult is the full content of one candidate link.
type ScrapeResult struct {
	Text     string `json:"text"`
	MediaURL string `json:"media_url"`
}

// MediaCheck is the outcome of a lightweight media request.
type MediaCheck struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
}
