package ingestion

import (
	"context"
	"io"
	"net/http"
	"strings"

	"Trendline/backend/go/internal/models"
	httpclient "Trendline/backend/go/pkg/http"

	"github.com/gabriel-vasile/mimetype"
)

const sniffBytes = 3072

// HTTPMediaChecker validates media with a HEAD request, falling back to a ranged GET
// and content sniffing when the server rejects HEAD or reports a generic type.
type HTTPMediaChecker struct {
	client *httpclient.Client
}

// NewHTTPMediaChecker creates an HTTPMediaChecker.
func NewHTTPMediaChecker(client *httpclient.Client) *HTTPMediaChecker {
	return &HTTPMediaChecker{client: client}
}

// Check implements MediaChecker.
func (p *HTTPMediaChecker) Check(ctx context.Context, mediaURL string) (*models.MediaCheck, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, mediaURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if resp.StatusCode == http.StatusOK && !genericType(ct) {
		return &models.MediaCheck{StatusCode: resp.StatusCode, ContentType: ct}, nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusMethodNotAllowed {
		return &models.MediaCheck{StatusCode: resp.StatusCode, ContentType: ct}, nil
	}
	return p.sniff(ctx, mediaURL)
}

func (p *HTTPMediaChecker) sniff(ctx context.Context, mediaURL string) (*models.MediaCheck, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", "bytes=0-3071")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	if status == http.StatusPartialContent {
		status = http.StatusOK
	}
	ct := resp.Header.Get("Content-Type")
	if status == http.StatusOK && genericType(ct) {
		head, err := io.ReadAll(io.LimitReader(resp.Body, sniffBytes))
		if err != nil {
			return nil, err
		}
		ct = mimetype.Detect(head).String()
	}
	return &models.MediaCheck{StatusCode: status, ContentType: ct}, nil
}

func genericType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return ct == "" || strings.HasPrefix(ct, "application/octet-stream") || strings.HasPrefix(ct, "binary/octet-stream")
}

// IsImage reports whether a media check confirms image data.
func IsImage(r *models.MediaCheck) bool {
	return r != nil && r.StatusCode == http.StatusOK && strings.HasPrefix(strings.ToLower(r.ContentType), "image/")
}
