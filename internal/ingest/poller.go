package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRESTURL is the public XRPScan recent-payments endpoint.
	DefaultRESTURL = "https://api.xrpscan.com/api/v1/payments?limit=100"

	// minPollGap keeps the fallback well inside public API rate limits even
	// when the Manager polls back to back.
	minPollGap = 2 * time.Second

	maxPollBody = 8 << 20
)

// ErrMalformedResponse is returned when a poll body has no recognisable
// payment list.
var ErrMalformedResponse = errors.New("malformed poll response")

// HTTPPoller fetches recent payments from a REST endpoint.
type HTTPPoller struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPPoller creates a pull transport for url.
func NewHTTPPoller(url string) *HTTPPoller {
	if url == "" {
		url = DefaultRESTURL
	}
	return &HTTPPoller{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(minPollGap), 1),
	}
}

// Poll performs one GET and returns the items of the response.
func (p *HTTPPoller) Poll(ctx context.Context) ([]json.RawMessage, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ledgerpulse/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPollBody))
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}

	items, err := SplitPollBody(body)
	if err != nil {
		return nil, err
	}

	slog.Debug("poll_fetched", "endpoint", p.url, "count", len(items))
	return items, nil
}
