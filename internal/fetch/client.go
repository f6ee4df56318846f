// Package fetch pulls the upstream event feed and drives the upsert engine.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sambandhq/samband-ingest/internal/domain"
)

// userAgent is a browser UA string; the feed rejects requests carrying the
// default Go client identifier.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Safari/537.36"

// Client fetches raw event records from the feed endpoint.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a feed client with a bounded request timeout.
func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Fetch retrieves the current feed batch. Each returned record keeps its
// verbatim upstream document in Payload. Records that are not valid JSON
// objects are dropped with a warning; a body that is not a JSON array is an
// error.
func (c *Client) Fetch(ctx context.Context) ([]domain.RawEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed returned status %d: %s", resp.StatusCode, body)
	}

	var docs []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode feed response: %w", err)
	}

	events := make([]domain.RawEvent, 0, len(docs))
	for _, doc := range docs {
		var raw domain.RawEvent
		if err := json.Unmarshal(doc, &raw); err != nil {
			c.logger.Warn("skipping undecodable feed record", "error", err)
			continue
		}
		raw.Payload = doc
		events = append(events, raw)
	}
	return events, nil
}
