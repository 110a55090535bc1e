// Package geo resolves client IPs to country labels through a remote
// best-effort lookup service.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Unknown is the fallback label when a lookup fails or times out.
const Unknown = "Unknown"

// Client calls the geo lookup boundary. A nil Client (lookup disabled)
// always fails, which callers degrade to Unknown.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client against baseURL. timeout bounds every lookup
// end to end.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Lookup resolves ip to a country label.
func (c *Client) Lookup(ctx context.Context, ip string) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("geo lookup not configured")
	}

	endpoint := fmt.Sprintf("%s/lookup?ip=%s", c.baseURL, url.QueryEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build lookup request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("geo lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geo lookup returned status %d", resp.StatusCode)
	}

	var body struct {
		Country string `json:"country"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode lookup response: %w", err)
	}
	if body.Country == "" {
		return "", fmt.Errorf("geo lookup returned no country")
	}
	return body.Country, nil
}
