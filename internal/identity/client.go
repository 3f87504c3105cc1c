// Package identity wraps the external identity/chart/record HTTP service
// consumed by the session and room layers. The service itself is out of
// scope (spec.md §1); this package only speaks its opaque JSON contract.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Profile is the JSON body returned by GET /me.
type Profile struct {
	ID       int32  `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
}

// Chart is the JSON body returned by GET /chart/{id}.
type Chart struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

// Record is the JSON body returned by GET /record/{id}.
type Record struct {
	ID        int32   `json:"id"`
	Player    int32   `json:"player"`
	Score     int32   `json:"score"`
	Accuracy  float32 `json:"accuracy"`
	FullCombo bool    `json:"fullCombo"`
}

// Client talks to the identity/chart/record HTTP service. It is grounded in
// the same bounded-timeout http.Client + explicit http.NewRequest pattern
// used for outbound page fetches elsewhere in the reference corpus.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a Client bound to baseURL with the given per-request
// timeout. spec.md §5 leaves the upstream timeout unspecified beyond "a
// reasonable one (e.g. 5s)"; callers supply it from config.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Me authenticates token against GET /me and returns the user's profile.
func (c *Client) Me(ctx context.Context, token string) (Profile, error) {
	var p Profile
	err := c.getJSON(ctx, "/me", "Bearer "+token, &p)
	return p, err
}

// Chart fetches the chart metadata for id via GET /chart/{id}.
func (c *Client) Chart(ctx context.Context, id int32) (Chart, error) {
	var ch Chart
	err := c.getJSON(ctx, fmt.Sprintf("/chart/%d", id), "", &ch)
	return ch, err
}

// Record fetches a submitted play record via GET /record/{id}.
func (c *Client) Record(ctx context.Context, id int32) (Record, error) {
	var rec Record
	err := c.getJSON(ctx, fmt.Sprintf("/record/%d", id), "", &rec)
	return rec, err
}

func (c *Client) getJSON(ctx context.Context, path, auth string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("identity: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("identity: %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("identity: decode %s response: %w", path, err)
	}
	return nil
}
