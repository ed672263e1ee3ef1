// Package table talks to the robot itself: outbound HTTP calls against
// its control API and the UDP discovery listener that learns where it
// lives on the network.
package table

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is the outbound HTTP client for the table's control API. The
// base URL comes from discovery and varies per call, so it is an
// argument rather than client state.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type nodesResponse struct {
	Nodes []string `json:"nodes"`
}

// FetchNodes retrieves the table's navigation node list.
func (c *Client) FetchNodes(ctx context.Context, baseURL string) ([]string, error) {
	var out nodesResponse
	if err := c.get(ctx, baseURL+"/nodes", &out); err != nil {
		return nil, err
	}
	return out.Nodes, nil
}

// Health probes the table's health endpoint and returns the status code.
func (c *Client) Health(ctx context.Context, baseURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return 0, fmt.Errorf("table health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("table health: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *Client) get(ctx context.Context, url string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("table request %s: %w", url, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("table GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("table read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("table HTTP %d: %s", resp.StatusCode, string(data))
	}
	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("table decode: %w", err)
		}
	}
	return nil
}
