package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"peercall/internal/domain"
)

const maxResponseBytes = 64 << 10

// iceResponse is the body served by the relay's /ice endpoint.
type iceResponse struct {
	ICEServers []domain.ICEServer `json:"iceServers"`
}

// Client fetches call settings published by the relay over HTTP.
type Client struct {
	http *http.Client
}

// NewClient creates an API client.
func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: 10 * time.Second}}
}

// FetchICEServers calls the relay's /ice endpoint to obtain the STUN and TURN
// servers to use for calls.
func (c *Client) FetchICEServers(ctx context.Context, url string) ([]domain.ICEServer, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
	}

	var iceResp iceResponse
	if err := json.Unmarshal(respBody, &iceResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	for i, s := range iceResp.ICEServers {
		if len(s.URLs) == 0 {
			return nil, fmt.Errorf("ICE server %d has no urls", i)
		}
	}

	return iceResp.ICEServers, nil
}
