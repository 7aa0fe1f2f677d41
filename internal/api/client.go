package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pagegate/pagegate/internal/envelope"
)

// Client is an HTTP client for the gateway API. Every gateway response
// is an envelope, success or failure, so the client decodes into one and
// leaves the error-code interpretation to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Minute, // inference calls can be long
		},
	}
}

// Get performs a GET request and decodes the response envelope.
func (c *Client) Get(ctx context.Context, path string) (*envelope.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp)
}

// Post performs a POST request with a JSON body and decodes the
// response envelope.
func (c *Client) Post(ctx context.Context, path string, body []byte) (*envelope.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp)
}

func decodeEnvelope(resp *http.Response) (*envelope.Response, error) {
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out envelope.Response
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("unexpected response (status %d): %s", resp.StatusCode, payload)
	}
	return &out, nil
}
