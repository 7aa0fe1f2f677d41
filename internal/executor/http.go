package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pagegate/pagegate/internal/envelope"
)

// HTTPClient talks to the inference backend over its JSON HTTP API:
//
//	POST /v2/models/{name}/infer   -> response envelope
//	GET  /v2/health/ready          -> 200 when the server is up
//	GET  /v2/models/{name}/ready   -> 200 when the model is loaded
//
// Per-call deadlines come from the caller's context; the underlying
// http.Client carries no timeout of its own so long inference calls are
// never cut short by a transport default.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// HTTPConfig holds settings for the backend HTTP client.
type HTTPConfig struct {
	// BaseURL is the backend address, e.g. "http://paddleocr-vl-executor:8000".
	BaseURL string
	// Transport overrides the default transport. Mostly for tests.
	Transport http.RoundTripper
}

// NewHTTPClient creates a backend client for the given address.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Transport: cfg.Transport},
	}
}

// Invoke posts body to the operation's infer endpoint and decodes the
// backend envelope. Deadline expiry surfaces as ErrDeadlineExceeded;
// every other failure is a *TransportError.
func (c *HTTPClient) Invoke(ctx context.Context, operation string, body json.RawMessage) (*envelope.Response, error) {
	endpoint := fmt.Sprintf("%s/v2/models/%s/infer", c.baseURL, url.PathEscape(operation))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Operation: operation, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyErr(operation, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyErr(operation, err)
	}

	var out envelope.Response
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, &TransportError{
			Operation: operation,
			Err:       fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err),
		}
	}
	return &out, nil
}

// ServerReady reports whether the backend process answers its readiness
// probe.
func (c *HTTPClient) ServerReady(ctx context.Context) (bool, error) {
	return c.probe(ctx, c.baseURL+"/v2/health/ready")
}

// ModelReady reports whether a named model is loaded and serving.
func (c *HTTPClient) ModelReady(ctx context.Context, model string) (bool, error) {
	return c.probe(ctx, fmt.Sprintf("%s/v2/models/%s/ready", c.baseURL, url.PathEscape(model)))
}

func (c *HTTPClient) probe(ctx context.Context, endpoint string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK, nil
}

// maxResponseBytes caps decoded backend responses. A multi-hundred-page
// merged document fits comfortably; a runaway stream does not.
const maxResponseBytes = 512 << 20

// classifyErr splits transport failures into the deadline and
// everything-else channels.
func classifyErr(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrDeadlineExceeded, operation)
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return fmt.Errorf("%w: %s", ErrDeadlineExceeded, operation)
	}
	return &TransportError{Operation: operation, Err: err}
}
