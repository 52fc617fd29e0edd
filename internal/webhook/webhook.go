// Package webhook posts conversation payloads to the answering service
// over HTTP.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/longkey1/advchat/internal/chat"
	"github.com/rs/zerolog/log"
)

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 8 << 20

// errorResponse is the error body some services return with non-2xx codes
type errorResponse struct {
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Client implements chat.Transport
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a new webhook client. Timeouts are driven by the
// request context, so the default HTTP client has none of its own.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Post sends payload to endpoint and returns the raw response body.
func (c *Client) Post(ctx context.Context, endpoint, token string, payload *chat.Payload) ([]byte, error) {
	if endpoint == "" {
		return nil, &chat.TransportError{Message: "endpoint is not configured"}
	}

	// Convert request body to JSON
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, &chat.TransportError{Message: "error marshaling request", Err: err}
	}

	// Create HTTP request
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, &chat.TransportError{Message: "error creating request", Err: err}
	}

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	// Send request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &chat.TransportError{Message: "error sending request", Err: err}
	}
	defer resp.Body.Close()

	// Read response body
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &chat.TransportError{StatusCode: resp.StatusCode, Message: "error reading response", Err: err}
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Msg("webhook: response received")

	// Check for error response
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &chat.TransportError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp, body),
		}
	}

	return body, nil
}

// errorMessage prefers the message of an {"error": {...}} body and falls
// back to the HTTP status line.
func errorMessage(resp *http.Response, body []byte) string {
	var errResp errorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

var _ chat.Transport = (*Client)(nil)
