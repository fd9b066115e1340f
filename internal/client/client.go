package client

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
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/tenantprov/internal/apierror"
)

// Config holds common client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  zerolog.Logger

	// Transport overrides the innermost transport, mostly for tests.
	Transport http.RoundTripper
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:2020",
		Timeout: 30 * time.Second,
		Logger:  zerolog.Nop(),
	}
}

// Client sends JSON requests to one service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the service at config.BaseURL.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}

	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: NewHTTPClient(config),
	}, nil
}

// BaseURL returns the service address without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request describes one API call.
type Request struct {
	Op     string
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Do sends req and decodes a JSON response into out when out is non-nil.
// Non-2xx responses are returned as *apierror.Error.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	var bodyReader io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", req.Op, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	reqURL := c.baseURL + req.Path
	if len(req.Query) > 0 {
		reqURL += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", req.Op, err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", req.Op, err)
	}
	defer resp.Body.Close()

	if err := apierror.FromResponse(req.Op, resp); err != nil {
		return err
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", req.Op, err)
	}

	return nil
}
