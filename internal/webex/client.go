// ABOUTME: Typed Webex REST client used by the session, router, and conversations
// ABOUTME: Wraps the people, rooms, messages, and webhooks endpoints with typed errors

package webex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultAPIURL is the public Webex REST endpoint.
const DefaultAPIURL = "https://webexapis.com/v1"

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("webex: not found")

// APIError describes a non-2xx response from the Webex API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("webex: API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("webex: API returned status %d: %s", e.StatusCode, e.Message)
}

// Options configures a Client.
type Options struct {
	// AccessToken is the bearer token for all requests. Required.
	AccessToken string
	// APIURL overrides DefaultAPIURL.
	APIURL string
	// HTTPClient overrides the default client (10s timeout).
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is a typed wrapper over the Webex REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client. It fails when no access token is configured;
// the token itself is only verified by the first API call.
func New(opts Options) (*Client, error) {
	if opts.AccessToken == "" {
		return nil, errors.New("webex: access token is required")
	}
	baseURL := strings.TrimRight(opts.APIURL, "/")
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		token:      opts.AccessToken,
		httpClient: httpClient,
		logger:     logger.With("component", "webex-client"),
	}, nil
}

// get performs a GET request and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	return c.do(req, out)
}

// post performs a POST request with a JSON body and decodes the response into out.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// delete performs a DELETE request.
func (c *Client) delete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: readAPIMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", req.URL.Path, err)
	}
	return nil
}

// readAPIMessage extracts the "message" field from a Webex error body.
func readAPIMessage(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var parsed struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
		return parsed.Message
	}
	return strings.TrimSpace(string(body))
}

// listEnvelope is the standard Webex list response wrapper.
type listEnvelope[T any] struct {
	Items []T `json:"items"`
}
