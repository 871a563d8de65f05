// Package client fetches per-event graph data and book manifests from the
// upstream story analysis API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/persistorai/storygraph/internal/models"
)

// Client is the upstream API client. It satisfies discovery.EventFetcher
// and manifest.Fetcher.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a client for the given base URL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FetchEvent loads one event. It returns models.ErrEventNotFound when the
// event has not been generated yet.
func (c *Client) FetchEvent(ctx context.Context, bookID, chapterIdx, eventIdx int) (*models.RawEventData, error) {
	path := fmt.Sprintf("/api/books/%d/chapters/%d/events/%d", bookID, chapterIdx, eventIdx)

	body, err := c.get(ctx, path)
	if IsNotFound(err) {
		return nil, fmt.Errorf("book %d chapter %d event %d: %w", bookID, chapterIdx, eventIdx, models.ErrEventNotFound)
	}
	if err != nil {
		return nil, err
	}

	ev, err := decodeEvent(body)
	if err != nil {
		return nil, fmt.Errorf("decode event %d/%d/%d: %w", bookID, chapterIdx, eventIdx, err)
	}

	ev.EventIdx = eventIdx

	return ev, nil
}

// FetchManifest loads the book manifest. It returns
// models.ErrManifestNotFound when the book has none.
func (c *Client) FetchManifest(ctx context.Context, bookID int) (*models.Manifest, error) {
	body, err := c.get(ctx, fmt.Sprintf("/api/books/%d/manifest", bookID))
	if IsNotFound(err) {
		return nil, fmt.Errorf("book %d: %w", bookID, models.ErrManifestNotFound)
	}
	if err != nil {
		return nil, err
	}

	m, err := decodeManifest(body)
	if err != nil {
		return nil, fmt.Errorf("decode manifest %d: %w", bookID, err)
	}

	m.BookID = bookID

	return m, nil
}

// get executes a GET request and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp.StatusCode, body)
	}

	return unwrapEnvelope(body), nil
}

const maxBodyBytes = 8 << 20

// unwrapEnvelope strips a {"data": ...} wrapper when present.
func unwrapEnvelope(body []byte) []byte {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 && !isNull(env.Data) {
		return env.Data
	}

	return body
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

var errNotObject = errors.New("expected a JSON object")
