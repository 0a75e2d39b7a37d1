// Package jina wraps the Jina AI reader (r.jina.ai) and search (s.jina.ai)
// endpoints behind the two operations the pipeline needs.
package jina

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/inquiry-cli/internal/resilience"
)

// Client defines the reader and search operations.
type Client interface {
	// Read fetches a URL through the reader and returns cleaned markdown.
	Read(ctx context.Context, targetURL string) (*ReadResponse, error)
	// Search runs a web search and returns ranked results.
	Search(ctx context.Context, query string) (*SearchResponse, error)
}

// ReadResponse is the reader API envelope.
type ReadResponse struct {
	Code int      `json:"code"`
	Data ReadData `json:"data"`
}

// ReadData is the extracted page content.
type ReadData struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// SearchResponse is the search API envelope.
type SearchResponse struct {
	Code int            `json:"code"`
	Data []SearchResult `json:"data"`
}

// SearchResult is one ranked search hit.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Content     string `json:"content"`
	Description string `json:"description"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the reader base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithSearchBaseURL overrides the search base URL.
func WithSearchBaseURL(url string) Option {
	return func(c *httpClient) {
		c.searchBaseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry overrides the transient-failure retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey        string
	baseURL       string
	searchBaseURL string
	retry         resilience.RetryConfig
	http          *http.Client
}

// NewClient creates a Jina client with the production endpoints.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:        apiKey,
		baseURL:       "https://r.jina.ai",
		searchBaseURL: "https://s.jina.ai",
		retry:         resilience.DefaultRetryConfig(),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rawResponse struct {
	body   []byte
	status int
}

// get issues one authenticated GET, retrying transient failures (connection
// errors, 429, 5xx) per the client's retry policy. Non-transient statuses
// are returned to the caller undecided; each endpoint interprets them.
func (c *httpClient) get(ctx context.Context, reqURL, operation string, headers map[string]string) (rawResponse, error) {
	cfg := c.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("jina", operation)
	}

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (rawResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return rawResponse{}, resilience.NewPermanentError(eris.Wrap(err, "jina: build request"), 0)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return rawResponse{}, resilience.NewTransientError(eris.Wrapf(err, "jina: %s request", operation), 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return rawResponse{}, resilience.NewTransientError(eris.Wrap(err, "jina: read response"), resp.StatusCode)
		}

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return rawResponse{}, resilience.NewTransientError(
				eris.Errorf("jina: %s status %d: %s", operation, resp.StatusCode, string(body)), resp.StatusCode)
		}

		return rawResponse{body: body, status: resp.StatusCode}, nil
	})
}

func (c *httpClient) Read(ctx context.Context, targetURL string) (*ReadResponse, error) {
	raw, err := c.get(ctx, fmt.Sprintf("%s/%s", c.baseURL, targetURL), "read", map[string]string{
		"X-Return-Format": "markdown",
	})
	if err != nil {
		return nil, err
	}

	if raw.status != http.StatusOK {
		return nil, resilience.NewPermanentError(
			eris.Errorf("jina: read status %d: %s", raw.status, string(raw.body)), raw.status)
	}

	var result ReadResponse
	if err := json.Unmarshal(raw.body, &result); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal read response")
	}
	return &result, nil
}

func (c *httpClient) Search(ctx context.Context, query string) (*SearchResponse, error) {
	raw, err := c.get(ctx, fmt.Sprintf("%s/%s", c.searchBaseURL, url.QueryEscape(query)), "search", nil)
	if err != nil {
		return nil, err
	}

	// 422 means no results exist for the query, not a failed call.
	if raw.status == http.StatusUnprocessableEntity {
		return &SearchResponse{Code: http.StatusUnprocessableEntity}, nil
	}

	if raw.status != http.StatusOK {
		return nil, resilience.NewPermanentError(
			eris.Errorf("jina: search status %d: %s", raw.status, string(raw.body)), raw.status)
	}

	var result SearchResponse
	if err := json.Unmarshal(raw.body, &result); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal search response")
	}
	return &result, nil
}
