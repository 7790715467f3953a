// Package sportmonks implements provider.Feed over the SportMonks Football API.
//
// SportMonks uses token-based auth (query parameter), page-based pagination,
// and nested include-based relationships. Response bodies are cached per
// request so a settlement poll and a burst of forecasts share one fetch.
package sportmonks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/albapepper/scoracle-league/internal/cache"
	"github.com/albapepper/scoracle-league/internal/metrics"
)

const defaultBaseURL = "https://api.sportmonks.com/v3/football"

// Client is the HTTP client for SportMonks Football endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiToken   string
	limiter    *rate.Limiter
	cache      *cache.Cache
	metrics    *metrics.Manager
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another host (tests, proxies).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithCache caches successful response bodies.
func WithCache(ch *cache.Cache) Option {
	return func(c *Client) { c.cache = ch }
}

// WithMetrics counts requests per endpoint and status.
func WithMetrics(m *metrics.Manager) Option {
	return func(c *Client) { c.metrics = m }
}

// WithHTTPClient replaces the default 30s-timeout client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a SportMonks HTTP client with rate limiting.
func NewClient(apiToken string, requestsPerMinute int, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 300
	}
	rps := float64(requestsPerMinute) / 60.0
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		apiToken:   apiToken,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// paginatedResponse is the common SportMonks response wrapper.
type paginatedResponse struct {
	Data       json.RawMessage `json:"data"`
	Pagination *struct {
		HasMore bool `json:"has_more"`
	} `json:"pagination"`
}

// get performs a rate-limited GET request to a SportMonks endpoint. Bodies are
// served from and stored into the cache for ttl.
func (c *Client) get(ctx context.Context, path string, params url.Values, ttl time.Duration) (*paginatedResponse, error) {
	if params == nil {
		params = url.Values{}
	}
	cacheKey := "sportmonks:" + path + "?" + params.Encode()

	body, _, hit := c.cache.Get(cacheKey)
	if !hit {
		var err error
		body, err = c.fetch(ctx, path, params)
		if err != nil {
			return nil, err
		}
	}

	var result paginatedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !hit {
		c.cache.Set(cacheKey, body, ttl)
	}
	return &result, nil
}

func (c *Client) fetch(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("api_token", c.apiToken)

	u := c.baseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.FeedRequest(endpointLabel(path), 0)
		return nil, fmt.Errorf("http request %s: %w", path, err)
	}
	defer resp.Body.Close()
	c.metrics.FeedRequest(endpointLabel(path), resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("SportMonks %s returned %d: %s", path, resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

// getPaginated fetches all pages from a paginated endpoint.
func (c *Client) getPaginated(ctx context.Context, path string, params url.Values, perPage int, ttl time.Duration) ([]json.RawMessage, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("per_page", strconv.Itoa(perPage))

	var allData []json.RawMessage
	page := 1

	for {
		params.Set("page", strconv.Itoa(page))
		resp, err := c.get(ctx, path, params, ttl)
		if err != nil {
			return nil, err
		}

		// Data can be array or object
		var items []json.RawMessage
		if err := json.Unmarshal(resp.Data, &items); err != nil {
			allData = append(allData, resp.Data)
			break
		}

		allData = append(allData, items...)

		if resp.Pagination == nil || !resp.Pagination.HasMore {
			break
		}
		page++
	}

	return allData, nil
}

// endpointLabel collapses numeric path segments so metric cardinality stays bounded.
func endpointLabel(path string) string {
	out := make([]byte, 0, len(path))
	inDigits := false
	for i := 0; i < len(path); i++ {
		ch := path[i]
		if ch >= '0' && ch <= '9' {
			if !inDigits {
				out = append(out, ':', 'i', 'd')
				inDigits = true
			}
			continue
		}
		inDigits = false
		out = append(out, ch)
	}
	return string(out)
}

// truncate returns a truncated string for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
