package mediawiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	DefaultAPIURL    = "https://en.wikipedia.org/w/api.php"
	DefaultUserAgent = "revertbot/1.0 (https://github.com/revertbot/revertbot)"

	maxPages = 500
)

// Client is a small read-only MediaWiki Action API client.
type Client struct {
	apiURL     string
	userAgent  string
	httpClient *http.Client
	retries    uint64
	backoff    time.Duration
	limit      int
}

// APIError is a non-2xx HTTP response or an API-level error object.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("mediawiki: api error %s: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("mediawiki: HTTP %d: %s", e.StatusCode, e.Body)
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if strings.TrimSpace(ua) != "" {
			c.userAgent = ua
		}
	}
}

// WithRetry sets the retry count and the first backoff step (doubled each retry).
func WithRetry(n uint64, base time.Duration) Option {
	return func(c *Client) {
		c.retries = n
		if base > 0 {
			c.backoff = base
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithPageLimit sets the per-request list limit ("max" when <= 0).
func WithPageLimit(n int) Option {
	return func(c *Client) { c.limit = n }
}

func New(apiURL string, opts ...Option) *Client {
	if strings.TrimSpace(apiURL) == "" {
		apiURL = DefaultAPIURL
	}
	c := &Client{
		apiURL:     apiURL,
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retries:    3,
		backoff:    time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type listResponse struct {
	Continue map[string]string `json:"continue"`
	Query    struct {
		CategoryMembers []pageRef `json:"categorymembers"`
		EmbeddedIn      []pageRef `json:"embeddedin"`
	} `json:"query"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

type pageRef struct {
	NS    int    `json:"ns"`
	Title string `json:"title"`
}

// CategoryMembers lists every page title in category, following continuation.
func (c *Client) CategoryMembers(ctx context.Context, category string, namespaces []int) ([]string, error) {
	if !strings.Contains(category, ":") {
		category = "Category:" + category
	}
	q := url.Values{}
	q.Set("list", "categorymembers")
	q.Set("cmtitle", category)
	q.Set("cmlimit", c.limitParam())
	q.Set("cmprop", "title")
	if ns := joinNS(namespaces); ns != "" {
		q.Set("cmnamespace", ns)
	}
	return c.list(ctx, q, func(r *listResponse) []pageRef { return r.Query.CategoryMembers })
}

// EmbeddedIn lists every page transcluding template, following continuation.
func (c *Client) EmbeddedIn(ctx context.Context, template string, namespaces []int) ([]string, error) {
	if !strings.Contains(template, ":") {
		template = "Template:" + template
	}
	q := url.Values{}
	q.Set("list", "embeddedin")
	q.Set("eititle", template)
	q.Set("eilimit", c.limitParam())
	if ns := joinNS(namespaces); ns != "" {
		q.Set("einamespace", ns)
	}
	return c.list(ctx, q, func(r *listResponse) []pageRef { return r.Query.EmbeddedIn })
}

func (c *Client) list(ctx context.Context, q url.Values, pick func(*listResponse) []pageRef) ([]string, error) {
	q.Set("action", "query")
	q.Set("format", "json")
	q.Set("formatversion", "2")

	var titles []string
	seen := map[string]struct{}{}
	for page := 0; ; page++ {
		if page >= maxPages {
			return nil, fmt.Errorf("mediawiki: more than %d result pages", maxPages)
		}
		var resp listResponse
		if err := c.getJSON(ctx, q, &resp); err != nil {
			return nil, err
		}
		if resp.Error != nil {
			return nil, &APIError{StatusCode: http.StatusOK, Code: resp.Error.Code, Body: resp.Error.Info}
		}
		for _, p := range pick(&resp) {
			if _, dup := seen[p.Title]; dup || p.Title == "" {
				continue
			}
			seen[p.Title] = struct{}{}
			titles = append(titles, p.Title)
		}
		if len(resp.Continue) == 0 {
			return titles, nil
		}
		for k, v := range resp.Continue {
			q.Set(k, v)
		}
	}
}

// getJSON issues a GET and decodes the body into dest. 429 and 5xx responses
// and transport errors are retried with exponential backoff.
func (c *Client) getJSON(ctx context.Context, q url.Values, dest any) error {
	fullURL := c.apiURL + "?" + q.Encode()
	b := retry.WithMaxRetries(c.retries, retry.NewExponential(c.backoff))

	return retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return retry.RetryableError(err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if err := json.Unmarshal(body, dest); err != nil {
				return fmt.Errorf("mediawiki: decode response: %w", err)
			}
			return nil
		}

		bodyStr := string(body)
		if len(bodyStr) > 512 {
			bodyStr = bodyStr[:512]
		}
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: bodyStr}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.RetryableError(apiErr)
		}
		return apiErr
	})
}

func (c *Client) limitParam() string {
	if c.limit <= 0 {
		return "max"
	}
	return strconv.Itoa(c.limit)
}

func joinNS(ns []int) string {
	parts := make([]string, 0, len(ns))
	for _, n := range ns {
		parts = append(parts, strconv.Itoa(n))
	}
	return strings.Join(parts, "|")
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
