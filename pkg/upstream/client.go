// Package upstream talks to the remote recipe catalog API.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultCacheControl asks intermediaries for a one hour freshness window
// with a one day background revalidation window. It is advisory only.
const DefaultCacheControl = "max-age=3600, stale-while-revalidate=86400"

// maxBodySize bounds how much of an upstream body is read.
const maxBodySize = 8 << 20

// ErrInvalidJSON is returned when a successful response body is not JSON.
var ErrInvalidJSON = errors.New("upstream returned invalid JSON")

// StatusError reports a non-success HTTP status from the upstream API.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s: %s", e.URL, e.Status)
}

// Result is a successful upstream response.
type Result struct {
	URL        string
	StatusCode int
	Body       json.RawMessage
	ReceivedAt time.Time
}

// Options configures a Client.
type Options struct {
	Timeout      time.Duration
	CacheControl string
	UserAgent    string
	// RateLimit caps requests per second; zero disables limiting.
	RateLimit float64
	Burst     int
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
	// Now stamps ReceivedAt; defaults to time.Now.
	Now func() time.Time
}

// Client performs read-only GETs against the catalog API.
type Client struct {
	http         *http.Client
	cacheControl string
	userAgent    string
	limiter      *rate.Limiter
	now          func() time.Time
}

// New creates a Client from opts.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	cc := opts.CacheControl
	if cc == "" {
		cc = DefaultCacheControl
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	c := &Client{
		http:         hc,
		cacheControl: cc,
		userAgent:    opts.UserAgent,
		now:          now,
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// Fetch GETs url and returns its JSON body. Non-2xx statuses produce a
// *StatusError; bodies that are not valid JSON produce ErrInvalidJSON.
func (c *Client) Fetch(ctx context.Context, url string) (*Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", c.cacheControl)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidJSON, url)
	}

	return &Result{
		URL:        url,
		StatusCode: resp.StatusCode,
		Body:       body,
		ReceivedAt: c.now(),
	}, nil
}
