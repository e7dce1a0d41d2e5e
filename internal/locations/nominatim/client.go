// Package nominatim is a minimal client for the OSM Nominatim geocoding
// API, rate-limited to comply with the public instance usage policy.
package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public Nominatim endpoint.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"
	// DefaultUserAgent identifies us per OSM usage policy.
	DefaultUserAgent = "CityLore/1.0"
	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 5 * time.Second
	// DefaultRateLimit is 1 request per second (OSM policy).
	DefaultRateLimit = rate.Limit(1.0)

	maxRetries     = 2
	retryBaseDelay = 1 * time.Second
)

// ErrUnavailable marks transient failures (network errors, 429, 5xx) that
// exhausted the retry budget. Callers may try again later.
var ErrUnavailable = errors.New("nominatim unavailable")

// Client talks to a Nominatim instance.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRateLimit sets a custom rate limit in requests per second. Useful
// against self-hosted instances that allow more than 1 rps.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewClient creates a client for the given Nominatim endpoint. email is
// appended to the User-Agent per OSM usage policy; pass "" to omit it.
func NewClient(baseURL, email string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	ua := DefaultUserAgent
	if email != "" {
		ua = fmt.Sprintf("%s (%s)", ua, email)
	}
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    baseURL,
		userAgent:  ua,
		limiter:    rate.NewLimiter(DefaultRateLimit, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search performs forward geocoding. An empty result slice with a nil
// error means Nominatim answered but found nothing.
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) ([]Place, error) {
	if query == "" {
		return nil, errors.New("query cannot be empty")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")
	if opts.CountryCodes != "" {
		params.Set("countrycodes", opts.CountryCodes)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 1
	}
	if limit > 10 {
		limit = 10
	}
	params.Set("limit", strconv.Itoa(limit))

	var results []Place
	if err := c.getJSON(ctx, c.baseURL+"/search?"+params.Encode(), &results); err != nil {
		return nil, fmt.Errorf("search geocoding: %w", err)
	}
	return results, nil
}

// Reverse resolves coordinates to an address.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (*Place, error) {
	if lat < -90 || lat > 90 {
		return nil, fmt.Errorf("invalid latitude %f", lat)
	}
	if lon < -180 || lon > 180 {
		return nil, fmt.Errorf("invalid longitude %f", lon)
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")

	var result Place
	if err := c.getJSON(ctx, c.baseURL+"/reverse?"+params.Encode(), &result); err != nil {
		return nil, fmt.Errorf("reverse geocoding: %w", err)
	}
	return &result, nil
}

// getJSON executes a GET with rate limiting and exponential backoff on
// transient failures.
func (c *Client) getJSON(ctx context.Context, requestURL string, out interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = errors.New("rate limited (429)")
			continue
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error (%d)", resp.StatusCode)
			continue
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("parse json: %w", err)
		}
		return nil
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}
