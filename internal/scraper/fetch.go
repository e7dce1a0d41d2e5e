package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"
	"github.com/temoto/robotstxt"

	"github.com/citylore/server/internal/metrics"
)

const (
	scraperUserAgent = "CityLore-Scraper/1.0 (+https://citylore.app; events@citylore.app)"
	fetchTimeout     = 10 * time.Second
	robotsTimeout    = 10 * time.Second
	browserTimeout   = 30 * time.Second

	// Responses smaller than this that mention a challenge vendor are
	// treated as bot walls, not content.
	botChallengeMaxBytes = 5 * 1024

	maxBodyBytes = 10 * 1024 * 1024
)

var botChallengeMarkers = []string{
	"cloudflare",
	"just a moment",
	"checking your browser",
	"attention required",
}

// Fetcher retrieves venue pages with robots.txt compliance and a headless
// browser fallback for bot-walled sites.
type Fetcher struct {
	client    *http.Client
	logger    zerolog.Logger
	useRod    bool
	userAgent string
}

func NewFetcher(logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: fetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		logger:    logger,
		useRod:    true,
		userAgent: scraperUserAgent,
	}
}

// WithoutBrowserFallback disables the headless fallback (tests, CLI
// environments without Chromium).
func (f *Fetcher) WithoutBrowserFallback() *Fetcher {
	clone := *f
	clone.useRod = false
	return &clone
}

// Fetch retrieves rawURL and returns the HTML body. Transient failures
// get one retry; a bot challenge response triggers the headless fallback.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid URL %q: missing scheme or host", rawURL)
	}

	allowed, robotsErr := f.robotsAllowed(ctx, parsed)
	if robotsErr != nil {
		// Unreachable robots.txt is treated as allowed.
		f.logger.Warn().Err(robotsErr).Str("url", rawURL).Msg("robots.txt check failed, proceeding")
		allowed = true
	}
	if !allowed {
		return "", fmt.Errorf("scraping disallowed by robots.txt for %q", rawURL)
	}

	body, err := f.fetchOnce(ctx, rawURL)
	if err != nil {
		// One retry for transient failures.
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		body, err = f.fetchOnce(ctx, rawURL)
		if err != nil {
			return "", err
		}
	}

	if f.looksLikeBotChallenge(body) {
		f.logger.Info().Str("url", rawURL).Msg("bot challenge detected, using headless fallback")
		metrics.FetchFallbacksTotal.Inc()
		if !f.useRod {
			return "", fmt.Errorf("bot challenge at %q and headless fallback disabled", rawURL)
		}
		return f.fetchWithBrowser(ctx, rawURL)
	}

	return body, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request for %q: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %q: %w", rawURL, err)
	}
	defer resp.Body.Close()

	// 403/503 are the usual bot-wall statuses; read the body anyway so
	// the challenge sniff can decide.
	if resp.StatusCode != http.StatusOK &&
		resp.StatusCode != http.StatusForbidden &&
		resp.StatusCode != http.StatusServiceUnavailable {
		return "", fmt.Errorf("unexpected status %d fetching %q", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("reading body from %q: %w", rawURL, err)
	}
	return string(body), nil
}

// looksLikeBotChallenge sniffs small responses for challenge-page markers.
func (f *Fetcher) looksLikeBotChallenge(body string) bool {
	if len(body) >= botChallengeMaxBytes {
		return false
	}
	lower := strings.ToLower(body)
	for _, marker := range botChallengeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// fetchWithBrowser renders the page in headless Chromium with stealth
// patches applied, defeating fingerprint-based challenges.
func (f *Fetcher) fetchWithBrowser(ctx context.Context, rawURL string) (string, error) {
	controlURL, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return "", fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("connecting to browser: %w", err)
	}
	defer func() {
		_ = browser.Close()
	}()

	page, err := stealth.Page(browser)
	if err != nil {
		return "", fmt.Errorf("creating stealth page: %w", err)
	}
	page = page.Timeout(browserTimeout)

	if err := page.Navigate(rawURL); err != nil {
		return "", fmt.Errorf("navigating to %q: %w", rawURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("waiting for %q to load: %w", rawURL, err)
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("reading rendered HTML from %q: %w", rawURL, err)
	}
	return html, nil
}

// robotsAllowed checks robots.txt for the page. A missing robots.txt
// allows everything; a malformed one too.
func (f *Fetcher) robotsAllowed(ctx context.Context, pageURL *url.URL) (bool, error) {
	robotsURL := &url.URL{
		Scheme: pageURL.Scheme,
		Host:   pageURL.Host,
		Path:   "/robots.txt",
	}

	ctx, cancel := context.WithTimeout(ctx, robotsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return false, fmt.Errorf("building robots.txt request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("fetching robots.txt from %q: %w", robotsURL.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return true, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return false, fmt.Errorf("reading robots.txt body: %w", err)
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return true, nil
	}
	return data.TestAgent(pageURL.Path, f.userAgent), nil
}
