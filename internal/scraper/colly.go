package scraper

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog"

	"github.com/citylore/server/internal/domain/events"
	"github.com/citylore/server/internal/metrics"
)

// SourceCrawler scrapes curated listing sites with per-source CSS
// selectors, following pagination links up to the configured page cap.
type SourceCrawler struct {
	userAgent string
	rateLimit time.Duration
	logger    zerolog.Logger
}

func NewSourceCrawler(logger zerolog.Logger) *SourceCrawler {
	return &SourceCrawler{
		userAgent: scraperUserAgent,
		rateLimit: time.Second,
		logger:    logger,
	}
}

// ScrapeSource crawls config.URL and paginated pages, applying the CSS
// selectors to collect candidates. robots.txt is respected (Colly
// default) and requests are rate limited per domain. Cancellation
// returns whatever was collected up to that point.
func (e *SourceCrawler) ScrapeSource(ctx context.Context, config SourceConfig, origin Origin, window Window, quotas *events.QuotaGovernor) ([]events.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	allowedDomain, err := extractDomain(config.URL)
	if err != nil {
		return nil, err
	}

	var (
		mu        sync.Mutex
		results   []RawEvent
		pagesSeen int
	)

	maxPages := config.MaxPages
	if maxPages <= 0 {
		maxPages = 10
	}

	c := colly.NewCollector(
		colly.UserAgent(e.userAgent),
		colly.AllowedDomains(allowedDomain),
	)

	if err := c.Limit(&colly.LimitRule{
		DomainGlob: "*",
		Delay:      e.rateLimit,
	}); err != nil {
		e.logger.Warn().Err(err).Msg("crawler: failed to set rate limit rule")
	}

	c.OnHTML(config.Selectors.EventList, func(h *colly.HTMLElement) {
		if ctx.Err() != nil {
			return
		}

		raw := RawEvent{}

		if config.Selectors.Title != "" {
			raw.Title = strings.TrimSpace(h.ChildText(config.Selectors.Title))
		}
		if config.Selectors.StartDate != "" {
			raw.StartDate = extractDateFromElement(h, config.Selectors.StartDate)
		}
		if config.Selectors.EndDate != "" {
			raw.EndDate = extractDateFromElement(h, config.Selectors.EndDate)
		}
		if config.Selectors.StartTime != "" {
			raw.StartTime = strings.TrimSpace(h.ChildText(config.Selectors.StartTime))
		}
		if config.Selectors.Location != "" {
			raw.Location = strings.TrimSpace(h.ChildText(config.Selectors.Location))
		}
		if config.Selectors.Description != "" {
			raw.Description = strings.TrimSpace(h.ChildText(config.Selectors.Description))
		}
		if config.Selectors.URL != "" {
			if href := h.ChildAttr(config.Selectors.URL, "href"); href != "" {
				raw.URL = h.Request.AbsoluteURL(href)
			}
		}
		if config.Selectors.Image != "" {
			if src := h.ChildAttr(config.Selectors.Image, "src"); src != "" {
				raw.ImageURL = h.Request.AbsoluteURL(src)
			}
		}

		if raw.Title == "" {
			return
		}

		mu.Lock()
		results = append(results, raw)
		mu.Unlock()
	})

	if config.Selectors.Pagination != "" {
		c.OnHTML(config.Selectors.Pagination, func(h *colly.HTMLElement) {
			if ctx.Err() != nil {
				return
			}

			mu.Lock()
			current := pagesSeen
			mu.Unlock()

			if current >= maxPages {
				return
			}

			href := h.Attr("href")
			if href == "" {
				href = h.ChildAttr("a", "href")
			}
			if href == "" {
				return
			}

			nextURL := h.Request.AbsoluteURL(href)
			if nextURL == "" {
				return
			}

			if err := c.Visit(nextURL); err != nil {
				e.logger.Warn().Err(err).Str("url", nextURL).Msg("crawler: failed to queue pagination URL")
			}
		})
	}

	c.OnRequest(func(r *colly.Request) {
		mu.Lock()
		pagesSeen++
		reachedMax := pagesSeen > maxPages
		mu.Unlock()

		if reachedMax {
			r.Abort()
			return
		}

		e.logger.Debug().
			Str("url", r.URL.String()).
			Int("page", pagesSeen).
			Msg("crawler: visiting page")
	})

	c.OnError(func(r *colly.Response, err error) {
		if ctx.Err() != nil {
			return
		}
		e.logger.Warn().
			Str("url", r.Request.URL.String()).
			Int("status", r.StatusCode).
			Err(err).
			Msg("crawler: request error")
	})

	// Visit is synchronous with async callbacks.
	if err := c.Visit(config.URL); err != nil {
		if ctx.Err() != nil {
			return buildCrawlResults(results, origin, window, quotas, e.logger), nil
		}
		return nil, err
	}

	c.Wait()

	return buildCrawlResults(results, origin, window, quotas, e.logger), nil
}

func buildCrawlResults(raws []RawEvent, origin Origin, window Window, quotas *events.QuotaGovernor, logger zerolog.Logger) []events.Candidate {
	if len(raws) == 0 {
		return nil
	}
	metrics.ScrapedEventsTotal.WithLabelValues(origin.SourceName).Add(float64(len(raws)))
	return capAtQuota(BuildCandidates(raws, origin, window), quotas, logger)
}

// extractDomain returns just the hostname, without the port.
func extractDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Hostname(), nil
}

// extractDateFromElement prefers a datetime attribute over text content.
func extractDateFromElement(h *colly.HTMLElement, selector string) string {
	if dt := h.ChildAttr(selector, "datetime"); dt != "" {
		return strings.TrimSpace(dt)
	}
	return strings.TrimSpace(h.ChildText(selector))
}
