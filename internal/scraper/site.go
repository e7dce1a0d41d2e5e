package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/citylore/server/internal/domain/events"
	"github.com/citylore/server/internal/domain/venues"
	"github.com/citylore/server/internal/metrics"
)

// heuristicPaths are tried against a venue website when no listing page
// is configured.
var heuristicPaths = []string{"/events", "/whatson", "/calendar", "/exhibitions"}

// SiteExtractor scrapes a venue's own website for events, trying
// structured markup first and falling back to heuristics.
type SiteExtractor struct {
	fetcher *Fetcher
	logger  zerolog.Logger
}

func NewSiteExtractor(fetcher *Fetcher, logger zerolog.Logger) *SiteExtractor {
	return &SiteExtractor{fetcher: fetcher, logger: logger}
}

// ScrapeVenue extracts candidates from the venue's site. Pages are tried
// in order until one yields at least one raw event; candidates outside
// the window or over quota are dropped. When every page attempt fails
// the last failure is returned so the caller can report it on the run.
func (e *SiteExtractor) ScrapeVenue(ctx context.Context, venue *venues.Venue, eventType string, window Window, quotas *events.QuotaGovernor) ([]events.Candidate, error) {
	if venue.Website == "" {
		e.logger.Warn().Str("venue", venue.Name).Msg("venue has no website, skipping")
		return nil, nil
	}

	origin := OriginForVenue(venue)
	logger := e.logger.With().Str("venue", venue.Name).Logger()

	var lastErr error
	for _, pageURL := range e.candidateURLs(venue, eventType) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raws, err := e.scrapePage(ctx, pageURL)
		if err != nil {
			logger.Warn().Err(err).Str("url", pageURL).Msg("page scrape failed")
			lastErr = err
			continue
		}
		if len(raws) == 0 {
			continue
		}

		logger.Info().Str("url", pageURL).Int("raw_events", len(raws)).Msg("extracted events")
		metrics.ScrapedEventsTotal.WithLabelValues("website").Add(float64(len(raws)))

		candidates := BuildCandidates(raws, origin, window)
		if eventType != "" {
			candidates = filterByType(candidates, eventType)
		}
		return capAtQuota(candidates, quotas, logger), nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("scraping %s: %w", venue.Name, lastErr)
	}
	logger.Info().Msg("no events found on venue site")
	return nil, nil
}

// ScrapeListing extracts candidates from a single listing URL. Used for
// curated sources, which point at exactly one page and carry no venue.
func (e *SiteExtractor) ScrapeListing(ctx context.Context, pageURL string, origin Origin, window Window, quotas *events.QuotaGovernor) ([]events.Candidate, error) {
	raws, err := e.scrapePage(ctx, pageURL)
	if err != nil {
		e.logger.Warn().Err(err).Str("url", pageURL).Msg("listing scrape failed")
		return nil, fmt.Errorf("scraping %s: %w", pageURL, err)
	}
	if len(raws) == 0 {
		return nil, nil
	}
	metrics.ScrapedEventsTotal.WithLabelValues(origin.SourceName).Add(float64(len(raws)))
	return capAtQuota(BuildCandidates(raws, origin, window), quotas, e.logger), nil
}

// candidateURLs resolves the listing pages to try: a configured event
// path wins, then the site root, then common heuristic paths.
func (e *SiteExtractor) candidateURLs(venue *venues.Venue, eventType string) []string {
	var urls []string
	seen := make(map[string]bool)
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}

	if path := venue.EventPath(eventType); path != "" {
		add(resolvePath(venue.Website, path))
	}
	add(venue.Website)
	for _, path := range heuristicPaths {
		add(resolvePath(venue.Website, path))
	}
	return urls
}

// scrapePage fetches one page and runs the strategy chain, stopping at
// the first strategy that produces a result.
func (e *SiteExtractor) scrapePage(ctx context.Context, pageURL string) ([]RawEvent, error) {
	body, err := e.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	if raws := ExtractJSONLD(doc); len(raws) > 0 {
		metrics.ExtractionStrategyTotal.WithLabelValues("jsonld").Inc()
		return resolveRelativeURLs(raws, pageURL), nil
	}
	if raws := ExtractMicrodata(doc); len(raws) > 0 {
		metrics.ExtractionStrategyTotal.WithLabelValues("microdata").Inc()
		return resolveRelativeURLs(raws, pageURL), nil
	}
	if raws := ExtractHeuristic(doc, pageURL); len(raws) > 0 {
		metrics.ExtractionStrategyTotal.WithLabelValues("heuristic").Inc()
		return raws, nil
	}
	return nil, nil
}

func filterByType(candidates []events.Candidate, eventType string) []events.Candidate {
	out := candidates[:0]
	for _, c := range candidates {
		if c.EventType == eventType {
			out = append(out, c)
		}
	}
	return out
}

// capAtQuota drops candidates whose venue is already at its ceiling.
// The check never reserves: the merge engine charges the governor when a
// candidate actually inserts, so an extractor passing a few extra
// candidates through costs nothing but the engine skipping them.
func capAtQuota(candidates []events.Candidate, quotas *events.QuotaGovernor, logger zerolog.Logger) []events.Candidate {
	if quotas == nil {
		return candidates
	}
	out := candidates[:0]
	for _, c := range candidates {
		if quotas.AtCeiling(c) {
			logger.Debug().Str("title", c.Title).Msg("quota reached, dropping candidate")
			continue
		}
		out = append(out, c)
	}
	return out
}

// resolveRelativeURLs absolutizes event and image links against the page
// they came from.
func resolveRelativeURLs(raws []RawEvent, pageURL string) []RawEvent {
	for i := range raws {
		raws[i].URL = absoluteURL(pageURL, raws[i].URL)
		raws[i].ImageURL = absoluteURL(pageURL, raws[i].ImageURL)
	}
	return raws
}

// resolvePath joins a site root with a listing path. Absolute paths
// replace the root's path; full URLs pass through.
func resolvePath(website, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base, err := url.Parse(website)
	if err != nil || base.Host == "" {
		return ""
	}
	ref, err := url.Parse(path)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
