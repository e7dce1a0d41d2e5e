package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"regexp"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/citylore/server/internal/domain/events"
	"github.com/citylore/server/internal/domain/venues"
	"github.com/citylore/server/internal/metrics"
)

const (
	// AggregatorTokenEnv is the environment variable the API token is
	// read from. A missing token disables the extractor, never fails it.
	AggregatorTokenEnv = "AGGREGATOR_API_TOKEN"

	defaultAggregatorBaseURL = "https://www.eventbriteapi.com/v3"
	aggregatorMaxPages       = 5
)

// organizerIDRe matches the trailing numeric organizer token aggregator
// URLs end with, e.g. .../o/national-gallery-12345678.
var organizerIDRe = regexp.MustCompile(`(\d{8,16})/?$`)

// AggregatorClient pages through an external ticketing aggregator's
// events-by-organizer endpoint.
type AggregatorClient struct {
	client  *http.Client
	baseURL string
	token   string
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewAggregatorClient builds a client with the token from the process
// environment.
func NewAggregatorClient(logger zerolog.Logger) *AggregatorClient {
	return &AggregatorClient{
		client:  &http.Client{Timeout: fetchTimeout},
		baseURL: defaultAggregatorBaseURL,
		token:   os.Getenv(AggregatorTokenEnv),
		limiter: rate.NewLimiter(rate.Limit(2), 1),
		logger:  logger,
	}
}

// WithBaseURL overrides the API base, for tests.
func (a *AggregatorClient) WithBaseURL(baseURL string) *AggregatorClient {
	clone := *a
	clone.baseURL = baseURL
	return &clone
}

// WithToken overrides the environment token.
func (a *AggregatorClient) WithToken(token string) *AggregatorClient {
	clone := *a
	clone.token = token
	return &clone
}

// OrganizerID extracts the aggregator organizer identifier from a
// ticketing URL. Empty when the URL carries no recognizable token.
func OrganizerID(ticketingURL string) string {
	u, err := url.Parse(ticketingURL)
	if err != nil {
		return ""
	}
	if m := organizerIDRe.FindStringSubmatch(u.Path); m != nil {
		return m[1]
	}
	return ""
}

// aggregatorEvent is the subset of the aggregator's event payload the
// mapper reads.
type aggregatorEvent struct {
	Name struct {
		Text string `json:"text"`
	} `json:"name"`
	Description struct {
		Text string `json:"text"`
	} `json:"description"`
	URL   string `json:"url"`
	Start struct {
		Local string `json:"local"`
	} `json:"start"`
	End struct {
		Local string `json:"local"`
	} `json:"end"`
	Logo struct {
		URL string `json:"url"`
	} `json:"logo"`
	OnlineEvent bool `json:"online_event"`
	Venue       struct {
		Name string `json:"name"`
	} `json:"venue"`
}

type aggregatorPage struct {
	Events     []aggregatorEvent `json:"events"`
	Pagination struct {
		Continuation string `json:"continuation"`
		HasMoreItems bool   `json:"has_more_items"`
	} `json:"pagination"`
}

// ScrapeVenue pages through the organizer's events and maps them into
// candidates. Every aggregator event requires registration at its own
// page. A missing token or unrecognizable URL yields an empty stream.
func (a *AggregatorClient) ScrapeVenue(ctx context.Context, venue *venues.Venue, window Window, quotas *events.QuotaGovernor) ([]events.Candidate, error) {
	origin := Origin{
		VenueID:    &venue.ID,
		CityID:     &venue.CityID,
		Venue:      venue,
		SourceName: "aggregator",
		SourceURL:  venue.TicketingURL,
	}
	return a.ScrapeOrganizer(ctx, venue.TicketingURL, origin, window, quotas)
}

// ScrapeOrganizer is the venue-less entry point used for curated
// aggregator sources.
func (a *AggregatorClient) ScrapeOrganizer(ctx context.Context, organizerURL string, origin Origin, window Window, quotas *events.QuotaGovernor) ([]events.Candidate, error) {
	if a.token == "" {
		a.logger.Warn().Str("url", organizerURL).Msg("aggregator token not configured, skipping")
		return nil, nil
	}
	organizerID := OrganizerID(organizerURL)
	if organizerID == "" {
		a.logger.Warn().Str("url", organizerURL).Msg("no organizer id in URL, skipping")
		return nil, nil
	}

	logger := a.logger.With().Str("organizer", organizerID).Logger()

	var raws []RawEvent
	var lastErr error
	continuation := ""
	for page := 0; page < aggregatorMaxPages; page++ {
		if err := a.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}

		result, err := a.fetchPage(ctx, organizerID, continuation)
		if err != nil {
			// Partial results from earlier pages still flow through; the
			// failure only surfaces when nothing came back at all.
			logger.Warn().Err(err).Int("page", page+1).Msg("aggregator page fetch failed")
			lastErr = err
			break
		}
		for _, ev := range result.Events {
			raws = append(raws, mapAggregatorEvent(ev))
		}
		if !result.Pagination.HasMoreItems || result.Pagination.Continuation == "" {
			break
		}
		continuation = result.Pagination.Continuation
	}

	if len(raws) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("aggregator organizer %s: %w", organizerID, lastErr)
		}
		return nil, nil
	}
	metrics.ScrapedEventsTotal.WithLabelValues(origin.SourceName).Add(float64(len(raws)))
	return capAtQuota(BuildCandidates(raws, origin, window), quotas, logger), nil
}

func (a *AggregatorClient) fetchPage(ctx context.Context, organizerID, continuation string) (*aggregatorPage, error) {
	endpoint := fmt.Sprintf("%s/organizers/%s/events/?status=live&order_by=start_asc&expand=venue",
		a.baseURL, organizerID)
	if continuation != "" {
		endpoint += "&continuation=" + url.QueryEscape(continuation)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building aggregator request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching aggregator page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("aggregator returned status %d", resp.StatusCode)
	}

	var page aggregatorPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding aggregator page: %w", err)
	}
	return &page, nil
}

// mapAggregatorEvent converts one aggregator payload into a RawEvent.
// Registration always runs through the event's own page.
func mapAggregatorEvent(ev aggregatorEvent) RawEvent {
	raw := RawEvent{
		Title:           ev.Name.Text,
		Description:     ev.Description.Text,
		URL:             ev.URL,
		ImageURL:        ev.Logo.URL,
		Location:        ev.Venue.Name,
		IsOnline:        ev.OnlineEvent,
		RegistrationURL: ev.URL,
	}
	raw.StartDate, raw.StartTime = splitSchemaDateTime(ev.Start.Local)
	raw.EndDate, raw.EndTime = splitSchemaDateTime(ev.End.Local)

	// Same-day events keep only the start date so the range reads as a
	// single day downstream.
	if raw.EndDate == raw.StartDate {
		raw.EndDate = ""
	}
	return raw
}
