package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citylore/server/internal/domain/venues"
)

func TestOrganizerID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.eventbrite.com/o/national-gallery-12345678", "12345678"},
		{"https://www.eventbrite.com/o/some-org-1234567890123456/", "1234567890123456"},
		{"https://www.eventbrite.com/o/short-1234567", ""},
		{"https://example.org/tickets", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OrganizerID(tt.url), tt.url)
	}
}

func aggregatorVenue(ticketingURL string) *venues.Venue {
	return &venues.Venue{
		ID:           3,
		Name:         "Planet Word",
		Website:      "https://planetword.example.org",
		TicketingURL: ticketingURL,
		CityID:       1,
	}
}

func TestAggregatorScrapesPages(t *testing.T) {
	var pagesServed int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.Contains(t, r.URL.Path, "/organizers/12345678/events/")

		pagesServed++
		continuation := r.URL.Query().Get("continuation")
		if continuation == "" {
			fmt.Fprint(w, `{
				"events": [
					{"name": {"text": "Word Play Night"}, "url": "https://tickets.example.org/e/1",
					 "start": {"local": "2026-09-18T19:00:00"}, "end": {"local": "2026-09-18T21:00:00"},
					 "venue": {"name": "Planet Word"}, "online_event": false}
				],
				"pagination": {"continuation": "abc", "has_more_items": true}
			}`)
			return
		}
		require.Equal(t, "abc", continuation)
		fmt.Fprint(w, `{
			"events": [
				{"name": {"text": "Virtual Author Talk"}, "url": "https://tickets.example.org/e/2",
				 "start": {"local": "2026-09-19T18:00:00"}, "online_event": true}
			],
			"pagination": {"has_more_items": false}
		}`)
	}))
	defer srv.Close()

	client := NewAggregatorClient(zerolog.Nop()).WithToken("test-token").WithBaseURL(srv.URL)
	candidates, err := client.ScrapeVenue(context.Background(), aggregatorVenue("https://www.eventbrite.com/o/planet-word-12345678"), Window{All: true}, nil)

	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, 2, pagesServed)

	first := candidates[0]
	assert.Equal(t, "Word Play Night", first.Title)
	assert.Equal(t, "aggregator", first.SourceName)
	assert.Equal(t, date(2026, 9, 18), first.StartDate)
	require.NotNil(t, first.StartTime)
	assert.Equal(t, "19:00", *first.StartTime)
	require.NotNil(t, first.EndTime)
	assert.Equal(t, "21:00", *first.EndTime)
	assert.Nil(t, first.EndDate)
	require.NotNil(t, first.RegistrationRequired)
	assert.True(t, *first.RegistrationRequired)
	assert.Equal(t, "https://tickets.example.org/e/1", first.RegistrationURL)

	second := candidates[1]
	require.NotNil(t, second.IsOnline)
	assert.True(t, *second.IsOnline)
}

func TestAggregatorStopsAtPageCap(t *testing.T) {
	var pagesServed int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesServed++
		fmt.Fprintf(w, `{
			"events": [{"name": {"text": "Repeat %d"}, "url": "https://t.example.org/%d",
				"start": {"local": "2026-09-18T19:00:00"}}],
			"pagination": {"continuation": "c%d", "has_more_items": true}
		}`, pagesServed, pagesServed, pagesServed)
	}))
	defer srv.Close()

	client := NewAggregatorClient(zerolog.Nop()).WithToken("t").WithBaseURL(srv.URL)
	candidates, err := client.ScrapeVenue(context.Background(), aggregatorVenue("https://www.eventbrite.com/o/x-99999999"), Window{All: true}, nil)

	require.NoError(t, err)
	assert.Equal(t, aggregatorMaxPages, pagesServed)
	assert.Len(t, candidates, aggregatorMaxPages)
}

func TestAggregatorMissingToken(t *testing.T) {
	client := NewAggregatorClient(zerolog.Nop()).WithToken("")
	candidates, err := client.ScrapeVenue(context.Background(), aggregatorVenue("https://www.eventbrite.com/o/x-12345678"), Window{All: true}, nil)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestAggregatorUnrecognizedURL(t *testing.T) {
	client := NewAggregatorClient(zerolog.Nop()).WithToken("t")
	candidates, err := client.ScrapeVenue(context.Background(), aggregatorVenue("https://planetword.example.org/visit"), Window{All: true}, nil)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestAggregatorServerErrorKeepsEarlierPages(t *testing.T) {
	var pagesServed int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesServed++
		if pagesServed > 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{
			"events": [{"name": {"text": "Only Page"}, "url": "https://t.example.org/1",
				"start": {"local": "2026-09-18T19:00:00"}}],
			"pagination": {"continuation": "next", "has_more_items": true}
		}`)
	}))
	defer srv.Close()

	client := NewAggregatorClient(zerolog.Nop()).WithToken("t").WithBaseURL(srv.URL)
	candidates, err := client.ScrapeVenue(context.Background(), aggregatorVenue("https://www.eventbrite.com/o/x-99999999"), Window{All: true}, nil)

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Only Page", candidates[0].Title)
}

func TestAggregatorTotalFailureReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewAggregatorClient(zerolog.Nop()).WithToken("t").WithBaseURL(srv.URL)
	candidates, err := client.ScrapeVenue(context.Background(), aggregatorVenue("https://www.eventbrite.com/o/x-99999999"), Window{All: true}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "99999999")
	assert.Empty(t, candidates)
}
