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

	"github.com/citylore/server/internal/domain/events"
	"github.com/citylore/server/internal/domain/venues"
)

func pad(html string) string {
	return html + "<!--" + string(make([]byte, 6000)) + "-->"
}

func TestSiteExtractorScrapesHeuristicPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			http.NotFound(w, r)
		case "/events":
			fmt.Fprint(w, pad(ldPage(`{
				"@context": "https://schema.org",
				"@type": "Event",
				"name": "Evening Concert",
				"startDate": "2026-09-16T19:00:00",
				"url": "/concerts/evening"
			}`)))
		default:
			fmt.Fprint(w, pad("<html><body>home page, nothing structured</body></html>"))
		}
	}))
	defer srv.Close()

	venue := &venues.Venue{ID: 1, Name: "Concert Hall", Website: srv.URL, CityID: 1}
	extractor := NewSiteExtractor(NewFetcher(zerolog.Nop()).WithoutBrowserFallback(), zerolog.Nop())

	candidates, err := extractor.ScrapeVenue(context.Background(), venue, "", Window{All: true}, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Evening Concert", candidates[0].Title)
	assert.Equal(t, date(2026, 9, 16), candidates[0].StartDate)
	assert.Equal(t, srv.URL+"/concerts/evening", candidates[0].URL)
	assert.Equal(t, "website", candidates[0].SourceName)
}

func TestSiteExtractorUsesConfiguredEventPath(t *testing.T) {
	var hitPaths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		hitPaths = append(hitPaths, r.URL.Path)
		if r.URL.Path == "/custom/listing" {
			fmt.Fprint(w, pad(ldPage(`{"@type": "Event", "name": "Configured Page Event", "startDate": "2026-09-16"}`)))
			return
		}
		fmt.Fprint(w, pad("<html><body>nothing</body></html>"))
	}))
	defer srv.Close()

	venue := &venues.Venue{
		ID: 1, Name: "Museum", Website: srv.URL, CityID: 1,
		AdditionalInfo: venues.AdditionalInfo{EventPaths: map[string]string{"events": "/custom/listing"}},
	}
	extractor := NewSiteExtractor(NewFetcher(zerolog.Nop()).WithoutBrowserFallback(), zerolog.Nop())

	candidates, err := extractor.ScrapeVenue(context.Background(), venue, "", Window{All: true}, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Configured Page Event", candidates[0].Title)
	require.NotEmpty(t, hitPaths)
	assert.Equal(t, "/custom/listing", hitPaths[0])
}

func TestSiteExtractorAppliesQuota(t *testing.T) {
	blocks := ""
	for i := 0; i < 4; i++ {
		blocks += fmt.Sprintf(`{"@type": "Event", "name": "Show %d", "startDate": "2026-09-1%d"},`, i, i)
	}
	page := pad(ldPage("[" + blocks[:len(blocks)-1] + "]"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	venue := &venues.Venue{ID: 1, Name: "Busy Venue", Website: srv.URL, CityID: 1}
	extractor := NewSiteExtractor(NewFetcher(zerolog.Nop()).WithoutBrowserFallback(), zerolog.Nop())

	// A fresh governor holds nothing back; the extractor only consults
	// the ceiling, it never spends slots itself.
	quotas := events.NewQuotaGovernor(5, 2)
	candidates, err := extractor.ScrapeVenue(context.Background(), venue, "", Window{All: true}, quotas)
	require.NoError(t, err)
	assert.Len(t, candidates, 4)

	// Once the merge engine has spent the venue's slots, later fetches
	// come back empty.
	venueID := int64(1)
	for i := 0; i < 2; i++ {
		require.NoError(t, quotas.Admit(events.Candidate{
			Title: fmt.Sprintf("Admitted %d", i), EventType: events.TypeEvent, VenueID: &venueID,
		}))
	}
	candidates, err = extractor.ScrapeVenue(context.Background(), venue, "", Window{All: true}, quotas)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestSiteExtractorFiltersByType(t *testing.T) {
	page := pad(ldPage(`[
		{"@type": "ExhibitionEvent", "name": "The Exhibition", "startDate": "2026-09-10", "endDate": "2026-12-01"},
		{"@type": "MusicEvent", "name": "The Concert", "startDate": "2026-09-11"}
	]`))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	venue := &venues.Venue{ID: 1, Name: "Mixed Venue", Website: srv.URL, CityID: 1}
	extractor := NewSiteExtractor(NewFetcher(zerolog.Nop()).WithoutBrowserFallback(), zerolog.Nop())

	candidates, err := extractor.ScrapeVenue(context.Background(), venue, "exhibition", Window{All: true}, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "The Exhibition", candidates[0].Title)
}

func TestSiteExtractorNoWebsite(t *testing.T) {
	extractor := NewSiteExtractor(NewFetcher(zerolog.Nop()).WithoutBrowserFallback(), zerolog.Nop())
	venue := &venues.Venue{ID: 1, Name: "Offline Venue", CityID: 1}
	candidates, err := extractor.ScrapeVenue(context.Background(), venue, "", Window{All: true}, nil)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestSiteExtractorReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	venue := &venues.Venue{ID: 1, Name: "Broken Venue", Website: srv.URL, CityID: 1}
	extractor := NewSiteExtractor(NewFetcher(zerolog.Nop()).WithoutBrowserFallback(), zerolog.Nop())
	candidates, err := extractor.ScrapeVenue(context.Background(), venue, "", Window{All: true}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Broken Venue")
	assert.Empty(t, candidates)
}
