package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citylore/server/internal/domain/cities"
	"github.com/citylore/server/internal/domain/events"
	"github.com/citylore/server/internal/domain/venues"
)

// fakeEventsRepo answers the duplicate probes: nothing matches until the
// merge engine has run, then the created row comes back.
type fakeEventsRepo struct {
	events.Repository
	mu      sync.Mutex
	created *events.Event
	probes  int
}

func (f *fakeEventsRepo) FindByTitleVenueDate(_ context.Context, _ events.TitleVenueMatch) (*events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	if f.probes > 1 {
		return f.created, nil
	}
	return nil, nil
}

func (f *fakeEventsRepo) FindByTitleCityDate(_ context.Context, _ events.TitleCityMatch) (*events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	if f.probes > 1 {
		return f.created, nil
	}
	return nil, nil
}

func newEventsHarness(merger *fakeMerger, created *events.Event) *EventsHandler {
	store := &fakeHandlerStore{
		venues: &fakeVenueRepo{byID: map[int64]*venues.Venue{
			10: {ID: 10, Name: "Planet Word", CityID: 1},
		}},
		cities: &fakeCityRepo{byID: map[int64]*cities.City{
			1: {ID: 1, Name: "Washington", Timezone: "America/New_York"},
		}},
		events: &fakeEventsRepo{created: created},
	}
	return NewEventsHandler(store, merger, NewImageProxy(), "test")
}

func postEvent(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/create-event-from-data", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestCreateEventRequiresVenueOrCity(t *testing.T) {
	h := newEventsHarness(&fakeMerger{}, nil)

	rec := postEvent(t, h.CreateFromData, `{"title": "Floating Event", "start_date": "2026-09-10"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
	assert.Contains(t, rec.Body.String(), "venue_id or city_id")
}

func TestCreateEventRejectsUnknownVenue(t *testing.T) {
	h := newEventsHarness(&fakeMerger{}, nil)

	rec := postEvent(t, h.CreateFromData, `{"title": "Ghost Venue Talk", "start_date": "2026-09-10", "venue_id": 999}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "999")
}

func TestCreateEventDerivesCityFromVenue(t *testing.T) {
	venueID, cityID := int64(10), int64(1)
	created := &events.Event{ID: 42, Title: "Gallery Talk", EventType: events.TypeTalk,
		VenueID: &venueID, CityID: &cityID}
	merger := &fakeMerger{outcome: events.Outcome{Created: 1}}
	h := newEventsHarness(merger, created)

	// city_id omitted on purpose; the venue pins it.
	rec := postEvent(t, h.CreateFromData,
		`{"title": "Gallery Talk", "event_type": "talk", "start_date": "2026-09-10", "venue_id": 10}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "42")

	require.Len(t, merger.batches, 1)
	require.Len(t, merger.batches[0], 1)
	c := merger.batches[0][0]
	require.NotNil(t, c.CityID)
	assert.Equal(t, cityID, *c.CityID)
}

func TestCreateEventOverridesMismatchedCity(t *testing.T) {
	venueID, cityID := int64(10), int64(1)
	created := &events.Event{ID: 43, Title: "Word Workshop", EventType: events.TypeWorkshop,
		VenueID: &venueID, CityID: &cityID}
	merger := &fakeMerger{outcome: events.Outcome{Created: 1}}
	h := newEventsHarness(merger, created)

	// A stale city_id in the payload loses to the venue's city.
	rec := postEvent(t, h.CreateFromData,
		`{"title": "Word Workshop", "event_type": "workshop", "start_date": "2026-09-11", "venue_id": 10, "city_id": 7}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, merger.batches, 1)
	c := merger.batches[0][0]
	require.NotNil(t, c.CityID)
	assert.Equal(t, cityID, *c.CityID)
}
