package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citylore/server/internal/domain/cities"
	"github.com/citylore/server/internal/domain/events"
	"github.com/citylore/server/internal/domain/sources"
	"github.com/citylore/server/internal/domain/venues"
	"github.com/citylore/server/internal/scraper"
	"github.com/citylore/server/internal/snapshot"
	"github.com/citylore/server/internal/storage"
)

// Fakes embed the port interfaces so only the methods the dispatcher
// touches need bodies.

type fakeCities struct {
	cities.Repository
	byID map[int64]*cities.City
}

func (f *fakeCities) GetByID(_ context.Context, id int64) (*cities.City, error) {
	if c, ok := f.byID[id]; ok {
		return c, nil
	}
	return nil, cities.ErrNotFound
}

type fakeVenues struct {
	venues.Repository
	list []venues.Venue
}

func (f *fakeVenues) GetByIDs(_ context.Context, ids []int64) ([]venues.Venue, error) {
	var out []venues.Venue
	for _, v := range f.list {
		for _, id := range ids {
			if v.ID == id {
				out = append(out, v)
			}
		}
	}
	return out, nil
}

type fakeEvents struct {
	events.Repository
	mu sync.Mutex
	// queried collects the title batches read back per venue.
	queried map[int64][][]string
}

func (f *fakeEvents) ListByVenueTitles(_ context.Context, venueID int64, titles []string) ([]events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queried == nil {
		f.queried = make(map[int64][][]string)
	}
	f.queried[venueID] = append(f.queried[venueID], titles)

	out := make([]events.Event, 0, len(titles))
	for i, title := range titles {
		out = append(out, events.Event{ID: int64(i + 1), Title: title, VenueID: &venueID})
	}
	return out, nil
}

type fakeSources struct {
	sources.Repository
	mu      sync.Mutex
	list    []sources.Source
	checked map[int64]sources.CheckResult
}

func (f *fakeSources) GetByIDs(_ context.Context, ids []int64) ([]sources.Source, error) {
	var out []sources.Source
	for _, s := range f.list {
		for _, id := range ids {
			if s.ID == id {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (f *fakeSources) RecordCheck(_ context.Context, id int64, result sources.CheckResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checked == nil {
		f.checked = make(map[int64]sources.CheckResult)
	}
	f.checked[id] = result
	return nil
}

type fakeRuns struct {
	mu       sync.Mutex
	started  []storage.ScrapeRun
	finished map[int64]storage.ScrapeRunOutcome
}

func (f *fakeRuns) Start(_ context.Context, run storage.ScrapeRun) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, run)
	return int64(len(f.started)), nil
}

func (f *fakeRuns) Finish(_ context.Context, id int64, outcome storage.ScrapeRunOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finished == nil {
		f.finished = make(map[int64]storage.ScrapeRunOutcome)
	}
	f.finished[id] = outcome
	return nil
}

func (f *fakeRuns) ListRecent(_ context.Context, _ int) ([]storage.ScrapeRun, error) {
	return nil, nil
}

type fakeStore struct {
	storage.Repository
	cities  *fakeCities
	venues  *fakeVenues
	events  *fakeEvents
	sources *fakeSources
	runs    *fakeRuns
}

func (f *fakeStore) Cities() cities.Repository          { return f.cities }
func (f *fakeStore) Venues() venues.Repository          { return f.venues }
func (f *fakeStore) Events() events.Repository          { return f.events }
func (f *fakeStore) Sources() sources.Repository        { return f.sources }
func (f *fakeStore) ScrapeRuns() storage.ScrapeRunRepository { return f.runs }

type fakeSite struct {
	mu          sync.Mutex
	byVenue     map[int64][]events.Candidate
	byListing   map[string][]events.Candidate
	failVenue   map[int64]error
	failListing map[string]error
	venuesSeen  []int64
	listings    []string
	stall       bool
}

func (f *fakeSite) ScrapeVenue(ctx context.Context, venue *venues.Venue, _ string, _ scraper.Window, _ *events.QuotaGovernor) ([]events.Candidate, error) {
	f.mu.Lock()
	f.venuesSeen = append(f.venuesSeen, venue.ID)
	stall := f.stall
	out := f.byVenue[venue.ID]
	err := f.failVenue[venue.ID]
	f.mu.Unlock()
	if stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return out, err
}

func (f *fakeSite) ScrapeListing(_ context.Context, pageURL string, _ scraper.Origin, _ scraper.Window, _ *events.QuotaGovernor) ([]events.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listings = append(f.listings, pageURL)
	return f.byListing[pageURL], f.failListing[pageURL]
}

type fakeAggregator struct {
	mu         sync.Mutex
	byVenue    map[int64][]events.Candidate
	venuesSeen []int64
	organizers []string
}

func (f *fakeAggregator) ScrapeVenue(_ context.Context, venue *venues.Venue, _ scraper.Window, _ *events.QuotaGovernor) ([]events.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.venuesSeen = append(f.venuesSeen, venue.ID)
	return f.byVenue[venue.ID], nil
}

func (f *fakeAggregator) ScrapeOrganizer(_ context.Context, organizerURL string, _ scraper.Origin, _ scraper.Window, _ *events.QuotaGovernor) ([]events.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.organizers = append(f.organizers, organizerURL)
	return nil, nil
}

// fakeEngine treats every candidate as created.
type fakeEngine struct {
	mu      sync.Mutex
	batches [][]events.Candidate
}

func (f *fakeEngine) Process(_ context.Context, candidates []events.Candidate, _ *events.QuotaGovernor) events.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, candidates)
	return events.Outcome{Created: len(candidates)}
}

func candidateBatch(n int, prefix string) []events.Candidate {
	out := make([]events.Candidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, events.Candidate{
			Title:     fmt.Sprintf("%s %d", prefix, i+1),
			EventType: events.TypeEvent,
			StartDate: time.Date(2026, 9, 17, 0, 0, 0, 0, time.UTC),
		})
	}
	return out
}

type harness struct {
	store  *fakeStore
	site   *fakeSite
	agg    *fakeAggregator
	engine *fakeEngine
	disp   *Dispatcher
}

func newHarness(snapshots *snapshot.Writer) *harness {
	h := &harness{
		store: &fakeStore{
			cities: &fakeCities{byID: map[int64]*cities.City{
				1: {ID: 1, Name: "Washington", Timezone: "America/New_York"},
			}},
			venues:  &fakeVenues{},
			events:  &fakeEvents{},
			sources: &fakeSources{},
			runs:    &fakeRuns{},
		},
		site:   &fakeSite{byVenue: map[int64][]events.Candidate{}, byListing: map[string][]events.Candidate{}},
		agg:    &fakeAggregator{byVenue: map[int64][]events.Candidate{}},
		engine: &fakeEngine{},
	}
	h.disp = NewDispatcher(h.store, h.site, h.agg, h.engine, snapshots, zerolog.Nop())
	return h
}

// run drains the stream on a second goroutine, the way the SSE handler
// does, and returns everything received.
func (h *harness) run(ctx context.Context, req Request) ([]Record, error) {
	stream := NewStream()
	collected := make(chan []Record, 1)
	go func() {
		var recs []Record
		for rec := range stream.Records() {
			recs = append(recs, rec)
		}
		collected <- recs
	}()
	err := h.disp.Run(ctx, req, stream)
	return <-collected, err
}

func recordsOfKind(recs []Record, kind RecordKind) []Record {
	var out []Record
	for _, r := range recs {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

func TestRequestValidation(t *testing.T) {
	h := newHarness(nil)
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		req  Request
	}{
		{"no selection", Request{TimeRange: scraper.RangeToday}},
		{"bad time range", Request{VenueIDs: []int64{1}, TimeRange: "fortnight"}},
		{"custom without dates", Request{VenueIDs: []int64{1}, TimeRange: scraper.RangeCustom, CustomStart: &start}},
		{"bad event type", Request{VenueIDs: []int64{1}, TimeRange: scraper.RangeToday, EventType: "rave"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.run(context.Background(), tc.req)
			require.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	valid := Request{VenueIDs: []int64{1}, TimeRange: scraper.RangeCustom, CustomStart: &start, CustomEnd: &end}
	require.NoError(t, valid.Validate())
}

func TestRunScrapesVenuesAndFlushesBatches(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(snapshot.NewWriter(dir))

	cityID := int64(1)
	h.store.venues.list = []venues.Venue{
		{ID: 10, Name: "Planet Word", CityID: 1, Website: "https://planetword.org"},
		{ID: 11, Name: "Phillips Collection", CityID: 1, Website: "https://phillips.org"},
	}
	h.site.byVenue[10] = candidateBatch(7, "Word Event")
	h.site.byVenue[11] = candidateBatch(2, "Phillips Event")

	recs, err := h.run(context.Background(), Request{
		CityID:   &cityID,
		VenueIDs: []int64{10, 11},
		TimeRange: scraper.RangeThisWeek,
	})
	require.NoError(t, err)

	// Seven candidates flush as 5+2, two more as a single batch.
	var sizes []int
	for _, b := range h.engine.batches {
		sizes = append(sizes, len(b))
	}
	assert.ElementsMatch(t, []int{5, 2, 2}, sizes)

	eventRecs := recordsOfKind(recs, KindEvent)
	assert.Len(t, eventRecs, 9)
	for _, r := range eventRecs {
		require.NotNil(t, r.Event)
		assert.NotEmpty(t, r.Event.Title)
	}

	progress := recordsOfKind(recs, KindProgress)
	require.NotEmpty(t, progress)
	assert.Equal(t, 10, progress[0].Percentage)
	assert.Equal(t, "starting scrape", progress[0].Message)

	completes := recordsOfKind(recs, KindComplete)
	require.Len(t, completes, 1)
	assert.Equal(t, 9, completes[0].TotalEvents)
	assert.Contains(t, completes[0].Message, "9 added")

	// Bookkeeping row opened and closed.
	require.Len(t, h.store.runs.started, 1)
	assert.Equal(t, storage.ScrapeRunRunning, h.store.runs.started[0].Status)
	assert.Equal(t, 2, h.store.runs.started[0].VenuesRequested)
	outcome := h.store.runs.finished[1]
	assert.Equal(t, storage.ScrapeRunCompleted, outcome.Status)
	assert.Equal(t, 9, outcome.EventsAdded)
	assert.Equal(t, 0, outcome.ErrorCount)

	// Read-back was scoped to each venue's own titles.
	assert.Len(t, h.store.events.queried[10], 2)
	assert.Len(t, h.store.events.queried[11], 1)

	state, err := snapshot.NewWriter(dir).Read()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, storage.ScrapeRunCompleted, state.Status)
	assert.Equal(t, 100, state.Percentage)
	assert.Equal(t, 9, state.EventsFound)
}

func TestRunSkipsClosedVenues(t *testing.T) {
	h := newHarness(nil)
	h.store.venues.list = []venues.Venue{
		{ID: 10, Name: "Old Annex", CityID: 1, Website: "https://annex.example", Description: "Permanently closed since 2024."},
	}

	recs, err := h.run(context.Background(), Request{VenueIDs: []int64{10}, TimeRange: scraper.RangeToday})
	require.NoError(t, err)

	assert.Empty(t, h.site.venuesSeen)
	assert.Empty(t, recordsOfKind(recs, KindEvent))

	var skipped bool
	for _, r := range recordsOfKind(recs, KindProgress) {
		if r.VenueName == "Old Annex" {
			assert.Contains(t, r.Message, "closed")
			skipped = true
		}
	}
	assert.True(t, skipped)
}

func TestRunAddsAggregatorForTicketedVenues(t *testing.T) {
	h := newHarness(nil)
	h.store.venues.list = []venues.Venue{
		{ID: 10, Name: "Planet Word", CityID: 1, Website: "https://planetword.org",
			TicketingURL: "https://tickets.example/o/planet-word-12345678"},
		{ID: 11, Name: "No Tickets Hall", CityID: 1, Website: "https://nth.example"},
	}
	h.agg.byVenue[10] = candidateBatch(1, "Ticketed")

	_, err := h.run(context.Background(), Request{VenueIDs: []int64{10, 11}, TimeRange: scraper.RangeToday})
	require.NoError(t, err)

	assert.ElementsMatch(t, []int64{10, 11}, h.site.venuesSeen)
	assert.Equal(t, []int64{10}, h.agg.venuesSeen)
}

func TestRunReportsVenueScrapeFailures(t *testing.T) {
	h := newHarness(nil)
	h.store.venues.list = []venues.Venue{
		{ID: 10, Name: "Planet Word", CityID: 1, Website: "https://planetword.org"},
		{ID: 11, Name: "Phillips Collection", CityID: 1, Website: "https://phillips.org"},
	}
	h.site.failVenue = map[int64]error{10: errors.New("fetching listing: status 503")}
	h.site.byVenue[11] = candidateBatch(2, "Phillips Event")

	recs, err := h.run(context.Background(), Request{VenueIDs: []int64{10, 11}, TimeRange: scraper.RangeToday})
	require.NoError(t, err)

	errRecs := recordsOfKind(recs, KindError)
	require.Len(t, errRecs, 1)
	assert.Contains(t, errRecs[0].Message, "Planet Word")
	assert.Contains(t, errRecs[0].Message, "status 503")

	// The healthy venue is unaffected by its neighbor's failure.
	assert.Len(t, recordsOfKind(recs, KindEvent), 2)

	outcome := h.store.runs.finished[1]
	assert.Equal(t, storage.ScrapeRunCompleted, outcome.Status)
	assert.Equal(t, 1, outcome.ErrorCount)
	assert.Equal(t, 2, outcome.EventsAdded)
}

func TestRunReportsSourceScrapeFailures(t *testing.T) {
	h := newHarness(nil)
	h.store.sources.list = []sources.Source{
		{ID: 20, Name: "DC Arts Digest", Type: sources.TypeWebsite, URL: "https://digest.example/events", IsActive: true},
	}
	h.site.failListing = map[string]error{"https://digest.example/events": errors.New("connection refused")}

	recs, err := h.run(context.Background(), Request{SourceIDs: []int64{20}, TimeRange: scraper.RangeToday})
	require.NoError(t, err)

	errRecs := recordsOfKind(recs, KindError)
	require.Len(t, errRecs, 1)
	assert.Contains(t, errRecs[0].Message, "DC Arts Digest")

	// A failed check never records a successful source check.
	assert.NotContains(t, h.store.sources.checked, int64(20))
}

func TestRunScrapesSources(t *testing.T) {
	h := newHarness(nil)
	h.store.sources.list = []sources.Source{
		{ID: 20, Name: "DC Arts Digest", Type: sources.TypeWebsite, URL: "https://digest.example/events", IsActive: true},
		{ID: 21, Name: "Dormant Blog", Type: sources.TypeWebsite, URL: "https://dormant.example", IsActive: false},
		{ID: 22, Name: "Ticket Org", Type: sources.TypeAggregator, URL: "https://tickets.example/o/org-87654321", IsActive: true},
	}
	h.site.byListing["https://digest.example/events"] = candidateBatch(3, "Digest")

	recs, err := h.run(context.Background(), Request{SourceIDs: []int64{20, 21, 22}, TimeRange: scraper.RangeToday})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://digest.example/events"}, h.site.listings)
	assert.Equal(t, []string{"https://tickets.example/o/org-87654321"}, h.agg.organizers)

	// Active sources get their advisory bookkeeping updated.
	require.Contains(t, h.store.sources.checked, int64(20))
	assert.Equal(t, 3, h.store.sources.checked[20].EventsFound)
	assert.NotContains(t, h.store.sources.checked, int64(21))

	// Source events are persisted but not emitted row by row.
	assert.Empty(t, recordsOfKind(recs, KindEvent))
	completes := recordsOfKind(recs, KindComplete)
	require.Len(t, completes, 1)
	assert.Contains(t, completes[0].Message, "3 added")
}

func TestRunCancelledByConsumerDisconnect(t *testing.T) {
	h := newHarness(nil)
	h.store.venues.list = []venues.Venue{
		{ID: 10, Name: "Planet Word", CityID: 1, Website: "https://planetword.org"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.run(ctx, Request{VenueIDs: []int64{10}, TimeRange: scraper.RangeToday})
	require.ErrorIs(t, err, context.Canceled)

	outcome := h.store.runs.finished[1]
	assert.Equal(t, storage.ScrapeRunFailed, outcome.Status)
	assert.Equal(t, "run cancelled", outcome.Summary)
}

func TestRunAlertsOnFailedRun(t *testing.T) {
	h := newHarness(nil)
	h.store.venues.list = []venues.Venue{
		{ID: 10, Name: "Planet Word", CityID: 1, Website: "https://planetword.org"},
	}
	h.site.stall = true

	var (
		mu         sync.Mutex
		alerted    bool
		alertCount int
	)
	h.disp = h.disp.
		WithVenueTimeout(20 * time.Millisecond).
		WithAlerts(func(_ context.Context, requestID, summary string, errCount int) {
			mu.Lock()
			defer mu.Unlock()
			alerted = true
			alertCount = errCount
			assert.NotEmpty(t, requestID)
			assert.Contains(t, summary, "1 errors")
		})

	recs, err := h.run(context.Background(), Request{VenueIDs: []int64{10}, TimeRange: scraper.RangeToday})
	require.NoError(t, err)

	errRecs := recordsOfKind(recs, KindError)
	require.Len(t, errRecs, 1)
	assert.Contains(t, errRecs[0].Message, "timed out")

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, alerted)
	assert.Equal(t, 1, alertCount)

	outcome := h.store.runs.finished[1]
	assert.Equal(t, storage.ScrapeRunFailed, outcome.Status)
}

func TestRunUnknownSelectionFails(t *testing.T) {
	h := newHarness(nil)

	_, err := h.run(context.Background(), Request{VenueIDs: []int64{999}, TimeRange: scraper.RangeToday})
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, h.store.runs.started)
}
