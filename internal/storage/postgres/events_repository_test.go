package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citylore/server/internal/domain/events"
	"github.com/citylore/server/internal/storage"
)

func newEventParams(title, eventType string, start time.Time) events.CreateParams {
	return events.CreateParams{
		ULID:      ulid.Make().String(),
		Title:     title,
		EventType: eventType,
		StartDate: start,
		Language:  "English",
	}
}

func TestEventInsertAndGet(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)
	repo, err := NewRepository(pool)
	require.NoError(t, err)

	city := insertCity(t, ctx, repo, "Washington", "DC", "United States", "America/New_York")
	venue := insertVenue(t, ctx, repo, "National Gallery of Art", city.ID, "https://www.nga.gov")

	params := newEventParams("Vermeer's Secrets", "exhibition", date(2026, 9, 1))
	params.EndDate = timePtr(date(2026, 12, 15))
	params.VenueID = &venue.ID
	params.CityID = &city.ID
	params.TypeDetails = &events.TypeDetails{Curator: "Jane Smith"}

	created, err := repo.Events().Insert(ctx, params)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Vermeer's Secrets", created.Title)

	got, err := repo.Events().GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ULID, got.ULID)
	assert.True(t, got.StartDate.Equal(date(2026, 9, 1)))
	require.NotNil(t, got.EndDate)
	require.NotNil(t, got.TypeDetails)
	assert.Equal(t, "Jane Smith", got.TypeDetails.Curator)

	_, err = repo.Events().GetByID(ctx, created.ID+999)
	assert.ErrorIs(t, err, events.ErrNotFound)

	byULID, err := repo.Events().GetByULID(ctx, created.ULID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byULID.ID)
}

func TestEventFindByURL(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)
	repo, err := NewRepository(pool)
	require.NoError(t, err)

	city := insertCity(t, ctx, repo, "Washington", "DC", "United States", "America/New_York")
	start := date(2026, 9, 10)

	params := newEventParams("Highlights Tour", "tour", start)
	params.URL = "https://www.nga.gov/tours/highlights"
	params.CityID = &city.ID
	created, err := repo.Events().Insert(ctx, params)
	require.NoError(t, err)

	// Either trailing-slash spelling matches.
	match, err := repo.Events().FindByURL(ctx, events.URLMatch{
		URL:       "https://www.nga.gov/tours/highlights/",
		AltURL:    "https://www.nga.gov/tours/highlights",
		EventType: "tour",
		CityID:    &city.ID,
		StartDate: start,
	})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, created.ID, match.ID)

	// Different date does not match.
	match, err = repo.Events().FindByURL(ctx, events.URLMatch{
		URL:       params.URL,
		AltURL:    params.URL + "/",
		EventType: "tour",
		CityID:    &city.ID,
		StartDate: date(2026, 9, 11),
	})
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestEventFindExhibitionBySharedWebsite(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)
	repo, err := NewRepository(pool)
	require.NoError(t, err)

	city := insertCity(t, ctx, repo, "Washington", "DC", "United States", "America/New_York")
	east := insertVenue(t, ctx, repo, "NGA East Building", city.ID, "https://www.nga.gov")
	insertVenue(t, ctx, repo, "NGA West Building", city.ID, "https://www.nga.gov")

	start := date(2026, 10, 1)
	params := newEventParams("Impressionist Light", "exhibition", start)
	params.VenueID = &east.ID
	params.CityID = &city.ID
	created, err := repo.Events().Insert(ctx, params)
	require.NoError(t, err)

	// The same exhibition scraped under the sibling venue record matches
	// through the shared website.
	match, err := repo.Events().FindExhibitionBySharedWebsite(ctx, events.SharedWebsiteMatch{
		Title:     "Impressionist Light",
		Website:   "https://www.nga.gov",
		CityID:    &city.ID,
		StartDate: start,
	})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, created.ID, match.ID)
}

func TestEventFindByTitleStrategies(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)
	repo, err := NewRepository(pool)
	require.NoError(t, err)

	city := insertCity(t, ctx, repo, "Washington", "DC", "United States", "America/New_York")
	venue := insertVenue(t, ctx, repo, "Hirshhorn", city.ID, "https://hirshhorn.si.edu")
	start := date(2026, 9, 5)

	withVenue := newEventParams("Sculpture Talk", "talk", start)
	withVenue.VenueID = &venue.ID
	withVenue.CityID = &city.ID
	createdVenue, err := repo.Events().Insert(ctx, withVenue)
	require.NoError(t, err)

	venueless := newEventParams("City Photowalk", "photowalk", start)
	venueless.CityID = &city.ID
	createdCity, err := repo.Events().Insert(ctx, venueless)
	require.NoError(t, err)

	match, err := repo.Events().FindByTitleVenueDate(ctx, events.TitleVenueMatch{
		Title:     "Sculpture Talk",
		VenueID:   venue.ID,
		CityID:    &city.ID,
		StartDate: start,
	})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, createdVenue.ID, match.ID)

	match, err = repo.Events().FindByTitleCityDate(ctx, events.TitleCityMatch{
		Title:     "City Photowalk",
		CityID:    city.ID,
		StartDate: start,
	})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, createdCity.ID, match.ID)

	// Titles are compared exactly.
	match, err = repo.Events().FindByTitleCityDate(ctx, events.TitleCityMatch{
		Title:     "city photowalk",
		CityID:    city.ID,
		StartDate: start,
	})
	require.NoError(t, err)
	assert.Nil(t, match)

	// The city-wide fallback only considers venue-less rows: an event
	// pinned to a venue never absorbs a venue-less candidate.
	match, err = repo.Events().FindByTitleCityDate(ctx, events.TitleCityMatch{
		Title:     "Sculpture Talk",
		CityID:    city.ID,
		StartDate: start,
	})
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestEventFindTieBreaksOnLowestID(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)
	repo, err := NewRepository(pool)
	require.NoError(t, err)

	city := insertCity(t, ctx, repo, "Washington", "DC", "United States", "America/New_York")
	start := date(2026, 9, 20)

	first := newEventParams("Evening Meditation", "meditation", start)
	first.CityID = &city.ID
	createdFirst, err := repo.Events().Insert(ctx, first)
	require.NoError(t, err)

	second := newEventParams("Evening Meditation", "meditation", start)
	second.CityID = &city.ID
	_, err = repo.Events().Insert(ctx, second)
	require.NoError(t, err)

	match, err := repo.Events().FindByTitleCityDate(ctx, events.TitleCityMatch{
		Title:     "Evening Meditation",
		CityID:    city.ID,
		StartDate: start,
	})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, createdFirst.ID, match.ID)
}

func TestEventUpdate(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)
	repo, err := NewRepository(pool)
	require.NoError(t, err)

	city := insertCity(t, ctx, repo, "Washington", "DC", "United States", "America/New_York")
	params := newEventParams("Jazz in the Garden", "music", date(2026, 7, 10))
	params.CityID = &city.ID
	created, err := repo.Events().Insert(ctx, params)
	require.NoError(t, err)

	err = repo.Events().Update(ctx, created.ID, events.UpdateParams{
		Description: strPtr("Free summer concert series."),
		StartTime:   strPtr("17:00"),
		EndTime:     strPtr("20:30"),
	})
	require.NoError(t, err)

	got, err := repo.Events().GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Free summer concert series.", got.Description)
	require.NotNil(t, got.StartTime)
	assert.Equal(t, "17:00", *got.StartTime)
	// Untouched fields keep their values.
	assert.Equal(t, "Jazz in the Garden", got.Title)

	err = repo.Events().Update(ctx, created.ID+999, events.UpdateParams{Description: strPtr("x")})
	assert.ErrorIs(t, err, events.ErrNotFound)
}

func TestEventListExhibitionOverlap(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)
	repo, err := NewRepository(pool)
	require.NoError(t, err)

	city := insertCity(t, ctx, repo, "Washington", "DC", "United States", "America/New_York")

	running := newEventParams("Long Running Show", "exhibition", date(2026, 1, 1))
	running.EndDate = timePtr(date(2026, 12, 31))
	running.CityID = &city.ID
	_, err = repo.Events().Insert(ctx, running)
	require.NoError(t, err)

	past := newEventParams("Closed Show", "exhibition", date(2025, 1, 1))
	past.EndDate = timePtr(date(2025, 6, 1))
	past.CityID = &city.ID
	_, err = repo.Events().Insert(ctx, past)
	require.NoError(t, err)

	talk := newEventParams("One Day Talk", "talk", date(2026, 6, 15))
	talk.CityID = &city.ID
	_, err = repo.Events().Insert(ctx, talk)
	require.NoError(t, err)

	window := events.Filters{
		CityID: &city.ID,
		Start:  timePtr(date(2026, 6, 10)),
		End:    timePtr(date(2026, 6, 20)),
	}
	listed, err := repo.Events().List(ctx, window)
	require.NoError(t, err)

	titles := make([]string, 0, len(listed))
	for _, e := range listed {
		titles = append(titles, e.Title)
	}
	// The in-window talk matches by start date; the running exhibition by
	// interval overlap; the closed one not at all.
	assert.ElementsMatch(t, []string{"Long Running Show", "One Day Talk"}, titles)
}

func TestEventDeletePast(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)
	repo, err := NewRepository(pool)
	require.NoError(t, err)

	city := insertCity(t, ctx, repo, "Washington", "DC", "United States", "America/New_York")
	today := date(2026, 8, 25)

	past := newEventParams("Old Concert", "music", date(2026, 8, 1))
	past.CityID = &city.ID
	_, err = repo.Events().Insert(ctx, past)
	require.NoError(t, err)

	permanent := newEventParams("Permanent Collection", "exhibition", date(2020, 1, 1))
	permanent.IsPermanent = true
	permanent.CityID = &city.ID
	_, err = repo.Events().Insert(ctx, permanent)
	require.NoError(t, err)

	upcoming := newEventParams("Fall Festival", "festival", date(2026, 10, 1))
	upcoming.CityID = &city.ID
	_, err = repo.Events().Insert(ctx, upcoming)
	require.NoError(t, err)

	deleted, err := repo.Events().DeletePast(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := repo.Events().List(ctx, events.Filters{CityID: &city.ID})
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)
	repo, err := NewRepository(pool)
	require.NoError(t, err)

	city := insertCity(t, ctx, repo, "Washington", "DC", "United States", "America/New_York")

	boom := errors.New("boom")
	err = repo.WithTx(ctx, func(ctx context.Context, txRepo storage.Repository) error {
		params := newEventParams("Doomed Event", "event", date(2026, 9, 1))
		params.CityID = &city.ID
		if _, err := txRepo.Events().Insert(ctx, params); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	listed, err := repo.Events().List(ctx, events.Filters{CityID: &city.ID})
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestListByVenueTitles(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)
	repo, err := NewRepository(pool)
	require.NoError(t, err)

	city := insertCity(t, ctx, repo, "Washington", "DC", "United States", "America/New_York")
	venue := insertVenue(t, ctx, repo, "Phillips Collection", city.ID, "https://www.phillipscollection.org")

	for _, title := range []string{"Rothko Room", "Sunday Concert"} {
		params := newEventParams(title, "event", date(2026, 9, 1))
		params.VenueID = &venue.ID
		params.CityID = &city.ID
		_, err := repo.Events().Insert(ctx, params)
		require.NoError(t, err)
	}

	listed, err := repo.Events().ListByVenueTitles(ctx, venue.ID, []string{"Rothko Room"})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "Rothko Room", listed[0].Title)

	listed, err = repo.Events().ListByVenueTitles(ctx, venue.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, listed)
}
