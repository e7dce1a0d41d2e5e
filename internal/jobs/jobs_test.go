package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citylore/server/internal/domain/events"
	"github.com/citylore/server/internal/domain/venues"
	"github.com/citylore/server/internal/locations"
)

type fakeEventsRepo struct {
	events.Repository

	deletedBefore time.Time
	deleteCount   int64
	err           error
}

func (f *fakeEventsRepo) DeletePast(ctx context.Context, today time.Time) (int64, error) {
	f.deletedBefore = today
	return f.deleteCount, f.err
}

func TestSweepPastEventsWorker(t *testing.T) {
	repo := &fakeEventsRepo{deleteCount: 3}
	worker := NewSweepPastEventsWorker(repo, zerolog.Nop()).
		WithClock(func() time.Time { return time.Date(2026, 1, 15, 14, 30, 0, 0, time.UTC) })

	err := worker.Work(context.Background(), &river.Job[SweepPastEventsArgs]{})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), repo.deletedBefore)
}

func TestSweepPastEventsWorkerError(t *testing.T) {
	repo := &fakeEventsRepo{err: errors.New("deadlock")}
	worker := NewSweepPastEventsWorker(repo, zerolog.Nop())

	err := worker.Work(context.Background(), &river.Job[SweepPastEventsArgs]{})
	assert.ErrorContains(t, err, "deadlock")
}

type fakeVenuesRepo struct {
	venues.Repository

	venue  *venues.Venue
	getErr error

	setID       int64
	setLat      float64
	setLon      float64
	setCalled   bool
	setCoordErr error
}

func (f *fakeVenuesRepo) GetByID(ctx context.Context, id int64) (*venues.Venue, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.venue, nil
}

func (f *fakeVenuesRepo) SetCoordinates(ctx context.Context, id int64, lat, lon float64) error {
	f.setCalled = true
	f.setID, f.setLat, f.setLon = id, lat, lon
	return f.setCoordErr
}

type fakeGeocoder struct {
	lat, lon float64
	err      error
	calls    int
}

func (f *fakeGeocoder) GeocodeVenue(ctx context.Context, parts ...string) (float64, float64, error) {
	f.calls++
	return f.lat, f.lon, f.err
}

func geocodeJob(venueID int64) *river.Job[GeocodeVenueArgs] {
	return &river.Job[GeocodeVenueArgs]{Args: GeocodeVenueArgs{VenueID: venueID}}
}

func TestGeocodeVenueWorker(t *testing.T) {
	repo := &fakeVenuesRepo{venue: &venues.Venue{ID: 42, Name: "NGA", Address: "6th and Constitution Ave NW"}}
	geo := &fakeGeocoder{lat: 38.8913, lon: -77.0199}
	worker := NewGeocodeVenueWorker(repo, geo, zerolog.Nop())

	require.NoError(t, worker.Work(context.Background(), geocodeJob(42)))
	assert.True(t, repo.setCalled)
	assert.Equal(t, int64(42), repo.setID)
	assert.InDelta(t, 38.8913, repo.setLat, 1e-9)
	assert.InDelta(t, -77.0199, repo.setLon, 1e-9)
}

func TestGeocodeVenueWorkerSkipsResolved(t *testing.T) {
	lat, lon := 38.9, -77.0
	repo := &fakeVenuesRepo{venue: &venues.Venue{ID: 7, Lat: &lat, Lon: &lon, Address: "somewhere"}}
	geo := &fakeGeocoder{}
	worker := NewGeocodeVenueWorker(repo, geo, zerolog.Nop())

	require.NoError(t, worker.Work(context.Background(), geocodeJob(7)))
	assert.Zero(t, geo.calls)
	assert.False(t, repo.setCalled)
}

func TestGeocodeVenueWorkerMissingVenue(t *testing.T) {
	repo := &fakeVenuesRepo{getErr: venues.ErrNotFound}
	worker := NewGeocodeVenueWorker(repo, &fakeGeocoder{}, zerolog.Nop())

	// Venue deleted after enqueue is not an error.
	require.NoError(t, worker.Work(context.Background(), geocodeJob(9)))
}

func TestGeocodeVenueWorkerUnknownAddressCancels(t *testing.T) {
	repo := &fakeVenuesRepo{venue: &venues.Venue{ID: 3, Address: "nowhere at all"}}
	geo := &fakeGeocoder{err: fmt.Errorf("wrapped: %w", locations.ErrGeocodingUnknown)}
	worker := NewGeocodeVenueWorker(repo, geo, zerolog.Nop())

	err := worker.Work(context.Background(), geocodeJob(3))
	require.Error(t, err)
	// JobCancel wraps the cause so River stops retrying without losing it.
	assert.ErrorIs(t, err, locations.ErrGeocodingUnknown)
}

func TestGeocodeVenueWorkerTransientRetries(t *testing.T) {
	repo := &fakeVenuesRepo{venue: &venues.Venue{ID: 3, Address: "1600 Pennsylvania Ave"}}
	geo := &fakeGeocoder{err: fmt.Errorf("wrapped: %w", locations.ErrGeocodingTransient)}
	worker := NewGeocodeVenueWorker(repo, geo, zerolog.Nop())

	err := worker.Work(context.Background(), geocodeJob(3))
	require.Error(t, err)
	assert.ErrorIs(t, err, locations.ErrGeocodingTransient)
}

func TestRetryPolicyBackoff(t *testing.T) {
	policy := NewRetryPolicy()
	attempted := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	first := policy.NextRetry(&rivertype.JobRow{Kind: JobKindGeocodeVenue, Attempt: 1, AttemptedAt: &attempted})
	second := policy.NextRetry(&rivertype.JobRow{Kind: JobKindGeocodeVenue, Attempt: 2, AttemptedAt: &attempted})
	assert.Equal(t, attempted.Add(1*time.Minute), first)
	assert.Equal(t, attempted.Add(2*time.Minute), second)
}

func TestInsertOptsForKind(t *testing.T) {
	assert.Equal(t, GeocodingMaxAttempts, InsertOptsForKind(JobKindGeocodeVenue).MaxAttempts)
	assert.Equal(t, SweepMaxAttempts, InsertOptsForKind("unknown").MaxAttempts)
}

func TestGeocodeVenueArgsQueue(t *testing.T) {
	assert.Equal(t, QueueGeocoding, GeocodeVenueArgs{}.InsertOpts().Queue)
}

func TestNewPeriodicJobs(t *testing.T) {
	jobs := NewPeriodicJobs()
	require.Len(t, jobs, 1)
	require.NotNil(t, jobs[0])
}

func TestAlertingErrorHandlerNotifiesOnFinalAttempt(t *testing.T) {
	var notified []string
	handler := NewAlertingErrorHandler(zerolog.Nop(), func(ctx context.Context, job *rivertype.JobRow, err error) {
		notified = append(notified, job.Kind)
	})

	handler.HandleError(context.Background(), &rivertype.JobRow{Kind: "a", Attempt: 1, MaxAttempts: 3}, errors.New("boom"))
	assert.Empty(t, notified)

	handler.HandleError(context.Background(), &rivertype.JobRow{Kind: "a", Attempt: 3, MaxAttempts: 3}, errors.New("boom"))
	assert.Equal(t, []string{"a"}, notified)

	handler.HandlePanic(context.Background(), &rivertype.JobRow{Kind: "b", Attempt: 1, MaxAttempts: 3}, "oops", "trace")
	assert.Equal(t, []string{"a", "b"}, notified)
}
