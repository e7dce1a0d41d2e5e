package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/riverqueue/river"
	"github.com/rs/zerolog"

	"github.com/citylore/server/internal/domain/venues"
	"github.com/citylore/server/internal/locations"
)

// GeocodeVenueArgs asks for a venue's coordinates to be resolved from
// its address. Enqueued when a venue is created or updated without
// lat/lon.
type GeocodeVenueArgs struct {
	VenueID int64 `json:"venue_id"`
}

func (GeocodeVenueArgs) Kind() string { return JobKindGeocodeVenue }

// InsertOpts pins geocoding work to its single-worker queue.
func (GeocodeVenueArgs) InsertOpts() river.InsertOpts {
	opts := InsertOptsForKind(JobKindGeocodeVenue)
	opts.Queue = QueueGeocoding
	return opts
}

// VenueGeocoder is the slice of the location resolver this job needs.
type VenueGeocoder interface {
	GeocodeVenue(ctx context.Context, parts ...string) (lat, lon float64, err error)
}

// GeocodeVenueWorker fills in missing venue coordinates. An unknown
// address is terminal; a transient backend failure is retried by River.
type GeocodeVenueWorker struct {
	river.WorkerDefaults[GeocodeVenueArgs]

	venues   venues.Repository
	geocoder VenueGeocoder
	logger   zerolog.Logger
}

func NewGeocodeVenueWorker(repo venues.Repository, geocoder VenueGeocoder, logger zerolog.Logger) *GeocodeVenueWorker {
	return &GeocodeVenueWorker{
		venues:   repo,
		geocoder: geocoder,
		logger:   logger.With().Str("job", JobKindGeocodeVenue).Logger(),
	}
}

func (w *GeocodeVenueWorker) Work(ctx context.Context, job *river.Job[GeocodeVenueArgs]) error {
	venue, err := w.venues.GetByID(ctx, job.Args.VenueID)
	if err != nil {
		if errors.Is(err, venues.ErrNotFound) {
			// Deleted since the job was queued; nothing to do.
			return nil
		}
		return fmt.Errorf("load venue %d: %w", job.Args.VenueID, err)
	}
	if venue.Lat != nil && venue.Lon != nil {
		return nil
	}
	if venue.Address == "" {
		w.logger.Debug().Int64("venue_id", venue.ID).Msg("venue has no address; skipping geocode")
		return nil
	}

	lat, lon, err := w.geocoder.GeocodeVenue(ctx, venue.Address, venue.Name)
	if err != nil {
		if errors.Is(err, locations.ErrGeocodingUnknown) {
			w.logger.Warn().Int64("venue_id", venue.ID).Str("address", venue.Address).
				Msg("address could not be geocoded")
			return river.JobCancel(err)
		}
		return fmt.Errorf("geocode venue %d: %w", venue.ID, err)
	}

	if err := w.venues.SetCoordinates(ctx, venue.ID, lat, lon); err != nil {
		return fmt.Errorf("store venue %d coordinates: %w", venue.ID, err)
	}
	w.logger.Info().Int64("venue_id", venue.ID).Float64("lat", lat).Float64("lon", lon).
		Msg("venue geocoded")
	return nil
}
