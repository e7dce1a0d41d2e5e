package scraper

import (
	"fmt"

	"github.com/citylore/server/internal/domain/events"
	"github.com/citylore/server/internal/domain/venues"
	"github.com/citylore/server/internal/normalize"
	"github.com/citylore/server/internal/timeparse"
)

// Origin annotates candidates with where they were extracted from.
type Origin struct {
	VenueID    *int64
	CityID     *int64
	Venue      *venues.Venue
	SourceName string
	SourceURL  string
}

// OriginForVenue builds the standard website origin for a venue scrape.
func OriginForVenue(v *venues.Venue) Origin {
	return Origin{
		VenueID:    &v.ID,
		CityID:     &v.CityID,
		Venue:      v,
		SourceName: "website",
		SourceURL:  v.Website,
	}
}

// BuildCandidate normalizes one raw extraction into a merge-ready
// candidate. An error means the raw event is unusable (no title or no
// parseable start date).
func BuildCandidate(raw RawEvent, origin Origin) (events.Candidate, error) {
	title := normalize.CleanText(raw.Title)
	if title == "" {
		return events.Candidate{}, fmt.Errorf("raw event has no title")
	}

	c := events.Candidate{
		Title:       title,
		EventType:   events.MapEventType(raw.EventType),
		Description: normalize.CleanText(raw.Description),
		URL:         normalize.CleanURL(raw.URL),
		ImageURL:    normalize.CleanURL(raw.ImageURL),
		VenueID:     origin.VenueID,
		CityID:      origin.CityID,
		SourceName:  origin.SourceName,
		SourceURL:   origin.SourceURL,
	}
	c.StartLocation = normalize.CleanText(raw.Location)
	if origin.Venue != nil {
		c.VenueWebsite = origin.Venue.Website
	}

	if raw.EndDate != "" {
		start, err := timeparse.ParseDate(raw.StartDate)
		if err != nil {
			return events.Candidate{}, fmt.Errorf("parsing start date %q: %w", raw.StartDate, err)
		}
		c.StartDate = start
		if end, err := timeparse.ParseDate(raw.EndDate); err == nil && !end.Before(start) {
			c.EndDate = &end
		}
	} else {
		start, end, err := timeparse.ParseDateRange(raw.StartDate)
		if err != nil {
			return events.Candidate{}, fmt.Errorf("parsing date %q: %w", raw.StartDate, err)
		}
		c.StartDate = start
		c.EndDate = end
	}

	if raw.StartTime != "" {
		if hm, err := timeparse.ParseTime(raw.StartTime); err == nil {
			c.StartTime = &hm
		}
	}
	if raw.EndTime != "" {
		if hm, err := timeparse.ParseTime(raw.EndTime); err == nil {
			c.EndTime = &hm
		}
	}

	if raw.IsOnline {
		online := true
		c.IsOnline = &online
	}
	if raw.RegistrationURL != "" {
		required := true
		c.RegistrationRequired = &required
		c.RegistrationURL = normalize.CleanURL(raw.RegistrationURL)
	}

	return c, nil
}

// BuildCandidates converts a batch of raw events, dropping unusable ones
// and anything outside the window. Order is preserved.
func BuildCandidates(raws []RawEvent, origin Origin, window Window) []events.Candidate {
	out := make([]events.Candidate, 0, len(raws))
	for _, raw := range raws {
		c, err := BuildCandidate(raw, origin)
		if err != nil {
			continue
		}
		if !window.Contains(c.EventType, c.StartDate, c.EndDate) {
			continue
		}
		out = append(out, c)
	}
	return out
}
