package events

import (
	"context"
	"strings"
)

// MatchStrategy identifies which dedup strategy fired for a candidate.
type MatchStrategy string

const (
	MatchNone          MatchStrategy = ""
	MatchURL           MatchStrategy = "url"
	MatchSharedWebsite MatchStrategy = "shared_website"
	MatchTitleVenue    MatchStrategy = "title_venue_date"
	MatchTitleCity     MatchStrategy = "title_city_date"
)

// urlMatchTypes are the event types eligible for the URL strategy. Their
// pages are per-occurrence, so a URL is a reliable identity; exhibition and
// festival pages tend to be shared across dates.
var urlMatchTypes = map[string]bool{
	TypeTour:     true,
	TypeTalk:     true,
	TypeWorkshop: true,
}

// DuplicateIndex finds the existing event a candidate should merge into.
// Strategies run in precedence order; the first hit wins. The repository is
// expected to tie-break equal matches on lowest id.
type DuplicateIndex struct {
	repo Repository
}

func NewDuplicateIndex(repo Repository) *DuplicateIndex {
	return &DuplicateIndex{repo: repo}
}

// FindExisting probes the match strategies for c in precedence order.
// Returns (nil, MatchNone, nil) when the candidate is new. Title
// comparisons are case-sensitive: titles are authoritative after
// normalization.
func (d *DuplicateIndex) FindExisting(ctx context.Context, c Candidate) (*Event, MatchStrategy, error) {
	// 1. URL match, for types whose URL identifies a single occurrence.
	if c.URL != "" && urlMatchTypes[c.EventType] {
		match, err := d.repo.FindByURL(ctx, URLMatch{
			URL:       c.URL,
			AltURL:    trailingSlashVariant(c.URL),
			EventType: c.EventType,
			CityID:    c.CityID,
			StartDate: c.StartDate,
		})
		if err != nil {
			return nil, MatchNone, err
		}
		if match != nil {
			return match, MatchURL, nil
		}
	}

	// 2. Exhibition by shared website: coalesces duplicate venue records.
	if c.EventType == TypeExhibition && c.VenueWebsite != "" {
		match, err := d.repo.FindExhibitionBySharedWebsite(ctx, SharedWebsiteMatch{
			Title:     c.Title,
			Website:   c.VenueWebsite,
			CityID:    c.CityID,
			StartDate: c.StartDate,
		})
		if err != nil {
			return nil, MatchNone, err
		}
		if match != nil {
			return match, MatchSharedWebsite, nil
		}
	}

	// 3. Title + venue + date.
	if c.VenueID != nil {
		match, err := d.repo.FindByTitleVenueDate(ctx, TitleVenueMatch{
			Title:     c.Title,
			VenueID:   *c.VenueID,
			CityID:    c.CityID,
			StartDate: c.StartDate,
		})
		if err != nil {
			return nil, MatchNone, err
		}
		if match != nil {
			return match, MatchTitleVenue, nil
		}
	}

	// 4. City-only fallback for venue-less events.
	if c.VenueID == nil && c.CityID != nil {
		match, err := d.repo.FindByTitleCityDate(ctx, TitleCityMatch{
			Title:     c.Title,
			CityID:    *c.CityID,
			StartDate: c.StartDate,
		})
		if err != nil {
			return nil, MatchNone, err
		}
		if match != nil {
			return match, MatchTitleCity, nil
		}
	}

	return nil, MatchNone, nil
}

// trailingSlashVariant returns the other spelling of url: with the trailing
// slash if absent, without it if present.
func trailingSlashVariant(url string) string {
	if strings.HasSuffix(url, "/") {
		return strings.TrimSuffix(url, "/")
	}
	return url + "/"
}
