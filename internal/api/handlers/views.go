package handlers

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/citylore/server/internal/domain/cities"
	"github.com/citylore/server/internal/domain/events"
	"github.com/citylore/server/internal/domain/sources"
	"github.com/citylore/server/internal/domain/venues"
	"github.com/citylore/server/internal/imagery"
)

const dateLayout = "2006-01-02"

// blockedImageHosts lists hosts known to refuse hotlinked images. Their
// URLs are rewritten through /api/image-proxy. Process-startup constant.
var blockedImageHosts = []string{
	"si.edu",
	"nga.gov",
	"americanart.si.edu",
	"hirshhorn.si.edu",
}

// ImageProxy rewrites image URLs on hotlink-blocked hosts to the proxy
// endpoint, and gates which hosts the proxy will fetch.
type ImageProxy struct {
	hosts []string
}

func NewImageProxy() *ImageProxy {
	return &ImageProxy{hosts: blockedImageHosts}
}

// Blocked reports whether host belongs to the hotlink blocklist. Matching
// covers the listed domain and its subdomains.
func (p *ImageProxy) Blocked(host string) bool {
	host = strings.ToLower(host)
	for _, h := range p.hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Rewrite returns the proxied form of raw when its host is blocked, and
// raw unchanged otherwise.
func (p *ImageProxy) Rewrite(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || !p.Blocked(u.Hostname()) {
		return raw
	}
	return "/api/image-proxy?url=" + url.QueryEscape(raw)
}

type CityView struct {
	ID        int64     `json:"id"`
	ULID      string    `json:"ulid"`
	Name      string    `json:"name"`
	State     string    `json:"state,omitempty"`
	Country   string    `json:"country"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewCityView(c cities.City) CityView {
	return CityView{
		ID:        c.ID,
		ULID:      c.ULID,
		Name:      c.Name,
		State:     c.State,
		Country:   c.Country,
		Timezone:  c.Timezone,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

type VenueView struct {
	ID           int64             `json:"id"`
	ULID         string            `json:"ulid"`
	Name         string            `json:"name"`
	Type         string            `json:"type,omitempty"`
	Address      string            `json:"address,omitempty"`
	Lat          *float64          `json:"lat,omitempty"`
	Lon          *float64          `json:"lon,omitempty"`
	Website      string            `json:"website,omitempty"`
	TicketingURL string            `json:"ticketing_url,omitempty"`
	SocialURLs   map[string]string `json:"social_urls,omitempty"`
	Hours        string            `json:"hours,omitempty"`
	Contact      string            `json:"contact,omitempty"`
	Description  string            `json:"description,omitempty"`
	CityID       int64             `json:"city_id"`
	MapsLink     string            `json:"maps_link,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func NewVenueView(v venues.Venue) VenueView {
	return VenueView{
		ID:           v.ID,
		ULID:         v.ULID,
		Name:         v.Name,
		Type:         v.Type,
		Address:      v.Address,
		Lat:          v.Lat,
		Lon:          v.Lon,
		Website:      v.Website,
		TicketingURL: v.TicketingURL,
		SocialURLs:   v.SocialURLs,
		Hours:        v.Hours,
		Contact:      v.Contact,
		Description:  v.Description,
		CityID:       v.CityID,
		MapsLink:     mapsLink(&v),
		CreatedAt:    v.CreatedAt,
		UpdatedAt:    v.UpdatedAt,
	}
}

type SourceView struct {
	ID                   int64    `json:"id"`
	ULID                 string   `json:"ulid"`
	Name                 string   `json:"name"`
	Handle               string   `json:"handle,omitempty"`
	Type                 string   `json:"type"`
	URL                  string   `json:"url,omitempty"`
	CoversMultipleCities bool     `json:"covers_multiple_cities"`
	CoveredCities        []string `json:"covered_cities,omitempty"`
	EventTypes           []string `json:"event_types,omitempty"`
	IsActive             bool     `json:"is_active"`
	ReliabilityScore     float64  `json:"reliability_score"`
	PostingFrequency     string   `json:"posting_frequency,omitempty"`
	LastChecked          *time.Time `json:"last_checked,omitempty"`
	EventsFoundCount     int      `json:"events_found_count"`
	CityID               *int64   `json:"city_id,omitempty"`
}

func NewSourceView(s sources.Source) SourceView {
	return SourceView{
		ID:                   s.ID,
		ULID:                 s.ULID,
		Name:                 s.Name,
		Handle:               s.Handle,
		Type:                 s.Type,
		URL:                  s.URL,
		CoversMultipleCities: s.CoversMultipleCities,
		CoveredCities:        s.CoveredCities,
		EventTypes:           s.EventTypes,
		IsActive:             s.IsActive,
		ReliabilityScore:     s.ReliabilityScore,
		PostingFrequency:     s.PostingFrequency,
		LastChecked:          s.LastChecked,
		EventsFoundCount:     s.EventsFoundCount,
		CityID:               s.CityID,
	}
}

type EventView struct {
	ID        int64  `json:"id"`
	ULID      string `json:"ulid"`
	Title     string `json:"title"`
	EventType string `json:"event_type"`

	StartDate string  `json:"start_date"`
	EndDate   *string `json:"end_date,omitempty"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`

	Description   string `json:"description,omitempty"`
	URL           string `json:"url,omitempty"`
	ImageURL      string `json:"image_url,omitempty"`
	StartLocation string `json:"start_location,omitempty"`
	EndLocation   string `json:"end_location,omitempty"`

	RegistrationRequired bool   `json:"registration_required"`
	RegistrationURL      string `json:"registration_url,omitempty"`

	IsOnline       bool   `json:"is_online"`
	IsBabyFriendly bool   `json:"is_baby_friendly"`
	IsPermanent    bool   `json:"is_permanent"`
	Language       string `json:"language,omitempty"`

	VenueID *int64 `json:"venue_id,omitempty"`
	CityID  *int64 `json:"city_id,omitempty"`

	SourceName string `json:"source_name,omitempty"`
	SourceURL  string `json:"source_url,omitempty"`

	TypeDetails *events.TypeDetails `json:"type_details,omitempty"`

	VenueName    string `json:"venue_name,omitempty"`
	CityName     string `json:"city_name,omitempty"`
	CityTimezone string `json:"city_timezone,omitempty"`
	MapsLink     string `json:"maps_link,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEventView serializes an event with its derived venue/city fields.
// venue and city may be nil when the event carries no reference.
func NewEventView(ev events.Event, venue *venues.Venue, city *cities.City, proxy *ImageProxy) EventView {
	view := EventView{
		ID:                   ev.ID,
		ULID:                 ev.ULID,
		Title:                ev.Title,
		EventType:            ev.EventType,
		StartDate:            ev.StartDate.Format(dateLayout),
		StartTime:            ev.StartTime,
		EndTime:              ev.EndTime,
		Description:          ev.Description,
		URL:                  ev.URL,
		ImageURL:             ev.ImageURL,
		StartLocation:        ev.StartLocation,
		EndLocation:          ev.EndLocation,
		RegistrationRequired: ev.RegistrationRequired,
		RegistrationURL:      ev.RegistrationURL,
		IsOnline:             ev.IsOnline,
		IsBabyFriendly:       ev.IsBabyFriendly,
		IsPermanent:          ev.IsPermanent,
		Language:             ev.Language,
		VenueID:              ev.VenueID,
		CityID:               ev.CityID,
		SourceName:           ev.SourceName,
		SourceURL:            ev.SourceURL,
		TypeDetails:          ev.TypeDetails,
		CreatedAt:            ev.CreatedAt,
		UpdatedAt:            ev.UpdatedAt,
	}
	if ev.EndDate != nil {
		end := ev.EndDate.Format(dateLayout)
		view.EndDate = &end
	}
	if proxy != nil {
		view.ImageURL = proxy.Rewrite(ev.ImageURL)
	}
	if venue != nil {
		view.VenueName = venue.Name
		view.MapsLink = mapsLink(venue)
	}
	if city != nil {
		view.CityName = city.Name
		view.CityTimezone = city.Timezone
	}
	return view
}

// CandidateEventView is the serialized form of an image extraction: the
// candidate fields plus the extraction metadata the admin surface shows.
type CandidateEventView struct {
	Title     string  `json:"title"`
	EventType string  `json:"event_type,omitempty"`
	StartDate string  `json:"start_date,omitempty"`
	EndDate   string  `json:"end_date,omitempty"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`

	Description   string `json:"description,omitempty"`
	URL           string `json:"url,omitempty"`
	ImageURL      string `json:"image_url,omitempty"`
	StartLocation string `json:"start_location,omitempty"`

	RegistrationRequired *bool  `json:"registration_required,omitempty"`
	RegistrationURL      string `json:"registration_url,omitempty"`
	IsOnline             *bool  `json:"is_online,omitempty"`

	VenueID *int64 `json:"venue_id,omitempty"`
	CityID  *int64 `json:"city_id,omitempty"`

	SourceName string `json:"source_name,omitempty"`
	SourceURL  string `json:"source_url,omitempty"`

	ImagePath    string `json:"image_path,omitempty"`
	OCRText      string `json:"ocr_text,omitempty"`
	MatchedVenue string `json:"matched_venue,omitempty"`
}

func NewCandidateEventView(ex *imagery.Extraction) CandidateEventView {
	view := NewCandidateViewFromCandidate(ex.Candidate)
	view.ImagePath = ex.ImagePath
	view.OCRText = ex.OCRText
	view.MatchedVenue = ex.MatchedVenue
	return view
}

// NewCandidateViewFromCandidate serializes a bare candidate, for
// endpoints that surface unpersisted occurrences.
func NewCandidateViewFromCandidate(c events.Candidate) CandidateEventView {
	view := CandidateEventView{
		Title:                c.Title,
		EventType:            c.EventType,
		StartTime:            c.StartTime,
		EndTime:              c.EndTime,
		Description:          c.Description,
		URL:                  c.URL,
		ImageURL:             c.ImageURL,
		StartLocation:        c.StartLocation,
		RegistrationRequired: c.RegistrationRequired,
		RegistrationURL:      c.RegistrationURL,
		IsOnline:             c.IsOnline,
		VenueID:              c.VenueID,
		CityID:               c.CityID,
		SourceName:           c.SourceName,
		SourceURL:            c.SourceURL,
	}
	if !c.StartDate.IsZero() {
		view.StartDate = c.StartDate.Format(dateLayout)
	}
	if c.EndDate != nil {
		view.EndDate = c.EndDate.Format(dateLayout)
	}
	return view
}

// mapsLink builds a Google Maps URL from coordinates when present, falling
// back to a name+address search.
func mapsLink(v *venues.Venue) string {
	if v == nil {
		return ""
	}
	if v.Lat != nil && v.Lon != nil {
		return fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%.6f%%2C%.6f", *v.Lat, *v.Lon)
	}
	query := strings.TrimSpace(v.Name + " " + v.Address)
	if query == "" {
		return ""
	}
	return "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape(query)
}
