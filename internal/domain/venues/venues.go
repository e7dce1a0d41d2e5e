// Package venues holds the Venue record. A venue belongs to exactly one
// city; deleting a venue cascades to its events.
package venues

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("venue not found")
	// ErrDuplicate means (lower(name), city_id) already exists.
	ErrDuplicate = errors.New("duplicate venue")
)

// closedMarkers flag venues that should be omitted from public listings.
var closedMarkers = []string{
	"permanently closed",
	"closed permanently",
	"closed for good",
	"no longer open",
}

// Venue is a physical location that hosts events.
type Venue struct {
	ID           int64
	ULID         string
	Name         string
	Type         string // museum, gallery, theater, embassy, park, ...
	Address      string
	Lat          *float64
	Lon          *float64
	Website      string
	TicketingURL string
	SocialURLs   map[string]string
	Hours        string
	Contact      string
	Description  string
	CityID       int64

	AdditionalInfo AdditionalInfo

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AdditionalInfo is the free-form structured blob on a venue. EventPaths
// maps an event type (or "events") to the page the site extractor should
// start from instead of guessing heuristic paths.
type AdditionalInfo struct {
	EventPaths map[string]string `json:"event_paths,omitempty"`
	Notes      string            `json:"notes,omitempty"`
}

// IsClosed reports whether the venue's hours or description mark it as
// permanently closed; such venues are hidden from the public API.
func (v Venue) IsClosed() bool {
	haystack := strings.ToLower(v.Hours + " " + v.Description)
	for _, marker := range closedMarkers {
		if strings.Contains(haystack, marker) {
			return true
		}
	}
	return false
}

// EventPath returns the configured listing page for eventType, falling
// back to the generic "events" key. Empty when neither is configured.
func (v Venue) EventPath(eventType string) string {
	if v.AdditionalInfo.EventPaths == nil {
		return ""
	}
	if eventType != "" {
		if p, ok := v.AdditionalInfo.EventPaths[eventType]; ok {
			return p
		}
		// Plural key variant ("exhibitions" for type "exhibition").
		if p, ok := v.AdditionalInfo.EventPaths[eventType+"s"]; ok {
			return p
		}
	}
	return v.AdditionalInfo.EventPaths["events"]
}

type CreateParams struct {
	ULID           string
	Name           string
	Type           string
	Address        string
	Lat            *float64
	Lon            *float64
	Website        string
	TicketingURL   string
	SocialURLs     map[string]string
	Hours          string
	Contact        string
	Description    string
	CityID         int64
	AdditionalInfo AdditionalInfo
}

type UpdateParams struct {
	Name           *string
	Type           *string
	Address        *string
	Lat            *float64
	Lon            *float64
	Website        *string
	TicketingURL   *string
	SocialURLs     map[string]string
	Hours          *string
	Contact        *string
	Description    *string
	AdditionalInfo *AdditionalInfo
}

// Filters selects venues for the public read endpoint.
type Filters struct {
	CityID *int64
	Types  []string
}

// Repository is the storage port for venues.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Venue, error)
	GetByULID(ctx context.Context, ulid string) (*Venue, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Venue, error)
	List(ctx context.Context, filters Filters) ([]Venue, error)
	FindByName(ctx context.Context, name string, cityID int64) (*Venue, error)
	Insert(ctx context.Context, params CreateParams) (*Venue, error)
	Update(ctx context.Context, id int64, params UpdateParams) error
	Delete(ctx context.Context, id int64) error
	// SetCoordinates is used by the geocoding enrichment job.
	SetCoordinates(ctx context.Context, id int64, lat, lon float64) error
}
