// Package events holds the central Event record, the duplicate index, the
// per-venue quota governor, and the merge/persist engine that together turn
// scraper candidates into stored rows.
package events

import "time"

// Event types form a closed set. Scrapers that report historical vocabulary
// ("lecture", "program", "concert") go through MapEventType first.
const (
	TypeEvent       = "event" // generic; more specific candidates may upgrade it
	TypeTour        = "tour"
	TypeExhibition  = "exhibition"
	TypeFestival    = "festival"
	TypePhotowalk   = "photowalk"
	TypeFilm        = "film"
	TypeMusic       = "music"
	TypePerformance = "performance"
	TypeTalk        = "talk"
	TypeWorkshop    = "workshop"
	TypeMeditation  = "meditation"
)

var knownTypes = map[string]bool{
	TypeEvent: true, TypeTour: true, TypeExhibition: true, TypeFestival: true,
	TypePhotowalk: true, TypeFilm: true, TypeMusic: true, TypePerformance: true,
	TypeTalk: true, TypeWorkshop: true, TypeMeditation: true,
}

// legacyTypes maps retired vocabulary onto the closed set.
var legacyTypes = map[string]string{
	"lecture":     TypeTalk,
	"program":     TypeEvent,
	"concert":     TypeMusic,
	"screening":   TypeFilm,
	"class":       TypeWorkshop,
	"musicevent":  TypeMusic,
	"theaterevent": TypePerformance,
	"comedyevent": TypePerformance,
	"visualartsevent": TypeExhibition,
	"exhibitionevent": TypeExhibition,
	"screeningevent":  TypeFilm,
	"educationevent":  TypeWorkshop,
}

// MapEventType normalizes a scraped type string onto the closed set,
// falling back to the generic "event".
func MapEventType(raw string) string {
	t := normalizeTypeToken(raw)
	if knownTypes[t] {
		return t
	}
	if mapped, ok := legacyTypes[t]; ok {
		return mapped
	}
	return TypeEvent
}

// ValidType reports whether t is one of the closed event types.
func ValidType(t string) bool {
	return knownTypes[t]
}

// Event is the system-of-record for a single event.
type Event struct {
	ID        int64
	ULID      string
	Title     string
	EventType string

	StartDate time.Time  // bare calendar date
	EndDate   *time.Time // nil for single-day events
	StartTime *string    // floating "HH:MM", nil for all-day
	EndTime   *string

	Description   string
	URL           string
	ImageURL      string
	StartLocation string
	EndLocation   string

	RegistrationRequired bool
	RegistrationURL      string

	IsOnline       bool
	IsBabyFriendly bool
	IsPermanent    bool
	Language       string

	VenueID *int64
	CityID  *int64

	SourceName string
	SourceURL  string

	// TypeDetails carries the type-specific extension payload (tour meeting
	// point, film runtime, exhibition curator, ...). Stored as JSONB.
	TypeDetails *TypeDetails

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TypeDetails is the per-type extension struct. Only the fields relevant to
// the event's type are populated; the rest stay zero and are omitted on the
// wire.
type TypeDetails struct {
	// tour
	MeetingPoint string `json:"meeting_point,omitempty"`
	TourGuide    string `json:"tour_guide,omitempty"`
	// exhibition
	Curator   string `json:"curator,omitempty"`
	Gallery   string `json:"gallery,omitempty"`
	Admission string `json:"admission,omitempty"`
	// festival / photowalk
	Route string `json:"route,omitempty"`
	// film
	Director       string `json:"director,omitempty"`
	RuntimeMinutes int    `json:"runtime_minutes,omitempty"`
	// music / performance / talk / workshop
	Performer  string `json:"performer,omitempty"`
	Speaker    string `json:"speaker,omitempty"`
	Instructor string `json:"instructor,omitempty"`
}

// Candidate is a tentative event emitted by an extractor. It is ephemeral:
// the merge engine either folds it into an existing Event or inserts a new
// one, and the candidate itself is never stored.
type Candidate struct {
	Title     string
	EventType string

	StartDate time.Time
	EndDate   *time.Time
	StartTime *string
	EndTime   *string

	Description   string
	URL           string
	ImageURL      string
	StartLocation string
	EndLocation   string

	RegistrationRequired *bool
	RegistrationURL      string

	IsOnline    *bool
	IsPermanent bool
	Language    string

	VenueID *int64
	CityID  *int64

	// VenueWebsite is carried for the exhibition shared-website dedup
	// strategy and the quota governor's website union.
	VenueWebsite string

	SourceName string
	SourceURL  string

	TypeDetails *TypeDetails
}

func normalizeTypeToken(raw string) string {
	out := make([]rune, 0, len(raw))
	for _, r := range raw {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+32)
		case r >= 'a' && r <= 'z':
			out = append(out, r)
		}
	}
	return string(out)
}
