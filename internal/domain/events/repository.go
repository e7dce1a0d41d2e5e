package events

import (
	"context"
	"time"
)

// URLMatch holds the key for the URL dedup strategy. AltURL is the
// trailing-slash variant of URL so the index can match either form.
type URLMatch struct {
	URL       string
	AltURL    string
	EventType string
	CityID    *int64
	StartDate time.Time
}

// SharedWebsiteMatch coalesces exhibitions that appear under multiple venue
// records sharing a website.
type SharedWebsiteMatch struct {
	Title     string
	Website   string
	CityID    *int64
	StartDate time.Time
}

// TitleVenueMatch is the title+venue+date strategy key.
type TitleVenueMatch struct {
	Title     string
	VenueID   int64
	CityID    *int64
	StartDate time.Time
}

// TitleCityMatch is the venue-less fallback strategy key.
type TitleCityMatch struct {
	Title     string
	CityID    int64
	StartDate time.Time
}

// CreateParams carries everything needed to insert a new event row.
type CreateParams struct {
	ULID                 string
	Title                string
	EventType            string
	StartDate            time.Time
	EndDate              *time.Time
	StartTime            *string
	EndTime              *string
	Description          string
	URL                  string
	ImageURL             string
	StartLocation        string
	EndLocation          string
	RegistrationRequired bool
	RegistrationURL      string
	IsOnline             bool
	IsBabyFriendly       bool
	IsPermanent          bool
	Language             string
	VenueID              *int64
	CityID               *int64
	SourceName           string
	SourceURL            string
	TypeDetails          *TypeDetails
}

// UpdateParams carries only the fields that should change. Nil pointers
// leave the stored value untouched.
type UpdateParams struct {
	Description          *string
	EventType            *string
	URL                  *string
	ImageURL             *string
	StartTime            *string
	EndTime              *string
	EndDate              *time.Time
	StartLocation        *string
	EndLocation          *string
	RegistrationRequired *bool
	RegistrationURL      *string
	IsOnline             *bool
	IsBabyFriendly       *bool
	TypeDetails          *TypeDetails
}

// Filters selects events for the public read endpoints. Start/End form the
// date window already resolved in the city's timezone; exhibitions match by
// interval overlap, everything else by start_date containment.
type Filters struct {
	CityID    *int64
	VenueID   *int64
	EventType string
	Start     *time.Time
	End       *time.Time
}

// Repository is the storage port for events. Find* probes return (nil, nil)
// when nothing matches; Get* lookups return ErrNotFound.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Event, error)
	GetByULID(ctx context.Context, ulid string) (*Event, error)
	List(ctx context.Context, filters Filters) ([]Event, error)

	FindByURL(ctx context.Context, match URLMatch) (*Event, error)
	FindExhibitionBySharedWebsite(ctx context.Context, match SharedWebsiteMatch) (*Event, error)
	FindByTitleVenueDate(ctx context.Context, match TitleVenueMatch) (*Event, error)
	FindByTitleCityDate(ctx context.Context, match TitleCityMatch) (*Event, error)

	Insert(ctx context.Context, params CreateParams) (*Event, error)
	Update(ctx context.Context, id int64, params UpdateParams) error
	Delete(ctx context.Context, id int64) error

	// ListByVenueTitles reads back the persisted rows for a committed batch
	// so the dispatcher can emit them on the progress channel.
	ListByVenueTitles(ctx context.Context, venueID int64, titles []string) ([]Event, error)

	// DeletePast removes non-permanent events whose end date (or start date
	// when end is null) is before today.
	DeletePast(ctx context.Context, today time.Time) (int64, error)
}

// Store is a Repository that can also open transactions. The merge engine
// runs each candidate batch inside one.
type Store interface {
	Repository
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}
