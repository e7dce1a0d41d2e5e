// Package sources tracks external sources of events: venue websites,
// social accounts, aggregator organizers. Events reference a source by URL
// only, so removing a source never touches its historical events.
package sources

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("source not found")

// Source types.
const (
	TypeWebsite    = "website"
	TypeSocial     = "social"
	TypeAggregator = "aggregator"
	TypeNewsletter = "newsletter"
)

type Source struct {
	ID                  int64
	ULID                string
	Name                string
	Handle              string
	Type                string
	URL                 string
	CoversMultipleCities bool
	CoveredCities       []string
	EventTypes          []string
	IsActive            bool

	// Advisory signals; the duplicate index never relies on them.
	ReliabilityScore float64
	PostingFrequency string
	LastChecked      *time.Time
	LastEventFound   *time.Time
	EventsFoundCount int

	CityID *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

type CreateParams struct {
	ULID                 string
	Name                 string
	Handle               string
	Type                 string
	URL                  string
	CoversMultipleCities bool
	CoveredCities        []string
	EventTypes           []string
	IsActive             bool
	ReliabilityScore     float64
	PostingFrequency     string
	CityID               *int64
}

type UpdateParams struct {
	Name             *string
	Handle           *string
	Type             *string
	URL              *string
	EventTypes       []string
	IsActive         *bool
	ReliabilityScore *float64
	PostingFrequency *string
}

// CheckResult updates the advisory bookkeeping after a scrape touched the
// source.
type CheckResult struct {
	CheckedAt   time.Time
	EventsFound int
}

type Repository interface {
	GetByID(ctx context.Context, id int64) (*Source, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Source, error)
	List(ctx context.Context, cityID *int64) ([]Source, error)
	Insert(ctx context.Context, params CreateParams) (*Source, error)
	Update(ctx context.Context, id int64, params UpdateParams) error
	Delete(ctx context.Context, id int64) error
	RecordCheck(ctx context.Context, id int64, result CheckResult) error
}
