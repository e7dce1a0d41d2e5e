// Package cities holds the City record. Cities are created lazily during
// ingestion when a scraper reports a new locale, and mutated only through
// admin paths.
package cities

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("city not found")
	// ErrDuplicate means (name, state, country) already exists under
	// case-insensitive compare.
	ErrDuplicate = errors.New("duplicate city")
)

// City is a canonical locale. Timezone is always a valid IANA zone; the
// location resolver falls back to UTC (flagged) rather than storing an
// invalid zone.
type City struct {
	ID       int64
	ULID     string
	Name     string
	State    string
	Country  string
	Timezone string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Location returns the city's IANA zone, defaulting to UTC when the stored
// zone fails to load (should not happen; guards old rows).
func (c City) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type CreateParams struct {
	ULID     string
	Name     string
	State    string
	Country  string
	Timezone string
}

type UpdateParams struct {
	Name     *string
	State    *string
	Country  *string
	Timezone *string
}

// Repository is the storage port for cities. FindByName is the lazy-create
// probe used during ingestion; it matches case-insensitively.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*City, error)
	GetByULID(ctx context.Context, ulid string) (*City, error)
	List(ctx context.Context) ([]City, error)
	FindByName(ctx context.Context, name, state, country string) (*City, error)
	Insert(ctx context.Context, params CreateParams) (*City, error)
	Update(ctx context.Context, id int64, params UpdateParams) error
	Delete(ctx context.Context, id int64) error
}
