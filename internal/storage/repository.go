// Package storage defines the aggregate data-access port. Concrete
// implementations live in subpackages (postgres).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/citylore/server/internal/domain/cities"
	"github.com/citylore/server/internal/domain/events"
	"github.com/citylore/server/internal/domain/sources"
	"github.com/citylore/server/internal/domain/venues"
	"github.com/citylore/server/internal/locations"
)

// Repository groups data access by domain. WithTx runs fn against a
// repository bound to one transaction; any error rolls the whole
// transaction back.
type Repository interface {
	Cities() cities.Repository
	Venues() venues.Repository
	Events() events.Repository
	Sources() sources.Repository
	ScrapeRuns() ScrapeRunRepository
	GeocodeCache() locations.CacheRepository
	Visits() VisitRepository
	Admins() AdminRepository

	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}

// ScrapeRun is the bookkeeping row for one dispatcher invocation.
type ScrapeRun struct {
	ID              int64
	RequestID       string
	CityID          *int64
	EventType       string
	TimeRange       string
	Status          string // running, completed, failed
	VenuesRequested int
	SourcesRequested int
	EventsAdded     int
	EventsUpdated   int
	EventsSkipped   int
	ErrorCount      int
	Summary         string
	StartedAt       time.Time
	FinishedAt      *time.Time
}

// ScrapeRun statuses.
const (
	ScrapeRunRunning   = "running"
	ScrapeRunCompleted = "completed"
	ScrapeRunFailed    = "failed"
)

// ScrapeRunOutcome closes out a run.
type ScrapeRunOutcome struct {
	Status        string
	EventsAdded   int
	EventsUpdated int
	EventsSkipped int
	ErrorCount    int
	Summary       string
	FinishedAt    time.Time
}

type ScrapeRunRepository interface {
	Start(ctx context.Context, run ScrapeRun) (int64, error)
	Finish(ctx context.Context, id int64, outcome ScrapeRunOutcome) error
	ListRecent(ctx context.Context, limit int) ([]ScrapeRun, error)
}

// Visit is an analytics row. Inserts are fire-and-forget; a lost visit is
// acceptable.
type Visit struct {
	Path        string
	Referrer    string
	UserAgent   string
	VisitorHash string
	CityID      *int64
	OccurredAt  time.Time
}

type VisitRepository interface {
	Insert(ctx context.Context, visit Visit) error
	CountSince(ctx context.Context, since time.Time) (int64, error)
}

// ErrAdminNotFound is returned by AdminRepository lookups.
var ErrAdminNotFound = errors.New("admin not found")

// Admin is a credentialed operator of the mutation endpoints.
type Admin struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

type AdminRepository interface {
	GetByUsername(ctx context.Context, username string) (*Admin, error)
	Create(ctx context.Context, username, passwordHash string) (*Admin, error)
	Count(ctx context.Context) (int64, error)
}
