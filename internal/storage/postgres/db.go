// Package postgres implements the storage ports on PostgreSQL via pgx.
// Every repository carries both a pool and an optional transaction; inside
// WithTx all queries run on the transaction.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citylore/server/internal/domain/cities"
	"github.com/citylore/server/internal/domain/events"
	"github.com/citylore/server/internal/domain/sources"
	"github.com/citylore/server/internal/domain/venues"
	"github.com/citylore/server/internal/locations"
	"github.com/citylore/server/internal/storage"
)

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Repository implements storage.Repository on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewRepository(pool *pgxpool.Pool) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres repository: pool is nil")
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Cities() cities.Repository {
	return &CityRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Venues() venues.Repository {
	return &VenueRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Events() events.Repository {
	return &EventRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Sources() sources.Repository {
	return &SourceRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) ScrapeRuns() storage.ScrapeRunRepository {
	return &ScrapeRunRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) GeocodeCache() locations.CacheRepository {
	return &GeocodeCacheRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Visits() storage.VisitRepository {
	return &VisitRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Admins() storage.AdminRepository {
	return &AdminRepository{pool: r.pool, tx: r.tx}
}

// WithTx runs fn against a transaction-bound repository. Nested calls
// reuse the outer transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, storage.Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	wrapped := &Repository{pool: r.pool, tx: tx}
	if err := fn(ctx, wrapped); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// EventStore adapts Repository to the events.Store port the merge engine
// consumes.
type EventStore struct {
	repo *Repository
}

func NewEventStore(repo *Repository) *EventStore {
	return &EventStore{repo: repo}
}

func (s *EventStore) WithTx(ctx context.Context, fn func(context.Context, events.Repository) error) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, r storage.Repository) error {
		return fn(ctx, r.Events())
	})
}

func (s *EventStore) GetByID(ctx context.Context, id int64) (*events.Event, error) {
	return s.repo.Events().GetByID(ctx, id)
}

func (s *EventStore) GetByULID(ctx context.Context, ulid string) (*events.Event, error) {
	return s.repo.Events().GetByULID(ctx, ulid)
}

func (s *EventStore) List(ctx context.Context, filters events.Filters) ([]events.Event, error) {
	return s.repo.Events().List(ctx, filters)
}

func (s *EventStore) FindByURL(ctx context.Context, match events.URLMatch) (*events.Event, error) {
	return s.repo.Events().FindByURL(ctx, match)
}

func (s *EventStore) FindExhibitionBySharedWebsite(ctx context.Context, match events.SharedWebsiteMatch) (*events.Event, error) {
	return s.repo.Events().FindExhibitionBySharedWebsite(ctx, match)
}

func (s *EventStore) FindByTitleVenueDate(ctx context.Context, match events.TitleVenueMatch) (*events.Event, error) {
	return s.repo.Events().FindByTitleVenueDate(ctx, match)
}

func (s *EventStore) FindByTitleCityDate(ctx context.Context, match events.TitleCityMatch) (*events.Event, error) {
	return s.repo.Events().FindByTitleCityDate(ctx, match)
}

func (s *EventStore) Insert(ctx context.Context, params events.CreateParams) (*events.Event, error) {
	return s.repo.Events().Insert(ctx, params)
}

func (s *EventStore) Update(ctx context.Context, id int64, params events.UpdateParams) error {
	return s.repo.Events().Update(ctx, id, params)
}

func (s *EventStore) Delete(ctx context.Context, id int64) error {
	return s.repo.Events().Delete(ctx, id)
}

func (s *EventStore) ListByVenueTitles(ctx context.Context, venueID int64, titles []string) ([]events.Event, error) {
	return s.repo.Events().ListByVenueTitles(ctx, venueID, titles)
}

func (s *EventStore) DeletePast(ctx context.Context, today time.Time) (int64, error) {
	return s.repo.Events().DeletePast(ctx, today)
}

var _ events.Store = (*EventStore)(nil)
var _ storage.Repository = (*Repository)(nil)
