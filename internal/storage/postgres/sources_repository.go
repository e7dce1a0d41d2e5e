package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citylore/server/internal/domain/sources"
)

type SourceRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ sources.Repository = (*SourceRepository)(nil)

func (r *SourceRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

const sourceColumns = `id, ulid, name, handle, source_type, url,
       covers_multiple_cities, covered_cities, event_types, is_active,
       reliability_score, posting_frequency, last_checked, last_event_found,
       events_found_count, city_id, created_at, updated_at`

func scanSource(row pgx.Row) (*sources.Source, error) {
	var s sources.Source
	err := row.Scan(
		&s.ID, &s.ULID, &s.Name, &s.Handle, &s.Type, &s.URL,
		&s.CoversMultipleCities, &s.CoveredCities, &s.EventTypes, &s.IsActive,
		&s.ReliabilityScore, &s.PostingFrequency, &s.LastChecked,
		&s.LastEventFound, &s.EventsFoundCount, &s.CityID,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SourceRepository) GetByID(ctx context.Context, id int64) (*sources.Source, error) {
	source, err := scanSource(r.queryer().QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sources.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return source, nil
}

func (r *SourceRepository) GetByIDs(ctx context.Context, ids []int64) ([]sources.Source, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.queryer().Query(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = ANY($1) ORDER BY id ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("get sources by ids: %w", err)
	}
	defer rows.Close()
	return collectSources(rows)
}

// List returns sources for a city, including multi-city sources that cover
// other locales.
func (r *SourceRepository) List(ctx context.Context, cityID *int64) ([]sources.Source, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT `+sourceColumns+`
  FROM sources
 WHERE ($1::bigint IS NULL OR city_id = $1 OR covers_multiple_cities)
 ORDER BY name ASC
`, cityID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()
	return collectSources(rows)
}

func (r *SourceRepository) Insert(ctx context.Context, params sources.CreateParams) (*sources.Source, error) {
	source, err := scanSource(r.queryer().QueryRow(ctx, `
INSERT INTO sources (
    ulid, name, handle, source_type, url, covers_multiple_cities,
    covered_cities, event_types, is_active, reliability_score,
    posting_frequency, city_id
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (lower(name), source_type) DO UPDATE SET
    url = EXCLUDED.url,
    handle = EXCLUDED.handle,
    is_active = EXCLUDED.is_active,
    updated_at = NOW()
RETURNING `+sourceColumns,
		params.ULID, params.Name, params.Handle, params.Type, params.URL,
		params.CoversMultipleCities, params.CoveredCities, params.EventTypes,
		params.IsActive, params.ReliabilityScore, params.PostingFrequency,
		params.CityID))
	if err != nil {
		return nil, fmt.Errorf("insert source: %w", err)
	}
	return source, nil
}

func (r *SourceRepository) Update(ctx context.Context, id int64, params sources.UpdateParams) error {
	var eventTypes any
	if params.EventTypes != nil {
		eventTypes = params.EventTypes
	}
	tag, err := r.queryer().Exec(ctx, `
UPDATE sources
   SET name = COALESCE($2, name),
       handle = COALESCE($3, handle),
       source_type = COALESCE($4, source_type),
       url = COALESCE($5, url),
       event_types = COALESCE($6, event_types),
       is_active = COALESCE($7, is_active),
       reliability_score = COALESCE($8, reliability_score),
       posting_frequency = COALESCE($9, posting_frequency),
       updated_at = NOW()
 WHERE id = $1
`, id, params.Name, params.Handle, params.Type, params.URL, eventTypes,
		params.IsActive, params.ReliabilityScore, params.PostingFrequency)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sources.ErrNotFound
	}
	return nil
}

func (r *SourceRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sources.ErrNotFound
	}
	return nil
}

// RecordCheck updates the advisory bookkeeping after a scrape touched the
// source.
func (r *SourceRepository) RecordCheck(ctx context.Context, id int64, result sources.CheckResult) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE sources
   SET last_checked = $2,
       last_event_found = CASE WHEN $3 > 0 THEN $2 ELSE last_event_found END,
       events_found_count = events_found_count + $3,
       updated_at = NOW()
 WHERE id = $1
`, id, result.CheckedAt, result.EventsFound)
	if err != nil {
		return fmt.Errorf("record source check: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sources.ErrNotFound
	}
	return nil
}

func collectSources(rows pgx.Rows) ([]sources.Source, error) {
	var items []sources.Source
	for rows.Next() {
		var s sources.Source
		if err := rows.Scan(
			&s.ID, &s.ULID, &s.Name, &s.Handle, &s.Type, &s.URL,
			&s.CoversMultipleCities, &s.CoveredCities, &s.EventTypes,
			&s.IsActive, &s.ReliabilityScore, &s.PostingFrequency,
			&s.LastChecked, &s.LastEventFound, &s.EventsFoundCount,
			&s.CityID, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return items, nil
}
