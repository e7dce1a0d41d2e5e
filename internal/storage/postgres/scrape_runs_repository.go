package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citylore/server/internal/storage"
)

type ScrapeRunRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ storage.ScrapeRunRepository = (*ScrapeRunRepository)(nil)

func (r *ScrapeRunRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *ScrapeRunRepository) Start(ctx context.Context, run storage.ScrapeRun) (int64, error) {
	var id int64
	err := r.queryer().QueryRow(ctx, `
INSERT INTO scrape_runs (
    request_id, city_id, event_type, time_range, status,
    venues_requested, sources_requested, started_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id
`, run.RequestID, run.CityID, run.EventType, run.TimeRange,
		storage.ScrapeRunRunning, run.VenuesRequested, run.SourcesRequested,
		run.StartedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("start scrape run: %w", err)
	}
	return id, nil
}

func (r *ScrapeRunRepository) Finish(ctx context.Context, id int64, outcome storage.ScrapeRunOutcome) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE scrape_runs
   SET status = $2,
       events_added = $3,
       events_updated = $4,
       events_skipped = $5,
       error_count = $6,
       summary = $7,
       finished_at = $8
 WHERE id = $1
`, id, outcome.Status, outcome.EventsAdded, outcome.EventsUpdated,
		outcome.EventsSkipped, outcome.ErrorCount, outcome.Summary,
		outcome.FinishedAt)
	if err != nil {
		return fmt.Errorf("finish scrape run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish scrape run: run %d not found", id)
	}
	return nil
}

func (r *ScrapeRunRepository) ListRecent(ctx context.Context, limit int) ([]storage.ScrapeRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.queryer().Query(ctx, `
SELECT id, request_id, city_id, event_type, time_range, status,
       venues_requested, sources_requested, events_added, events_updated,
       events_skipped, error_count, summary, started_at, finished_at
  FROM scrape_runs
 ORDER BY started_at DESC
 LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scrape runs: %w", err)
	}
	defer rows.Close()

	var items []storage.ScrapeRun
	for rows.Next() {
		var run storage.ScrapeRun
		if err := rows.Scan(
			&run.ID, &run.RequestID, &run.CityID, &run.EventType,
			&run.TimeRange, &run.Status, &run.VenuesRequested,
			&run.SourcesRequested, &run.EventsAdded, &run.EventsUpdated,
			&run.EventsSkipped, &run.ErrorCount, &run.Summary,
			&run.StartedAt, &run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan scrape run: %w", err)
		}
		items = append(items, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scrape runs: %w", err)
	}
	return items, nil
}
