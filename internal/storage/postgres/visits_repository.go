package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citylore/server/internal/storage"
)

type VisitRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ storage.VisitRepository = (*VisitRepository)(nil)

func (r *VisitRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *VisitRepository) Insert(ctx context.Context, visit storage.Visit) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO visits (path, referrer, user_agent, visitor_hash, city_id, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, visit.Path, visit.Referrer, visit.UserAgent, visit.VisitorHash,
		visit.CityID, visit.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

func (r *VisitRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.queryer().QueryRow(ctx,
		`SELECT COUNT(*) FROM visits WHERE occurred_at >= $1`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count visits: %w", err)
	}
	return count, nil
}
