package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citylore/server/internal/storage"
)

type AdminRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ storage.AdminRepository = (*AdminRepository)(nil)

func (r *AdminRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *AdminRepository) GetByUsername(ctx context.Context, username string) (*storage.Admin, error) {
	var admin storage.Admin
	err := r.queryer().QueryRow(ctx, `
SELECT id, username, password_hash, created_at
  FROM admins
 WHERE lower(username) = lower($1)
`, username).Scan(&admin.ID, &admin.Username, &admin.PasswordHash, &admin.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrAdminNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return &admin, nil
}

func (r *AdminRepository) Create(ctx context.Context, username, passwordHash string) (*storage.Admin, error) {
	var admin storage.Admin
	err := r.queryer().QueryRow(ctx, `
INSERT INTO admins (username, password_hash)
VALUES ($1, $2)
RETURNING id, username, password_hash, created_at
`, username, passwordHash).Scan(&admin.ID, &admin.Username, &admin.PasswordHash, &admin.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	return &admin, nil
}

func (r *AdminRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.queryer().QueryRow(ctx, `SELECT COUNT(*) FROM admins`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return count, nil
}
