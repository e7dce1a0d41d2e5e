package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citylore/server/internal/domain/cities"
)

type CityRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ cities.Repository = (*CityRepository)(nil)

func (r *CityRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

const cityColumns = `id, ulid, name, state, country, timezone, created_at, updated_at`

func scanCity(row pgx.Row) (*cities.City, error) {
	var c cities.City
	err := row.Scan(&c.ID, &c.ULID, &c.Name, &c.State, &c.Country, &c.Timezone, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CityRepository) GetByID(ctx context.Context, id int64) (*cities.City, error) {
	city, err := scanCity(r.queryer().QueryRow(ctx,
		`SELECT `+cityColumns+` FROM cities WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cities.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get city: %w", err)
	}
	return city, nil
}

func (r *CityRepository) GetByULID(ctx context.Context, ulid string) (*cities.City, error) {
	city, err := scanCity(r.queryer().QueryRow(ctx,
		`SELECT `+cityColumns+` FROM cities WHERE ulid = $1`, ulid))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cities.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get city by ulid: %w", err)
	}
	return city, nil
}

func (r *CityRepository) List(ctx context.Context) ([]cities.City, error) {
	rows, err := r.queryer().Query(ctx,
		`SELECT `+cityColumns+` FROM cities ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	defer rows.Close()

	var items []cities.City
	for rows.Next() {
		var c cities.City
		if err := rows.Scan(&c.ID, &c.ULID, &c.Name, &c.State, &c.Country, &c.Timezone, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cities: %w", err)
	}
	return items, nil
}

// FindByName is the lazy-create probe used during ingestion; (nil, nil)
// means no match. State and country narrow the match only when non-empty.
func (r *CityRepository) FindByName(ctx context.Context, name, state, country string) (*cities.City, error) {
	city, err := scanCity(r.queryer().QueryRow(ctx, `
SELECT `+cityColumns+`
  FROM cities
 WHERE lower(name) = lower($1)
   AND ($2 = '' OR lower(state) = lower($2))
   AND ($3 = '' OR lower(country) = lower($3))
 ORDER BY id ASC
 LIMIT 1
`, name, state, country))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find city by name: %w", err)
	}
	return city, nil
}

func (r *CityRepository) Insert(ctx context.Context, params cities.CreateParams) (*cities.City, error) {
	city, err := scanCity(r.queryer().QueryRow(ctx, `
INSERT INTO cities (ulid, name, state, country, timezone)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+cityColumns,
		params.ULID, params.Name, params.State, params.Country, params.Timezone))
	if isUniqueViolation(err) {
		return nil, cities.ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("insert city: %w", err)
	}
	return city, nil
}

func (r *CityRepository) Update(ctx context.Context, id int64, params cities.UpdateParams) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE cities
   SET name = COALESCE($2, name),
       state = COALESCE($3, state),
       country = COALESCE($4, country),
       timezone = COALESCE($5, timezone),
       updated_at = NOW()
 WHERE id = $1
`, id, params.Name, params.State, params.Country, params.Timezone)
	if isUniqueViolation(err) {
		return cities.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("update city: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cities.ErrNotFound
	}
	return nil
}

func (r *CityRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM cities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete city: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cities.ErrNotFound
	}
	return nil
}
