package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citylore/server/internal/locations"
)

// Cached lookups expire after 30 days, failures after 24 hours.
const (
	geocodeCacheTTL   = 30 * 24 * time.Hour
	geocodeFailureTTL = 24 * time.Hour
)

type GeocodeCacheRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ locations.CacheRepository = (*GeocodeCacheRepository)(nil)

func (r *GeocodeCacheRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *GeocodeCacheRepository) Get(ctx context.Context, queryNormalized, countryCodes string) (*locations.CachedLookup, error) {
	var cached locations.CachedLookup
	err := r.queryer().QueryRow(ctx, `
SELECT id, query_normalized, country_codes, latitude, longitude,
       display_name, city, state, country, raw_response, source,
       hit_count, created_at
  FROM geocode_cache
 WHERE query_normalized = $1
   AND country_codes = $2
   AND (expires_at IS NULL OR expires_at > NOW())
 LIMIT 1
`, queryNormalized, countryCodes).Scan(
		&cached.ID, &cached.QueryNormalized, &cached.CountryCodes,
		&cached.Latitude, &cached.Longitude, &cached.DisplayName,
		&cached.City, &cached.State, &cached.Country, &cached.RawResponse,
		&cached.Source, &cached.HitCount, &cached.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached geocode: %w", err)
	}
	return &cached, nil
}

func (r *GeocodeCacheRepository) Put(ctx context.Context, entry locations.CachedLookup) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO geocode_cache (
    query_normalized, country_codes, latitude, longitude, display_name,
    city, state, country, raw_response, source, hit_count, created_at,
    expires_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, NOW(), $11)
ON CONFLICT (query_normalized, country_codes)
DO UPDATE SET
    latitude = EXCLUDED.latitude,
    longitude = EXCLUDED.longitude,
    display_name = EXCLUDED.display_name,
    city = EXCLUDED.city,
    state = EXCLUDED.state,
    country = EXCLUDED.country,
    raw_response = EXCLUDED.raw_response,
    expires_at = EXCLUDED.expires_at
`, entry.QueryNormalized, entry.CountryCodes, entry.Latitude,
		entry.Longitude, entry.DisplayName, entry.City, entry.State,
		entry.Country, entry.RawResponse, entry.Source,
		time.Now().Add(geocodeCacheTTL))
	if err != nil {
		return fmt.Errorf("cache geocode: %w", err)
	}
	return nil
}

func (r *GeocodeCacheRepository) RecentFailure(ctx context.Context, queryNormalized, countryCodes string) (*locations.CachedFailure, error) {
	var failure locations.CachedFailure
	err := r.queryer().QueryRow(ctx, `
SELECT id, failure_reason, failed_at
  FROM geocode_failures
 WHERE query_normalized = $1
   AND country_codes = $2
   AND expires_at > NOW()
 LIMIT 1
`, queryNormalized, countryCodes).Scan(&failure.ID, &failure.FailureReason, &failure.FailedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get geocode failure: %w", err)
	}
	return &failure, nil
}

func (r *GeocodeCacheRepository) RecordFailure(ctx context.Context, queryNormalized, countryCodes, reason string) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO geocode_failures (
    query_normalized, country_codes, failure_reason, attempt_count,
    failed_at, expires_at
) VALUES ($1, $2, $3, 1, NOW(), $4)
ON CONFLICT (query_normalized, country_codes)
DO UPDATE SET
    failure_reason = EXCLUDED.failure_reason,
    attempt_count = geocode_failures.attempt_count + 1,
    failed_at = NOW(),
    expires_at = EXCLUDED.expires_at
`, queryNormalized, countryCodes, reason, time.Now().Add(geocodeFailureTTL))
	if err != nil {
		return fmt.Errorf("record geocode failure: %w", err)
	}
	return nil
}

func (r *GeocodeCacheRepository) IncrementHitCount(ctx context.Context, id int64) error {
	_, err := r.queryer().Exec(ctx,
		`UPDATE geocode_cache SET hit_count = hit_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment geocode hit count: %w", err)
	}
	return nil
}
