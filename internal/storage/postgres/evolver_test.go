package postgres

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvolverAddsMissingColumns(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	// Simulate an old deployment that predates baby-friendly detection and
	// type extension payloads.
	_, err := pool.Exec(ctx, `ALTER TABLE events DROP COLUMN is_baby_friendly`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `ALTER TABLE events DROP COLUMN type_details`)
	require.NoError(t, err)

	evolver := NewEvolver(pool, zerolog.Nop())
	report := evolver.Evolve(ctx)
	assert.Empty(t, report.Errors)
	assert.ElementsMatch(t, []string{"events.is_baby_friendly", "events.type_details"}, report.Added)

	// Second pass is a no-op.
	report = evolver.Evolve(ctx)
	assert.Empty(t, report.Errors)
	assert.Empty(t, report.Added)

	// The added boolean defaults to false on existing rows.
	repo, err := NewRepository(pool)
	require.NoError(t, err)
	city := insertCity(t, ctx, repo, "Washington", "DC", "United States", "America/New_York")
	params := newEventParams("After Evolution", "event", date(2026, 9, 1))
	params.CityID = &city.ID
	created, err := repo.Events().Insert(ctx, params)
	require.NoError(t, err)
	assert.False(t, created.IsBabyFriendly)
}

func TestEvolverSkipsMissingTables(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	_, err := pool.Exec(ctx, `DROP TABLE IF EXISTS sources CASCADE`)
	require.NoError(t, err)

	evolver := NewEvolver(pool, zerolog.Nop())
	report := evolver.Evolve(ctx)
	assert.Empty(t, report.Errors)
	for _, added := range report.Added {
		assert.NotContains(t, added, "sources.")
	}

	// Restore the table for later tests sharing the container.
	_, err = pool.Exec(ctx, `
CREATE TABLE sources (
    id                     BIGSERIAL PRIMARY KEY,
    ulid                   CHAR(26) NOT NULL UNIQUE,
    name                   TEXT NOT NULL,
    handle                 TEXT NOT NULL DEFAULT '',
    source_type            TEXT NOT NULL DEFAULT 'website',
    url                    TEXT NOT NULL DEFAULT '',
    covers_multiple_cities BOOLEAN NOT NULL DEFAULT FALSE,
    covered_cities         TEXT[] NOT NULL DEFAULT '{}',
    event_types            TEXT[] NOT NULL DEFAULT '{}',
    is_active              BOOLEAN NOT NULL DEFAULT TRUE,
    reliability_score      DOUBLE PRECISION NOT NULL DEFAULT 0,
    posting_frequency      TEXT NOT NULL DEFAULT '',
    last_checked           TIMESTAMPTZ,
    last_event_found       TIMESTAMPTZ,
    events_found_count     INTEGER NOT NULL DEFAULT 0,
    city_id                BIGINT REFERENCES cities(id) ON DELETE SET NULL,
    created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX sources_name_type_idx ON sources (lower(name), source_type);
CREATE INDEX sources_city_idx ON sources (city_id);
`)
	require.NoError(t, err)
}
