package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citylore/server/internal/locations"
)

func TestGeocodeCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)
	repo, err := NewRepository(pool)
	require.NoError(t, err)
	cache := repo.GeocodeCache()

	miss, err := cache.Get(ctx, "washington, dc", "")
	require.NoError(t, err)
	assert.Nil(t, miss)

	entry := locations.CachedLookup{
		QueryNormalized: "washington, dc",
		Latitude:        38.8951,
		Longitude:       -77.0364,
		DisplayName:     "Washington, District of Columbia, United States",
		City:            "Washington",
		State:           "District of Columbia",
		Country:         "United States",
		RawResponse:     []byte(`{"place_id":1}`),
		Source:          "nominatim",
	}
	require.NoError(t, cache.Put(ctx, entry))

	hit, err := cache.Get(ctx, "washington, dc", "")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.InDelta(t, 38.8951, hit.Latitude, 0.0001)
	assert.Equal(t, "Washington", hit.City)

	// Upsert replaces coordinates for the same key.
	entry.Latitude = 38.9
	require.NoError(t, cache.Put(ctx, entry))
	hit, err = cache.Get(ctx, "washington, dc", "")
	require.NoError(t, err)
	assert.InDelta(t, 38.9, hit.Latitude, 0.0001)

	require.NoError(t, cache.IncrementHitCount(ctx, hit.ID))
	hit, err = cache.Get(ctx, "washington, dc", "")
	require.NoError(t, err)
	assert.Equal(t, 1, hit.HitCount)
}

func TestGeocodeFailureTracking(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)
	repo, err := NewRepository(pool)
	require.NoError(t, err)
	cache := repo.GeocodeCache()

	none, err := cache.RecentFailure(ctx, "atlantis", "")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, cache.RecordFailure(ctx, "atlantis", "", "no results"))
	require.NoError(t, cache.RecordFailure(ctx, "atlantis", "", "no results"))

	failure, err := cache.RecentFailure(ctx, "atlantis", "")
	require.NoError(t, err)
	require.NotNil(t, failure)
	assert.Equal(t, "no results", failure.FailureReason)
}
