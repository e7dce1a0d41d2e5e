// Package locations resolves free-text locality names to canonical city
// records with IANA timezones, and geocodes venue addresses. Lookups go
// through a process-local cache, then the persistent cache, then the
// geocoding backend, then a static country/state timezone table.
package locations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/citylore/server/internal/locations/nominatim"
	"github.com/citylore/server/internal/metrics"
	"github.com/citylore/server/internal/normalize"
)

var (
	// ErrGeocodingTransient means the backend was unreachable; the caller
	// may retry later.
	ErrGeocodingTransient = errors.New("geocoding transient failure")
	// ErrGeocodingUnknown means the locality could not be resolved at all;
	// retrying will not help. The accompanying result carries the UTC
	// fallback.
	ErrGeocodingUnknown = errors.New("geocoding unknown location")
)

// ResolvedCity is the canonical form of a locality.
type ResolvedCity struct {
	Name     string
	State    string
	Country  string
	Timezone string
	Lat      *float64
	Lon      *float64

	// TimezoneFallback is set when no zone could be resolved and UTC was
	// substituted.
	TimezoneFallback bool
	// Source records where the resolution came from: cache, backend,
	// tz_fallback, or utc_fallback.
	Source string
}

// Resolver maps free-text localities and addresses to canonical records.
// Side-effect free given warm caches.
type Resolver struct {
	client *nominatim.Client
	cache  CacheRepository
	cities *memCache
	logger zerolog.Logger
}

// NewResolver creates a resolver. cache may be nil, which disables the
// persistent layer (used in tests).
func NewResolver(client *nominatim.Client, cache CacheRepository, logger zerolog.Logger) *Resolver {
	return &Resolver{
		client: client,
		cache:  cache,
		cities: newMemCache(),
		logger: logger,
	}
}

// ResolveCity resolves a free-text city name with optional state and
// country hints. The result always carries a valid IANA timezone; when
// nothing resolves, the zone is UTC, the fallback flag is set, and
// ErrGeocodingUnknown is returned alongside the result so the caller can
// decide whether to accept it.
func (r *Resolver) ResolveCity(ctx context.Context, name, state, country string) (*ResolvedCity, error) {
	name = normalize.FormatCityName(normalize.CleanText(name))
	state = normalize.CleanText(state)
	country = normalize.FormatCountryName(normalize.CleanText(country))
	if name == "" {
		return nil, errors.New("city name cannot be empty")
	}

	if cached, ok := r.cities.get(name, country); ok {
		metrics.GeocodingRequestsTotal.WithLabelValues("cache").Inc()
		return &cached, nil
	}

	query := name
	if state != "" {
		query += ", " + state
	}
	if country != "" {
		query += ", " + country
	}
	normalized := NormalizeQuery(query)

	if resolved := r.fromPersistentCache(ctx, normalized, name, state, country); resolved != nil {
		r.cities.put(name, country, *resolved)
		metrics.GeocodingRequestsTotal.WithLabelValues("cache").Inc()
		return resolved, nil
	}

	resolved, err := r.fromBackend(ctx, query, normalized, name, state, country)
	if err == nil {
		r.cities.put(name, country, *resolved)
		return resolved, nil
	}
	if errors.Is(err, ErrGeocodingTransient) {
		return nil, err
	}

	// Backend had no answer. Fall back to the static timezone table.
	if tz := lookupTimezone(country, state); tz != "" {
		resolved := &ResolvedCity{
			Name:     name,
			State:    state,
			Country:  country,
			Timezone: tz,
			Source:   "tz_fallback",
		}
		r.cities.put(name, country, *resolved)
		metrics.GeocodingRequestsTotal.WithLabelValues("tz_fallback").Inc()
		return resolved, nil
	}

	metrics.GeocodingRequestsTotal.WithLabelValues("utc_fallback").Inc()
	r.logger.Warn().
		Str("city", name).
		Str("country", country).
		Msg("locality unresolved, defaulting timezone to UTC")
	return &ResolvedCity{
		Name:             name,
		State:            state,
		Country:          country,
		Timezone:         "UTC",
		TimezoneFallback: true,
		Source:           "utc_fallback",
	}, ErrGeocodingUnknown
}

// GeocodeVenue resolves a venue to coordinates. Parts are joined into a
// single query; empty parts are skipped.
func (r *Resolver) GeocodeVenue(ctx context.Context, parts ...string) (lat, lon float64, err error) {
	var nonEmpty []string
	for _, p := range parts {
		if p = normalize.CleanText(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	if len(nonEmpty) == 0 {
		return 0, 0, errors.New("geocode query cannot be empty")
	}
	query := strings.Join(nonEmpty, ", ")
	normalized := NormalizeQuery(query)

	if r.cache != nil {
		cached, cacheErr := r.cache.Get(ctx, normalized, "")
		if cacheErr != nil {
			r.logger.Warn().Err(cacheErr).Str("query", query).Msg("geocoding cache read failed")
		}
		if cached != nil {
			metrics.GeocodingRequestsTotal.WithLabelValues("cache").Inc()
			r.bumpHitCount(cached.ID)
			return cached.Latitude, cached.Longitude, nil
		}
	}

	place, err := r.search(ctx, query, normalized)
	if err != nil {
		return 0, 0, err
	}
	return mustCoords(place)
}

// fromPersistentCache probes the DB cache; nil means miss or disabled.
func (r *Resolver) fromPersistentCache(ctx context.Context, normalized, name, state, country string) *ResolvedCity {
	if r.cache == nil {
		return nil
	}
	cached, err := r.cache.Get(ctx, normalized, "")
	if err != nil {
		r.logger.Warn().Err(err).Str("query", normalized).Msg("geocoding cache read failed")
		return nil
	}
	if cached == nil {
		return nil
	}
	r.bumpHitCount(cached.ID)

	resolved := resolvedFromCached(cached, name, state, country)
	return resolved
}

func (r *Resolver) fromBackend(ctx context.Context, query, normalized, name, state, country string) (*ResolvedCity, error) {
	if r.cache != nil {
		failure, err := r.cache.RecentFailure(ctx, normalized, "")
		if err != nil {
			r.logger.Warn().Err(err).Str("query", query).Msg("geocoding failure cache read failed")
		}
		if failure != nil {
			return nil, fmt.Errorf("%w: %s (cached failure)", ErrGeocodingUnknown, failure.FailureReason)
		}
	}

	place, err := r.search(ctx, query, normalized)
	if err != nil {
		return nil, err
	}

	lat, lon, err := mustCoords(place)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeocodingUnknown, err)
	}

	canonName := name
	canonState := state
	canonCountry := country
	if addr := place.Address; addr != nil {
		if loc := addr.Locality(); loc != "" {
			canonName = normalize.FormatCityName(loc)
		}
		if addr.State != "" {
			canonState = addr.State
		}
		if addr.Country != "" {
			canonCountry = normalize.FormatCountryName(addr.Country)
		}
	}

	resolved := &ResolvedCity{
		Name:    canonName,
		State:   canonState,
		Country: canonCountry,
		Lat:     &lat,
		Lon:     &lon,
		Source:  "backend",
	}
	resolved.Timezone = lookupTimezone(canonCountry, canonState)
	if resolved.Timezone == "" {
		resolved.Timezone = "UTC"
		resolved.TimezoneFallback = true
	}
	metrics.GeocodingRequestsTotal.WithLabelValues("backend").Inc()
	return resolved, nil
}

// search calls the backend once, translating its failure modes into the
// resolver error taxonomy and feeding the persistent cache.
func (r *Resolver) search(ctx context.Context, query, normalized string) (*nominatim.Place, error) {
	start := time.Now()
	results, err := r.client.Search(ctx, query, nominatim.SearchOptions{Limit: 1})
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("query", query).
			Dur("latency", time.Since(start)).
			Msg("geocoding backend failed")
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrGeocodingTransient, err)
	}
	if len(results) == 0 {
		if r.cache != nil {
			if err := r.cache.RecordFailure(ctx, normalized, "", "no results"); err != nil {
				r.logger.Warn().Err(err).Str("query", query).Msg("failed to record geocoding failure")
			}
		}
		return nil, fmt.Errorf("%w: no results for %q", ErrGeocodingUnknown, query)
	}

	place := results[0]
	r.storeResult(ctx, normalized, &place)
	return &place, nil
}

func (r *Resolver) storeResult(ctx context.Context, normalized string, place *nominatim.Place) {
	if r.cache == nil {
		return
	}
	lat, lon, err := mustCoords(place)
	if err != nil {
		return
	}
	raw, _ := json.Marshal(place)
	entry := CachedLookup{
		QueryNormalized: normalized,
		Latitude:        lat,
		Longitude:       lon,
		DisplayName:     place.DisplayName,
		City:            place.Address.Locality(),
		RawResponse:     raw,
		Source:          "nominatim",
		CreatedAt:       time.Now(),
	}
	if addr := place.Address; addr != nil {
		entry.State = addr.State
		entry.Country = addr.Country
	}
	if err := r.cache.Put(ctx, entry); err != nil {
		r.logger.Warn().Err(err).Str("query", normalized).Msg("failed to cache geocoding result")
	}
}

// bumpHitCount is best effort and never blocks the caller.
func (r *Resolver) bumpHitCount(id int64) {
	if r.cache == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.cache.IncrementHitCount(ctx, id); err != nil {
			r.logger.Warn().Err(err).Int64("id", id).Msg("failed to bump geocoding cache hit count")
		}
	}()
}

func resolvedFromCached(cached *CachedLookup, name, state, country string) *ResolvedCity {
	if cached.City != "" {
		name = normalize.FormatCityName(cached.City)
	}
	if cached.State != "" {
		state = cached.State
	}
	if cached.Country != "" {
		country = normalize.FormatCountryName(cached.Country)
	}
	lat, lon := cached.Latitude, cached.Longitude
	resolved := &ResolvedCity{
		Name:    name,
		State:   state,
		Country: country,
		Lat:     &lat,
		Lon:     &lon,
		Source:  "cache",
	}
	resolved.Timezone = lookupTimezone(country, state)
	if resolved.Timezone == "" {
		resolved.Timezone = "UTC"
		resolved.TimezoneFallback = true
	}
	return resolved
}

func mustCoords(place *nominatim.Place) (float64, float64, error) {
	lat, err := strconv.ParseFloat(place.Lat, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude in result: %w", err)
	}
	lon, err := strconv.ParseFloat(place.Lon, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude in result: %w", err)
	}
	return lat, lon, nil
}
