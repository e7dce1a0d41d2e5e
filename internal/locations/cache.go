package locations

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"
)

var spaceRun = regexp.MustCompile(`\s+`)

// NormalizeQuery canonicalizes a geocoding query for cache keying:
// lowercase, trimmed, single spaces.
func NormalizeQuery(query string) string {
	return spaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(query)), " ")
}

// CachedLookup is a persisted geocoding result.
type CachedLookup struct {
	ID              int64
	QueryNormalized string
	CountryCodes    string
	Latitude        float64
	Longitude       float64
	DisplayName     string
	City            string
	State           string
	Country         string
	RawResponse     json.RawMessage
	Source          string
	HitCount        int
	CreatedAt       time.Time
}

// CachedFailure records a lookup that the backend could not answer, so we
// stop hammering it for the same query.
type CachedFailure struct {
	ID            int64
	FailureReason string
	FailedAt      time.Time
}

// CacheRepository is the persistent geocoding cache port. Get and
// RecentFailure return (nil, nil) on a miss.
type CacheRepository interface {
	Get(ctx context.Context, queryNormalized, countryCodes string) (*CachedLookup, error)
	Put(ctx context.Context, entry CachedLookup) error
	RecentFailure(ctx context.Context, queryNormalized, countryCodes string) (*CachedFailure, error)
	RecordFailure(ctx context.Context, queryNormalized, countryCodes, reason string) error
	IncrementHitCount(ctx context.Context, id int64) error
}

// memCache is the process-local city cache: read-mostly, single writer
// under the mutex.
type memCache struct {
	mu      sync.RWMutex
	entries map[string]ResolvedCity
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]ResolvedCity)}
}

func cityKey(name, country string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "|" + strings.ToLower(strings.TrimSpace(country))
}

func (c *memCache) get(name, country string) (ResolvedCity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[cityKey(name, country)]
	return entry, ok
}

func (c *memCache) put(name, country string, entry ResolvedCity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cityKey(name, country)] = entry
}
