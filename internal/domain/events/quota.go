package events

import (
	"fmt"
	"sync"
)

// Default per-venue ceilings for one ingestion batch.
const (
	DefaultMaxExhibitionsPerVenue = 5
	DefaultMaxEventsPerVenue      = 10
)

// QuotaGovernor enforces per-venue ceilings for a single ingestion batch.
// It is request-scoped: the dispatcher creates one per scrape run and
// shares it across the venue workers, so all counter access is locked.
//
// Slots are reserved exactly once, by the merge engine just before an
// insert. Extractors only probe AtCeiling to stop fetching early; updates
// to existing events never consume a slot.
//
// Exhibition counting unions venues that share a website, so duplicate
// venue records for the same institution cannot multiply the ceiling.
type QuotaGovernor struct {
	maxExhibitions int
	maxEvents      int

	mu          sync.Mutex
	exhibitions map[string]int // keyed by website union key
	events      map[int64]int  // keyed by venue id
}

// NewQuotaGovernor builds a governor. Non-positive ceilings fall back to
// the defaults.
func NewQuotaGovernor(maxExhibitions, maxEvents int) *QuotaGovernor {
	if maxExhibitions <= 0 {
		maxExhibitions = DefaultMaxExhibitionsPerVenue
	}
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEventsPerVenue
	}
	return &QuotaGovernor{
		maxExhibitions: maxExhibitions,
		maxEvents:      maxEvents,
		exhibitions:    make(map[string]int),
		events:         make(map[int64]int),
	}
}

// Admit reserves a slot for c, returning ErrQuotaExceeded when the venue
// (or its website union, for exhibitions) is at its ceiling. Candidates
// without a venue are never quota-limited.
func (g *QuotaGovernor) Admit(c Candidate) error {
	if c.VenueID == nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if c.EventType == TypeExhibition {
		key := g.exhibitionKey(c)
		if g.exhibitions[key] >= g.maxExhibitions {
			return fmt.Errorf("%w: exhibitions for %s", ErrQuotaExceeded, key)
		}
		g.exhibitions[key]++
		return nil
	}

	if g.events[*c.VenueID] >= g.maxEvents {
		return fmt.Errorf("%w: events for venue %d", ErrQuotaExceeded, *c.VenueID)
	}
	g.events[*c.VenueID]++
	return nil
}

// AtCeiling reports whether a candidate like c would be refused right
// now, without reserving anything. Extractors use it to stop fetching
// once a venue's slots are spent; only Admit changes the counters.
func (g *QuotaGovernor) AtCeiling(c Candidate) bool {
	if c.VenueID == nil {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if c.EventType == TypeExhibition {
		return g.exhibitions[g.exhibitionKey(c)] >= g.maxExhibitions
	}
	return g.events[*c.VenueID] >= g.maxEvents
}

// exhibitionKey unions venues by website when one is known.
func (g *QuotaGovernor) exhibitionKey(c Candidate) string {
	if c.VenueWebsite != "" {
		return "site:" + c.VenueWebsite
	}
	return fmt.Sprintf("venue:%d", *c.VenueID)
}
