package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/citylore/server/internal/api/problem"
	"github.com/citylore/server/internal/dispatch"
	"github.com/citylore/server/internal/domain/cities"
	"github.com/citylore/server/internal/domain/events"
	"github.com/citylore/server/internal/domain/venues"
	"github.com/citylore/server/internal/scraper"
	"github.com/citylore/server/internal/storage"
	"github.com/citylore/server/internal/timeparse"
)

// ScrapeRunner is the dispatcher port. The handler owns the stream; the
// runner owns its lifecycle and closes it when the run ends.
type ScrapeRunner interface {
	Run(ctx context.Context, req dispatch.Request, stream *dispatch.Stream) error
}

type ScrapeHandler struct {
	runner ScrapeRunner
	store  storage.Repository
	proxy  *ImageProxy
	env    string
}

func NewScrapeHandler(runner ScrapeRunner, store storage.Repository, proxy *ImageProxy, env string) *ScrapeHandler {
	return &ScrapeHandler{runner: runner, store: store, proxy: proxy, env: env}
}

type scrapeRequest struct {
	CityID          *int64  `json:"city_id"`
	EventType       string  `json:"event_type"`
	TimeRange       string  `json:"time_range"`
	VenueIDs        []int64 `json:"venue_ids"`
	SourceIDs       []int64 `json:"source_ids"`
	CustomStartDate string  `json:"custom_start_date"`
	CustomEndDate   string  `json:"custom_end_date"`

	MaxExhibitionsPerVenue int `json:"max_exhibitions_per_venue"`
	MaxEventsPerVenue      int `json:"max_events_per_venue"`
}

func (h *ScrapeHandler) dispatchRequest(w http.ResponseWriter, r *http.Request) (dispatch.Request, bool) {
	var req scrapeRequest
	if !decodeJSON(w, r, h.env, &req) {
		return dispatch.Request{}, false
	}
	out := dispatch.Request{
		CityID:         req.CityID,
		EventType:      req.EventType,
		TimeRange:      req.TimeRange,
		VenueIDs:       req.VenueIDs,
		SourceIDs:      req.SourceIDs,
		MaxExhibitions: req.MaxExhibitionsPerVenue,
		MaxEvents:      req.MaxEventsPerVenue,
	}
	if req.CustomStartDate != "" {
		d, err := timeparse.ParseDate(req.CustomStartDate)
		if err != nil {
			problem.Write(w, r, http.StatusBadRequest, TypeValidationError, "Invalid custom_start_date", err, h.env)
			return dispatch.Request{}, false
		}
		out.CustomStart = &d
	}
	if req.CustomEndDate != "" {
		d, err := timeparse.ParseDate(req.CustomEndDate)
		if err != nil {
			problem.Write(w, r, http.StatusBadRequest, TypeValidationError, "Invalid custom_end_date", err, h.env)
			return dispatch.Request{}, false
		}
		out.CustomEnd = &d
	}
	if out.TimeRange == "" {
		out.TimeRange = scraper.RangeAll
	}
	return out, true
}

type scrapeResponse struct {
	EventsAdded   int         `json:"events_added"`
	EventsUpdated int         `json:"events_updated"`
	EventsSkipped int         `json:"events_skipped"`
	ErrorCount    int         `json:"error_count"`
	TotalEvents   int         `json:"total_events"`
	Summary       string      `json:"summary"`
	Errors        []string    `json:"errors,omitempty"`
	Events        []EventView `json:"events"`
}

// Run handles POST /api/scrape: the dispatcher runs to completion and the
// collected stream is returned as one JSON document.
func (h *ScrapeHandler) Run(w http.ResponseWriter, r *http.Request) {
	req, ok := h.dispatchRequest(w, r)
	if !ok {
		return
	}

	stream := dispatch.NewStream()
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.runner.Run(r.Context(), req, stream)
	}()

	resolve := newNameResolver(h.store)
	var resp scrapeResponse
	for rec := range stream.Records() {
		switch rec.Kind {
		case dispatch.KindEvent:
			if rec.Event != nil {
				venue, city := resolve.lookup(r.Context(), rec.Event)
				resp.Events = append(resp.Events, NewEventView(*rec.Event, venue, city, h.proxy))
			}
		case dispatch.KindError:
			resp.Errors = append(resp.Errors, rec.Message)
		case dispatch.KindComplete:
			resp.EventsAdded = rec.Outcome.Created
			resp.EventsUpdated = rec.Outcome.Updated
			resp.EventsSkipped = rec.Outcome.Skipped
			resp.ErrorCount = rec.ErrorCount
			resp.TotalEvents = rec.TotalEvents
			resp.Summary = rec.Message
		}
	}

	if err := <-errCh; err != nil {
		if errors.Is(err, dispatch.ErrInvalidRequest) {
			problem.Write(w, r, http.StatusBadRequest, TypeValidationError, "Invalid scrape request", err, h.env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Scrape run failed", err, h.env)
		return
	}
	if resp.Events == nil {
		resp.Events = []EventView{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// SSE payloads, one shape per record kind.
type sseProgress struct {
	Percentage int    `json:"percentage"`
	Message    string `json:"message"`
	VenueName  string `json:"venue_name,omitempty"`
	SourceName string `json:"source_name,omitempty"`
}

type sseEvent struct {
	Event EventView `json:"event"`
}

type sseError struct {
	Message string `json:"message"`
}

type sseComplete struct {
	TotalEvents int    `json:"total_events"`
	Message     string `json:"message"`
}

// RunStream handles POST /api/scrape-stream: the progress channel becomes
// a server-sent event stream. A client disconnect cancels the run through
// the request context.
func (h *ScrapeHandler) RunStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.dispatchRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Streaming unsupported",
			fmt.Errorf("response writer does not support flushing"), h.env)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	stream := dispatch.NewStream()
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.runner.Run(r.Context(), req, stream)
	}()

	resolve := newNameResolver(h.store)
	for rec := range stream.Records() {
		var payload any
		switch rec.Kind {
		case dispatch.KindProgress:
			payload = sseProgress{
				Percentage: rec.Percentage,
				Message:    rec.Message,
				VenueName:  rec.VenueName,
				SourceName: rec.SourceName,
			}
		case dispatch.KindEvent:
			if rec.Event == nil {
				continue
			}
			venue, city := resolve.lookup(r.Context(), rec.Event)
			payload = sseEvent{Event: NewEventView(*rec.Event, venue, city, h.proxy)}
		case dispatch.KindError:
			payload = sseError{Message: rec.Message}
		case dispatch.KindComplete:
			payload = sseComplete{TotalEvents: rec.TotalEvents, Message: rec.Message}
		default:
			continue
		}
		writeSSE(w, string(rec.Kind), payload)
		flusher.Flush()
	}

	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		writeSSE(w, string(dispatch.KindError), sseError{Message: err.Error()})
		flusher.Flush()
	}
}

func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// nameResolver caches venue and city rows while serializing stream events,
// so a long run does one lookup per distinct id.
type nameResolver struct {
	store  storage.Repository
	venues map[int64]*venues.Venue
	cities map[int64]*cities.City
}

func newNameResolver(store storage.Repository) *nameResolver {
	return &nameResolver{
		store:  store,
		venues: map[int64]*venues.Venue{},
		cities: map[int64]*cities.City{},
	}
}

func (n *nameResolver) lookup(ctx context.Context, ev *events.Event) (*venues.Venue, *cities.City) {
	var venue *venues.Venue
	if ev.VenueID != nil {
		if v, ok := n.venues[*ev.VenueID]; ok {
			venue = v
		} else {
			v, err := n.store.Venues().GetByID(ctx, *ev.VenueID)
			if err != nil {
				v = nil
			}
			n.venues[*ev.VenueID] = v
			venue = v
		}
	}
	var city *cities.City
	if ev.CityID != nil {
		if c, ok := n.cities[*ev.CityID]; ok {
			city = c
		} else {
			c, err := n.store.Cities().GetByID(ctx, *ev.CityID)
			if err != nil {
				c = nil
			}
			n.cities[*ev.CityID] = c
			city = c
		}
	}
	return venue, city
}
