package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/citylore/server/internal/api/problem"
	"github.com/citylore/server/internal/domain/cities"
	"github.com/citylore/server/internal/domain/events"
	"github.com/citylore/server/internal/domain/venues"
	"github.com/citylore/server/internal/ical"
	"github.com/citylore/server/internal/normalize"
	"github.com/citylore/server/internal/sanitize"
	"github.com/citylore/server/internal/scraper"
	"github.com/citylore/server/internal/storage"
	"github.com/citylore/server/internal/timeparse"
)

// Merger is the write path for admin-created events: everything goes
// through the merge engine, never straight to the store.
type Merger interface {
	Process(ctx context.Context, candidates []events.Candidate, quotas *events.QuotaGovernor) events.Outcome
}

type EventsHandler struct {
	store  storage.Repository
	engine Merger
	proxy  *ImageProxy
	env    string
	now    func() time.Time
}

func NewEventsHandler(store storage.Repository, engine Merger, proxy *ImageProxy, env string) *EventsHandler {
	return &EventsHandler{
		store:  store,
		engine: engine,
		proxy:  proxy,
		env:    env,
		now:    time.Now,
	}
}

// List handles GET /api/events. The time_range window is resolved in the
// selected city's timezone; exhibitions match by interval overlap.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filters := events.Filters{
		CityID:    queryInt64(r, "city_id"),
		VenueID:   queryInt64(r, "venue_id"),
		EventType: q.Get("event_type"),
	}
	if filters.EventType != "" && !events.ValidType(filters.EventType) {
		problem.Write(w, r, http.StatusBadRequest, TypeValidationError, "Unknown event type",
			fmt.Errorf("unknown event type %q", filters.EventType), h.env)
		return
	}

	loc := time.UTC
	var city *cities.City
	if filters.CityID != nil {
		c, err := h.store.Cities().GetByID(ctx, *filters.CityID)
		if err != nil {
			if errors.Is(err, cities.ErrNotFound) {
				problem.Write(w, r, http.StatusNotFound, TypeNotFound, "City not found", err, h.env)
				return
			}
			problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Loading city failed", err, h.env)
			return
		}
		city = c
		loc = c.Location()
	}

	var customStart, customEnd *time.Time
	if raw := q.Get("start_date"); raw != "" {
		if d, err := time.Parse(dateLayout, raw); err == nil {
			customStart = &d
		}
	}
	if raw := q.Get("end_date"); raw != "" {
		if d, err := time.Parse(dateLayout, raw); err == nil {
			customEnd = &d
		}
	}

	window, err := scraper.ResolveWindow(q.Get("time_range"), h.now(), loc, customStart, customEnd)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, TypeValidationError, "Invalid time range", err, h.env)
		return
	}
	if !window.All {
		filters.Start = &window.Start
		filters.End = &window.End
	}

	list, err := h.store.Events().List(ctx, filters)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Listing events failed", err, h.env)
		return
	}

	views, err := h.views(ctx, list, city)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Serializing events failed", err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// views serializes events with their venue/city context. knownCity covers
// the common single-city listing; other cities are fetched on demand.
func (h *EventsHandler) views(ctx context.Context, list []events.Event, knownCity *cities.City) ([]EventView, error) {
	venueIDs := make([]int64, 0, len(list))
	seen := map[int64]bool{}
	for _, ev := range list {
		if ev.VenueID != nil && !seen[*ev.VenueID] {
			seen[*ev.VenueID] = true
			venueIDs = append(venueIDs, *ev.VenueID)
		}
	}

	venueByID := map[int64]*venues.Venue{}
	if len(venueIDs) > 0 {
		vs, err := h.store.Venues().GetByIDs(ctx, venueIDs)
		if err != nil {
			return nil, err
		}
		for i := range vs {
			venueByID[vs[i].ID] = &vs[i]
		}
	}

	cityByID := map[int64]*cities.City{}
	if knownCity != nil {
		cityByID[knownCity.ID] = knownCity
	}

	views := make([]EventView, 0, len(list))
	for _, ev := range list {
		var venue *venues.Venue
		if ev.VenueID != nil {
			venue = venueByID[*ev.VenueID]
		}
		var city *cities.City
		if ev.CityID != nil {
			if c, ok := cityByID[*ev.CityID]; ok {
				city = c
			} else if c, err := h.store.Cities().GetByID(ctx, *ev.CityID); err == nil {
				cityByID[*ev.CityID] = c
				city = c
			}
		}
		views = append(views, NewEventView(ev, venue, city, h.proxy))
	}
	return views, nil
}

// lookup resolves the {id} wildcard as a numeric id first, then a ULID.
func (h *EventsHandler) lookup(ctx context.Context, r *http.Request) (*events.Event, error) {
	if id, err := pathID(r); err == nil {
		return h.store.Events().GetByID(ctx, id)
	}
	return h.store.Events().GetByULID(ctx, r.PathValue("id"))
}

// Get handles GET /api/events/{id}.
func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ev, err := h.lookup(ctx, r)
	if err != nil {
		if errors.Is(err, events.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, TypeNotFound, "Event not found", err, h.env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Loading event failed", err, h.env)
		return
	}
	views, err := h.views(ctx, []events.Event{*ev}, nil)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Serializing event failed", err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, views[0])
}

// Calendar handles GET /api/events/{id}/calendar, returning the event as
// a VCALENDAR document.
func (h *EventsHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ev, err := h.lookup(ctx, r)
	if err != nil {
		if errors.Is(err, events.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, TypeNotFound, "Event not found", err, h.env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Loading event failed", err, h.env)
		return
	}

	item := ical.ExportEvent{Event: ev}
	if ev.VenueID != nil {
		if venue, err := h.store.Venues().GetByID(ctx, *ev.VenueID); err == nil {
			item.Venue = venue
		}
	}
	if ev.CityID != nil {
		if city, err := h.store.Cities().GetByID(ctx, *ev.CityID); err == nil {
			item.CityName = city.Name
			item.Timezone = city.Timezone
		}
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "event-"+ev.ULID+".ics"))
	_, _ = w.Write([]byte(ical.Export([]ical.ExportEvent{item})))
}

// eventRequest is the admin create payload, shared by add-event and
// create-event-from-data.
type eventRequest struct {
	Title     string `json:"title" validate:"required"`
	EventType string `json:"event_type"`

	StartDate string  `json:"start_date" validate:"required"`
	EndDate   string  `json:"end_date"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`

	Description   string `json:"description"`
	URL           string `json:"url"`
	ImageURL      string `json:"image_url"`
	StartLocation string `json:"start_location"`
	EndLocation   string `json:"end_location"`

	RegistrationRequired *bool  `json:"registration_required"`
	RegistrationURL      string `json:"registration_url"`
	IsOnline             *bool  `json:"is_online"`
	IsPermanent          bool   `json:"is_permanent"`
	Language             string `json:"language"`

	VenueID *int64 `json:"venue_id"`
	CityID  *int64 `json:"city_id"`

	SourceName string `json:"source_name"`
	SourceURL  string `json:"source_url"`

	TypeDetails *events.TypeDetails `json:"type_details"`
}

func (h *EventsHandler) candidateFromRequest(req eventRequest) (events.Candidate, error) {
	startDate, err := timeparse.ParseDate(req.StartDate)
	if err != nil {
		return events.Candidate{}, fmt.Errorf("start_date: %w", err)
	}
	c := events.Candidate{
		Title:                normalize.CleanText(sanitize.Text(req.Title)),
		EventType:            events.MapEventType(req.EventType),
		StartDate:            startDate,
		StartTime:            req.StartTime,
		EndTime:              req.EndTime,
		Description:          sanitize.Text(req.Description),
		URL:                  normalize.CleanURL(req.URL),
		ImageURL:             normalize.CleanURL(req.ImageURL),
		StartLocation:        sanitize.Text(req.StartLocation),
		EndLocation:          sanitize.Text(req.EndLocation),
		RegistrationRequired: req.RegistrationRequired,
		RegistrationURL:      normalize.CleanURL(req.RegistrationURL),
		IsOnline:             req.IsOnline,
		IsPermanent:          req.IsPermanent,
		Language:             req.Language,
		VenueID:              req.VenueID,
		CityID:               req.CityID,
		SourceName:           req.SourceName,
		SourceURL:            req.SourceURL,
		TypeDetails:          req.TypeDetails,
	}
	if req.EndDate != "" {
		endDate, err := timeparse.ParseDate(req.EndDate)
		if err != nil {
			return events.Candidate{}, fmt.Errorf("end_date: %w", err)
		}
		c.EndDate = &endDate
	}
	if c.StartTime != nil {
		if parsed, err := timeparse.ParseTime(*c.StartTime); err == nil {
			c.StartTime = &parsed
		}
	}
	if c.EndTime != nil {
		if parsed, err := timeparse.ParseTime(*c.EndTime); err == nil {
			c.EndTime = &parsed
		}
	}
	return c, nil
}

// resolvePlacement anchors the candidate: every event carries a venue or
// a city, and a venue-attached event always takes its venue's city.
func (h *EventsHandler) resolvePlacement(ctx context.Context, w http.ResponseWriter, r *http.Request, c *events.Candidate) bool {
	if c.VenueID == nil && c.CityID == nil {
		problem.Write(w, r, http.StatusBadRequest, TypeValidationError, "Event needs a venue or city",
			events.ErrValidation, h.env,
			problem.WithDetail("provide venue_id or city_id"))
		return false
	}
	if c.VenueID != nil {
		venue, err := h.store.Venues().GetByID(ctx, *c.VenueID)
		if err != nil {
			if errors.Is(err, venues.ErrNotFound) {
				problem.Write(w, r, http.StatusBadRequest, TypeValidationError, "Unknown venue", err, h.env,
					problem.WithDetail(fmt.Sprintf("venue %d does not exist", *c.VenueID)))
				return false
			}
			problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Loading venue failed", err, h.env)
			return false
		}
		c.CityID = &venue.CityID
	}
	return true
}

// createEvent runs one candidate through the duplicate index and the merge
// engine, returning the persisted row. A near-duplicate rejects with the
// existing event's id.
func (h *EventsHandler) createEvent(w http.ResponseWriter, r *http.Request, c events.Candidate) *events.Event {
	ctx := r.Context()
	if !h.resolvePlacement(ctx, w, r, &c) {
		return nil
	}
	index := events.NewDuplicateIndex(h.store.Events())

	existing, _, err := index.FindExisting(ctx, c)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Duplicate check failed", err, h.env)
		return nil
	}
	if existing != nil {
		problem.Write(w, r, http.StatusConflict, TypeConflict, "Duplicate event",
			&events.DuplicateError{ExistingID: existing.ID}, h.env,
			problem.WithDetail(fmt.Sprintf("matches existing event %d", existing.ID)),
			problem.WithErrors(map[string]interface{}{"existing_id": existing.ID}))
		return nil
	}

	outcome := h.engine.Process(ctx, []events.Candidate{c}, nil)
	if outcome.Created == 0 && outcome.Updated == 0 {
		problem.Write(w, r, http.StatusUnprocessableEntity, TypeValidationError, "Event rejected",
			events.ErrValidation, h.env,
			problem.WithDetail("the event was rejected by the ingestion rules"))
		return nil
	}

	created, _, err := index.FindExisting(ctx, c)
	if err != nil || created == nil {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Reading back created event failed", err, h.env)
		return nil
	}
	return created
}

// Create handles POST /api/admin/add-event.
func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !decodeJSON(w, r, h.env, &req) {
		return
	}
	c, err := h.candidateFromRequest(req)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, TypeValidationError, "Invalid event payload", err, h.env)
		return
	}
	created := h.createEvent(w, r, c)
	if created == nil {
		return
	}
	views, err := h.views(r.Context(), []events.Event{*created}, nil)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Serializing event failed", err, h.env)
		return
	}
	writeJSON(w, http.StatusCreated, views[0])
}

// CreateFromData handles POST /api/admin/create-event-from-data, the
// commit step after an image extraction.
func (h *EventsHandler) CreateFromData(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !decodeJSON(w, r, h.env, &req) {
		return
	}
	c, err := h.candidateFromRequest(req)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, TypeValidationError, "Invalid event payload", err, h.env)
		return
	}
	created := h.createEvent(w, r, c)
	if created == nil {
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"event_id": created.ID})
}

type eventUpdateRequest struct {
	Description          *string             `json:"description"`
	EventType            *string             `json:"event_type"`
	URL                  *string             `json:"url"`
	ImageURL             *string             `json:"image_url"`
	StartTime            *string             `json:"start_time"`
	EndTime              *string             `json:"end_time"`
	EndDate              *string             `json:"end_date"`
	StartLocation        *string             `json:"start_location"`
	EndLocation          *string             `json:"end_location"`
	RegistrationRequired *bool               `json:"registration_required"`
	RegistrationURL      *string             `json:"registration_url"`
	IsOnline             *bool               `json:"is_online"`
	IsBabyFriendly       *bool               `json:"is_baby_friendly"`
	TypeDetails          *events.TypeDetails `json:"type_details"`
}

// Update handles PUT /api/admin/events/{id}.
func (h *EventsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, TypeBadRequest, "Invalid event id", err, h.env)
		return
	}
	var req eventUpdateRequest
	if !decodeJSON(w, r, h.env, &req) {
		return
	}
	params := events.UpdateParams{
		StartTime:            req.StartTime,
		EndTime:              req.EndTime,
		RegistrationRequired: req.RegistrationRequired,
		IsOnline:             req.IsOnline,
		IsBabyFriendly:       req.IsBabyFriendly,
		TypeDetails:          req.TypeDetails,
	}
	if req.EventType != nil {
		t := events.MapEventType(*req.EventType)
		params.EventType = &t
	}
	if req.Description != nil {
		d := sanitize.Text(*req.Description)
		params.Description = &d
	}
	if req.URL != nil {
		u := normalize.CleanURL(*req.URL)
		params.URL = &u
	}
	if req.ImageURL != nil {
		u := normalize.CleanURL(*req.ImageURL)
		params.ImageURL = &u
	}
	if req.StartLocation != nil {
		l := sanitize.Text(*req.StartLocation)
		params.StartLocation = &l
	}
	if req.EndLocation != nil {
		l := sanitize.Text(*req.EndLocation)
		params.EndLocation = &l
	}
	if req.RegistrationURL != nil {
		u := normalize.CleanURL(*req.RegistrationURL)
		params.RegistrationURL = &u
	}
	if req.EndDate != nil {
		endDate, err := timeparse.ParseDate(*req.EndDate)
		if err != nil {
			problem.Write(w, r, http.StatusBadRequest, TypeValidationError, "Invalid end_date", err, h.env)
			return
		}
		params.EndDate = &endDate
	}

	if err := h.store.Events().Update(r.Context(), id, params); err != nil {
		if errors.Is(err, events.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, TypeNotFound, "Event not found", err, h.env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Updating event failed", err, h.env)
		return
	}
	ev, err := h.store.Events().GetByID(r.Context(), id)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Loading event failed", err, h.env)
		return
	}
	views, err := h.views(r.Context(), []events.Event{*ev}, nil)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Serializing event failed", err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, views[0])
}

// Delete handles DELETE /api/admin/events/{id}.
func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, TypeBadRequest, "Invalid event id", err, h.env)
		return
	}
	if err := h.store.Events().Delete(r.Context(), id); err != nil {
		if errors.Is(err, events.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, TypeNotFound, "Event not found", err, h.env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Deleting event failed", err, h.env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearPast handles POST /api/admin/clear-past-events. Permanent events
// survive the sweep.
func (h *EventsHandler) ClearPast(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.store.Events().DeletePast(r.Context(), h.now().UTC())
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Clearing past events failed", err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
