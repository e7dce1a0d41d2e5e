package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/citylore/server/internal/api/problem"
	"github.com/citylore/server/internal/domain/events"
	"github.com/citylore/server/internal/domain/venues"
	"github.com/citylore/server/internal/scraper"
	"github.com/citylore/server/internal/timeparse"
)

// RecurringExpander materializes a weekly program page into dated
// candidates. *scraper.RecurringExpander satisfies it.
type RecurringExpander interface {
	Expand(ctx context.Context, req scraper.RecurringRequest) ([]events.Candidate, error)
}

// RecurringHandler serves the admin expand-recurring endpoint: one URL
// describing a recurring program becomes one event per occurrence in
// the requested window.
type RecurringHandler struct {
	expander RecurringExpander
	venues   venues.Repository
	engine   Merger
	proxy    *ImageProxy
	env      string
}

func NewRecurringHandler(expander RecurringExpander, venueRepo venues.Repository, engine Merger, proxy *ImageProxy, env string) *RecurringHandler {
	return &RecurringHandler{expander: expander, venues: venueRepo, engine: engine, proxy: proxy, env: env}
}

type expandRecurringRequest struct {
	VenueID   int64  `json:"venue_id" validate:"required"`
	BaseURL   string `json:"base_url" validate:"required,url"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`

	Title        string `json:"title"`
	Description  string `json:"description"`
	EventType    string `json:"event_type"`
	EveryWeekday bool   `json:"every_weekday"`

	// Commit persists the occurrences; otherwise they are only returned
	// for review.
	Commit bool `json:"commit"`
}

type expandRecurringResponse struct {
	Occurrences []CandidateEventView `json:"occurrences"`
	Created     int                  `json:"created"`
	Updated     int                  `json:"updated"`
	Skipped     int                  `json:"skipped"`
}

// Expand handles POST /api/admin/expand-recurring.
func (h *RecurringHandler) Expand(w http.ResponseWriter, r *http.Request) {
	var req expandRecurringRequest
	if !decodeJSON(w, r, h.env, &req) {
		return
	}

	start, err := timeparse.ParseDate(req.StartDate)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, TypeValidationError, "Invalid start_date", err, h.env)
		return
	}
	end, err := timeparse.ParseDate(req.EndDate)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, TypeValidationError, "Invalid end_date", err, h.env)
		return
	}
	if end.Before(start) {
		problem.Write(w, r, http.StatusBadRequest, TypeValidationError, "end_date is before start_date", nil, h.env)
		return
	}
	if req.EventType != "" && !events.ValidType(req.EventType) {
		problem.Write(w, r, http.StatusBadRequest, TypeValidationError, "Unknown event_type", nil, h.env)
		return
	}

	venue, err := h.venues.GetByID(r.Context(), req.VenueID)
	if err != nil {
		writeVenueLookupError(w, r, err, h.env)
		return
	}

	candidates, err := h.expander.Expand(r.Context(), scraper.RecurringRequest{
		Venue:        venue,
		BaseURL:      req.BaseURL,
		Window:       scraper.Window{Start: start, End: end},
		Title:        req.Title,
		Description:  req.Description,
		EventType:    req.EventType,
		EveryWeekday: req.EveryWeekday,
	})
	if err != nil {
		problem.Write(w, r, http.StatusBadGateway, TypeBadRequest, "Fetching the program page failed", err, h.env)
		return
	}

	resp := expandRecurringResponse{Occurrences: make([]CandidateEventView, 0, len(candidates))}
	for i := range candidates {
		resp.Occurrences = append(resp.Occurrences, NewCandidateViewFromCandidate(candidates[i]))
	}

	if req.Commit && len(candidates) > 0 {
		quotas := events.NewQuotaGovernor(0, 0)
		outcome := h.engine.Process(r.Context(), candidates, quotas)
		resp.Created, resp.Updated, resp.Skipped = outcome.Created, outcome.Updated, outcome.Skipped
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeVenueLookupError maps a venue fetch failure onto the right
// problem response.
func writeVenueLookupError(w http.ResponseWriter, r *http.Request, err error, env string) {
	if errors.Is(err, venues.ErrNotFound) {
		problem.Write(w, r, http.StatusNotFound, TypeNotFound, "Venue not found", err, env)
		return
	}
	problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Venue lookup failed", err, env)
}
