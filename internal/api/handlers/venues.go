package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/citylore/server/internal/api/problem"
	"github.com/citylore/server/internal/domain/ids"
	"github.com/citylore/server/internal/domain/venues"
	"github.com/citylore/server/internal/normalize"
	"github.com/citylore/server/internal/sanitize"
)

type VenuesHandler struct {
	venues venues.Repository
	env    string
}

func NewVenuesHandler(repo venues.Repository, env string) *VenuesHandler {
	return &VenuesHandler{venues: repo, env: env}
}

// List handles GET /api/venues. Permanently closed venues are omitted.
func (h *VenuesHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := venues.Filters{CityID: queryInt64(r, "city_id")}
	if types := r.URL.Query().Get("venue_types"); types != "" {
		for _, t := range strings.Split(types, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filters.Types = append(filters.Types, t)
			}
		}
	} else if t := r.URL.Query().Get("venue_type"); t != "" {
		filters.Types = []string{t}
	}

	list, err := h.venues.List(r.Context(), filters)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Listing venues failed", err, h.env)
		return
	}
	views := make([]VenueView, 0, len(list))
	for _, v := range list {
		if v.IsClosed() {
			continue
		}
		views = append(views, NewVenueView(v))
	}
	writeJSON(w, http.StatusOK, views)
}

type venueRequest struct {
	Name         string            `json:"name" validate:"required"`
	Type         string            `json:"type"`
	Address      string            `json:"address"`
	Lat          *float64          `json:"lat"`
	Lon          *float64          `json:"lon"`
	Website      string            `json:"website"`
	TicketingURL string            `json:"ticketing_url"`
	SocialURLs   map[string]string `json:"social_urls"`
	Hours        string            `json:"hours"`
	Contact      string            `json:"contact"`
	Description  string            `json:"description"`
	CityID       int64             `json:"city_id" validate:"required"`

	EventPaths map[string]string `json:"event_paths"`
}

// Create handles POST /api/admin/add-venue.
func (h *VenuesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req venueRequest
	if !decodeJSON(w, r, h.env, &req) {
		return
	}
	name := normalize.FormatVenueName(req.Name)

	if existing, err := h.venues.FindByName(r.Context(), name, req.CityID); err == nil && existing != nil {
		problem.Write(w, r, http.StatusConflict, TypeConflict, "Venue already exists", venues.ErrDuplicate, h.env,
			problem.WithDetail("a venue with this name already exists in the city"))
		return
	}

	ulid, err := ids.NewULID()
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Generating id failed", err, h.env)
		return
	}
	venue, err := h.venues.Insert(r.Context(), venues.CreateParams{
		ULID:         ulid,
		Name:         name,
		Type:         normalize.CleanText(req.Type),
		Address:      sanitize.Text(req.Address),
		Lat:          req.Lat,
		Lon:          req.Lon,
		Website:      normalize.CleanURL(req.Website),
		TicketingURL: normalize.CleanURL(req.TicketingURL),
		SocialURLs:   req.SocialURLs,
		Hours:        sanitize.Text(req.Hours),
		Contact:      sanitize.Text(req.Contact),
		Description:  sanitize.Text(req.Description),
		CityID:       req.CityID,
		AdditionalInfo: venues.AdditionalInfo{
			EventPaths: req.EventPaths,
		},
	})
	if err != nil {
		if errors.Is(err, venues.ErrDuplicate) {
			problem.Write(w, r, http.StatusConflict, TypeConflict, "Venue already exists", err, h.env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Creating venue failed", err, h.env)
		return
	}
	writeJSON(w, http.StatusCreated, NewVenueView(*venue))
}

type venueUpdateRequest struct {
	Name         *string           `json:"name"`
	Type         *string           `json:"type"`
	Address      *string           `json:"address"`
	Lat          *float64          `json:"lat"`
	Lon          *float64          `json:"lon"`
	Website      *string           `json:"website"`
	TicketingURL *string           `json:"ticketing_url"`
	SocialURLs   map[string]string `json:"social_urls"`
	Hours        *string           `json:"hours"`
	Contact      *string           `json:"contact"`
	Description  *string           `json:"description"`
	EventPaths   map[string]string `json:"event_paths"`
}

// Update handles PUT /api/admin/venues/{id}.
func (h *VenuesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, TypeBadRequest, "Invalid venue id", err, h.env)
		return
	}
	var req venueUpdateRequest
	if !decodeJSON(w, r, h.env, &req) {
		return
	}
	params := venues.UpdateParams{
		Lat:        req.Lat,
		Lon:        req.Lon,
		SocialURLs: req.SocialURLs,
	}
	if req.Name != nil {
		name := normalize.FormatVenueName(*req.Name)
		params.Name = &name
	}
	if req.Type != nil {
		t := normalize.CleanText(*req.Type)
		params.Type = &t
	}
	if req.Address != nil {
		addr := sanitize.Text(*req.Address)
		params.Address = &addr
	}
	if req.Website != nil {
		u := normalize.CleanURL(*req.Website)
		params.Website = &u
	}
	if req.TicketingURL != nil {
		u := normalize.CleanURL(*req.TicketingURL)
		params.TicketingURL = &u
	}
	if req.Hours != nil {
		hrs := sanitize.Text(*req.Hours)
		params.Hours = &hrs
	}
	if req.Contact != nil {
		c := sanitize.Text(*req.Contact)
		params.Contact = &c
	}
	if req.Description != nil {
		d := sanitize.Text(*req.Description)
		params.Description = &d
	}
	if req.EventPaths != nil {
		params.AdditionalInfo = &venues.AdditionalInfo{EventPaths: req.EventPaths}
	}

	if err := h.venues.Update(r.Context(), id, params); err != nil {
		switch {
		case errors.Is(err, venues.ErrNotFound):
			problem.Write(w, r, http.StatusNotFound, TypeNotFound, "Venue not found", err, h.env)
		case errors.Is(err, venues.ErrDuplicate):
			problem.Write(w, r, http.StatusConflict, TypeConflict, "Venue already exists", err, h.env)
		default:
			problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Updating venue failed", err, h.env)
		}
		return
	}
	venue, err := h.venues.GetByID(r.Context(), id)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Loading venue failed", err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, NewVenueView(*venue))
}

// Delete handles DELETE /api/admin/venues/{id}. Deleting a venue cascades
// to its events.
func (h *VenuesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, TypeBadRequest, "Invalid venue id", err, h.env)
		return
	}
	if err := h.venues.Delete(r.Context(), id); err != nil {
		if errors.Is(err, venues.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, TypeNotFound, "Venue not found", err, h.env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Deleting venue failed", err, h.env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
