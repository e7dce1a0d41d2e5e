package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/citylore/server/internal/api/problem"
	"github.com/citylore/server/internal/domain/cities"
	"github.com/citylore/server/internal/domain/ids"
	"github.com/citylore/server/internal/normalize"
)

type CitiesHandler struct {
	cities cities.Repository
	env    string
}

func NewCitiesHandler(repo cities.Repository, env string) *CitiesHandler {
	return &CitiesHandler{cities: repo, env: env}
}

// List handles GET /api/cities.
func (h *CitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.cities.List(r.Context())
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Listing cities failed", err, h.env)
		return
	}
	views := make([]CityView, 0, len(list))
	for _, c := range list {
		views = append(views, NewCityView(c))
	}
	writeJSON(w, http.StatusOK, views)
}

type cityRequest struct {
	Name     string `json:"name" validate:"required"`
	State    string `json:"state"`
	Country  string `json:"country" validate:"required"`
	Timezone string `json:"timezone" validate:"required"`
}

// Create handles POST /api/admin/add-city.
func (h *CitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req cityRequest
	if !decodeJSON(w, r, h.env, &req) {
		return
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		problem.Write(w, r, http.StatusBadRequest, TypeValidationError, "Unknown timezone", err, h.env,
			problem.WithDetail("timezone must be a valid IANA zone name"))
		return
	}

	name := normalize.FormatCityName(req.Name)
	country := normalize.FormatCountryName(req.Country)

	if existing, err := h.cities.FindByName(r.Context(), name, req.State, country); err == nil && existing != nil {
		problem.Write(w, r, http.StatusConflict, TypeConflict, "City already exists", cities.ErrDuplicate, h.env,
			problem.WithDetail("a city with this name, state and country already exists"))
		return
	}

	ulid, err := ids.NewULID()
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Generating id failed", err, h.env)
		return
	}
	city, err := h.cities.Insert(r.Context(), cities.CreateParams{
		ULID:     ulid,
		Name:     name,
		State:    normalize.CleanText(req.State),
		Country:  country,
		Timezone: req.Timezone,
	})
	if err != nil {
		if errors.Is(err, cities.ErrDuplicate) {
			problem.Write(w, r, http.StatusConflict, TypeConflict, "City already exists", err, h.env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Creating city failed", err, h.env)
		return
	}
	writeJSON(w, http.StatusCreated, NewCityView(*city))
}

type cityUpdateRequest struct {
	Name     *string `json:"name"`
	State    *string `json:"state"`
	Country  *string `json:"country"`
	Timezone *string `json:"timezone"`
}

// Update handles PUT /api/admin/cities/{id}.
func (h *CitiesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, TypeBadRequest, "Invalid city id", err, h.env)
		return
	}
	var req cityUpdateRequest
	if !decodeJSON(w, r, h.env, &req) {
		return
	}
	params := cities.UpdateParams{State: req.State}
	if req.Name != nil {
		name := normalize.FormatCityName(*req.Name)
		params.Name = &name
	}
	if req.Country != nil {
		country := normalize.FormatCountryName(*req.Country)
		params.Country = &country
	}
	if req.Timezone != nil {
		if _, err := time.LoadLocation(*req.Timezone); err != nil {
			problem.Write(w, r, http.StatusBadRequest, TypeValidationError, "Unknown timezone", err, h.env)
			return
		}
		params.Timezone = req.Timezone
	}

	if err := h.cities.Update(r.Context(), id, params); err != nil {
		switch {
		case errors.Is(err, cities.ErrNotFound):
			problem.Write(w, r, http.StatusNotFound, TypeNotFound, "City not found", err, h.env)
		case errors.Is(err, cities.ErrDuplicate):
			problem.Write(w, r, http.StatusConflict, TypeConflict, "City already exists", err, h.env)
		default:
			problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Updating city failed", err, h.env)
		}
		return
	}
	city, err := h.cities.GetByID(r.Context(), id)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Loading city failed", err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, NewCityView(*city))
}

// Delete handles DELETE /api/admin/cities/{id}.
func (h *CitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, TypeBadRequest, "Invalid city id", err, h.env)
		return
	}
	if err := h.cities.Delete(r.Context(), id); err != nil {
		if errors.Is(err, cities.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, TypeNotFound, "City not found", err, h.env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Deleting city failed", err, h.env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
