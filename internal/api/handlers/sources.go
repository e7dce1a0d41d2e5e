package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/citylore/server/internal/api/problem"
	"github.com/citylore/server/internal/domain/ids"
	"github.com/citylore/server/internal/domain/sources"
	"github.com/citylore/server/internal/normalize"
	"github.com/citylore/server/internal/sanitize"
)

type SourcesHandler struct {
	sources sources.Repository
	env     string
}

func NewSourcesHandler(repo sources.Repository, env string) *SourcesHandler {
	return &SourcesHandler{sources: repo, env: env}
}

func validSourceType(t string) bool {
	switch t {
	case sources.TypeWebsite, sources.TypeSocial, sources.TypeAggregator, sources.TypeNewsletter:
		return true
	}
	return false
}

// List handles GET /api/sources.
func (h *SourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.sources.List(r.Context(), queryInt64(r, "city_id"))
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Listing sources failed", err, h.env)
		return
	}
	views := make([]SourceView, 0, len(list))
	for _, s := range list {
		views = append(views, NewSourceView(s))
	}
	writeJSON(w, http.StatusOK, views)
}

type sourceRequest struct {
	Name                 string   `json:"name" validate:"required"`
	Handle               string   `json:"handle"`
	Type                 string   `json:"type" validate:"required"`
	URL                  string   `json:"url"`
	CoversMultipleCities bool     `json:"covers_multiple_cities"`
	CoveredCities        []string `json:"covered_cities"`
	EventTypes           []string `json:"event_types"`
	IsActive             *bool    `json:"is_active"`
	ReliabilityScore     float64  `json:"reliability_score"`
	PostingFrequency     string   `json:"posting_frequency"`
	CityID               *int64   `json:"city_id"`
}

// Create handles POST /api/admin/add-source.
func (h *SourcesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if !decodeJSON(w, r, h.env, &req) {
		return
	}
	if !validSourceType(req.Type) {
		problem.Write(w, r, http.StatusBadRequest, TypeValidationError, "Unknown source type",
			fmt.Errorf("unknown source type %q", req.Type), h.env)
		return
	}

	ulid, err := ids.NewULID()
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Generating id failed", err, h.env)
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	source, err := h.sources.Insert(r.Context(), sources.CreateParams{
		ULID:                 ulid,
		Name:                 normalize.CleanText(sanitize.Text(req.Name)),
		Handle:               normalize.CleanText(req.Handle),
		Type:                 req.Type,
		URL:                  normalize.CleanURL(req.URL),
		CoversMultipleCities: req.CoversMultipleCities,
		CoveredCities:        sanitize.TextSlice(req.CoveredCities),
		EventTypes:           req.EventTypes,
		IsActive:             active,
		ReliabilityScore:     req.ReliabilityScore,
		PostingFrequency:     normalize.CleanText(req.PostingFrequency),
		CityID:               req.CityID,
	})
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Creating source failed", err, h.env)
		return
	}
	writeJSON(w, http.StatusCreated, NewSourceView(*source))
}

type sourceUpdateRequest struct {
	Name             *string  `json:"name"`
	Handle           *string  `json:"handle"`
	Type             *string  `json:"type"`
	URL              *string  `json:"url"`
	EventTypes       []string `json:"event_types"`
	IsActive         *bool    `json:"is_active"`
	ReliabilityScore *float64 `json:"reliability_score"`
	PostingFrequency *string  `json:"posting_frequency"`
}

// Update handles PUT /api/admin/sources/{id}.
func (h *SourcesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, TypeBadRequest, "Invalid source id", err, h.env)
		return
	}
	var req sourceUpdateRequest
	if !decodeJSON(w, r, h.env, &req) {
		return
	}
	params := sources.UpdateParams{
		EventTypes:       req.EventTypes,
		IsActive:         req.IsActive,
		ReliabilityScore: req.ReliabilityScore,
	}
	if req.Name != nil {
		name := normalize.CleanText(sanitize.Text(*req.Name))
		params.Name = &name
	}
	if req.Handle != nil {
		handle := normalize.CleanText(*req.Handle)
		params.Handle = &handle
	}
	if req.Type != nil {
		if !validSourceType(*req.Type) {
			problem.Write(w, r, http.StatusBadRequest, TypeValidationError, "Unknown source type",
				fmt.Errorf("unknown source type %q", *req.Type), h.env)
			return
		}
		params.Type = req.Type
	}
	if req.URL != nil {
		u := normalize.CleanURL(*req.URL)
		params.URL = &u
	}
	if req.PostingFrequency != nil {
		p := normalize.CleanText(*req.PostingFrequency)
		params.PostingFrequency = &p
	}

	if err := h.sources.Update(r.Context(), id, params); err != nil {
		if errors.Is(err, sources.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, TypeNotFound, "Source not found", err, h.env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Updating source failed", err, h.env)
		return
	}
	source, err := h.sources.GetByID(r.Context(), id)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Loading source failed", err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, NewSourceView(*source))
}

// Delete handles DELETE /api/admin/sources/{id}. Historical events keep
// their source_url string; nothing cascades.
func (h *SourcesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, TypeBadRequest, "Invalid source id", err, h.env)
		return
	}
	if err := h.sources.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sources.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, TypeNotFound, "Source not found", err, h.env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Deleting source failed", err, h.env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
