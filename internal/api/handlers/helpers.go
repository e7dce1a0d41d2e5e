// Package handlers implements the HTTP surface: public reads, admin
// mutations, the scrape endpoints, and image extraction.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/citylore/server/internal/api/problem"
)

// Problem type URIs for the RFC 7807 responses.
const (
	TypeValidationError = "https://citylore.app/problems/validation-error"
	TypeBadRequest      = "https://citylore.app/problems/bad-request"
	TypeNotFound        = "https://citylore.app/problems/not-found"
	TypeConflict        = "https://citylore.app/problems/conflict"
	TypeInternalError   = "https://citylore.app/problems/internal-error"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON parses and validates the request body into dst. On failure it
// writes a problem response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, env string, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		problem.Write(w, r, http.StatusBadRequest, TypeBadRequest, "Invalid JSON body", err, env)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		fieldErrs := map[string]interface{}{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fieldErrs[fe.Field()] = fe.Tag()
			}
		}
		problem.Write(w, r, http.StatusBadRequest, TypeValidationError, "Validation failed", err, env,
			problem.WithErrors(fieldErrs))
		return false
	}
	return true
}

// pathID parses the {id} wildcard as the numeric primary key.
func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// queryInt64 parses an optional integer query parameter. Returns nil when
// the parameter is absent or malformed.
func queryInt64(r *http.Request, key string) *int64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
