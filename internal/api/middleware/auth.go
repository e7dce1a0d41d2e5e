package middleware

import (
	"context"
	"net/http"

	"github.com/citylore/server/internal/api/problem"
	"github.com/citylore/server/internal/auth"
)

const (
	// AdminSubjectKey carries the authenticated admin's username.
	AdminSubjectKey contextKey = "admin_subject"

	// RoleAdmin is the only role the mutation surface accepts.
	RoleAdmin = "admin"
)

// AdminAuth guards mutation endpoints with a bearer JWT carrying the
// admin role.
func AdminAuth(manager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				writeUnauthorized(w)
				return
			}
			claims, err := manager.Validate(token)
			if err != nil || claims.Role != RoleAdmin {
				writeUnauthorized(w)
				return
			}
			ctx := context.WithValue(r.Context(), AdminSubjectKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminSubject extracts the authenticated admin's username from context.
func AdminSubject(ctx context.Context) string {
	if subject, ok := ctx.Value(AdminSubjectKey).(string); ok {
		return subject
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
	problem.WriteProblem(w, problem.ProblemDetails{
		Type:   "https://citylore.app/problems/unauthorized",
		Title:  "Unauthorized",
		Status: http.StatusUnauthorized,
	})
}
