package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

// RequestIDKey carries the per-request correlation ID through the
// request context.
const RequestIDKey contextKey = "request_id"

// CorrelationID tags every request with an ID, echoes it back in the
// X-Request-ID response header, and binds a request-scoped logger into
// the context. An ID supplied by an upstream proxy is kept as-is so
// traces line up across hops.
func CorrelationID(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", id)

			reqLogger := logger.With().Str("request_id", id).Logger()
			ctx := context.WithValue(r.Context(), RequestIDKey, id)
			next.ServeHTTP(w, r.WithContext(reqLogger.WithContext(ctx)))
		})
	}
}

// GetRequestID returns the correlation ID stored by CorrelationID, or
// "" when the middleware did not run.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
