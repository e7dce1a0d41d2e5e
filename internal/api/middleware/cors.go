package middleware

import (
	"net/http"
	"strings"

	"github.com/citylore/server/internal/config"
	"github.com/rs/zerolog"
)

const (
	corsMethods = "GET, POST, PUT, DELETE, OPTIONS, PATCH"
	corsHeaders = "Content-Type, Authorization, Idempotency-Key, Accept, X-Request-ID"
	corsExpose  = "X-Request-ID, Retry-After"
)

// CORS answers cross-origin requests from browser clients. Development
// mode reflects any origin; production only reflects origins from the
// configured allow list, and rejected origins are logged so probing
// shows up in monitoring. Preflight OPTIONS requests short-circuit with
// 204.
func CORS(cfg config.CORSConfig, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Same-origin request, nothing to negotiate.
				next.ServeHTTP(w, r)
				return
			}

			if cfg.AllowAllOrigins || originAllowed(origin, cfg.AllowedOrigins) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				h.Set("Access-Control-Expose-Headers", corsExpose)
				h.Set("Access-Control-Max-Age", "86400")
			} else {
				logger.Warn().
					Str("origin", origin).
					Str("path", r.URL.Path).
					Str("method", r.Method).
					Msg("rejected cross-origin request")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// originAllowed does a case-insensitive exact match against the allow
// list. No wildcard or suffix matching: list every origin explicitly.
func originAllowed(origin string, allowed []string) bool {
	for _, entry := range allowed {
		if strings.EqualFold(origin, strings.TrimSpace(entry)) {
			return true
		}
	}
	return false
}
