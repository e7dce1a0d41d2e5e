package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/citylore/server/internal/storage"
)

const visitTimeout = 2 * time.Second

// VisitLogging records public API reads for the analytics table. Inserts
// are fire and forget; a lost row never affects the response.
func VisitLogging(visits storage.VisitRepository, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/") {
				visit := storage.Visit{
					Path:        r.URL.Path,
					Referrer:    r.Referer(),
					UserAgent:   r.UserAgent(),
					VisitorHash: visitorHash(r),
					OccurredAt:  time.Now().UTC(),
				}
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), visitTimeout)
					defer cancel()
					if err := visits.Insert(ctx, visit); err != nil {
						logger.Debug().Err(err).Msg("visit insert failed")
					}
				}()
			}
			next.ServeHTTP(w, r)
		})
	}
}

// visitorHash anonymizes the client: a truncated digest of address and
// user agent, never the raw IP.
func visitorHash(r *http.Request) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	sum := sha256.Sum256([]byte(host + "|" + r.UserAgent()))
	return hex.EncodeToString(sum[:8])
}
