package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citylore/server/internal/config"
)

func corsHandler(cfg config.CORSConfig) http.Handler {
	return CORS(cfg, zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func originRequest(method, origin string) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/events", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestCORSReflectsAnyOriginInDevelopment(t *testing.T) {
	handler := corsHandler(config.CORSConfig{AllowAllOrigins: true})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, originRequest(http.MethodGet, "http://localhost:3000"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSAllowListInProduction(t *testing.T) {
	handler := corsHandler(config.CORSConfig{
		AllowedOrigins: []string{"https://citylore.example", "https://admin.citylore.example"},
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, originRequest(http.MethodGet, "https://citylore.example"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://citylore.example", rec.Header().Get("Access-Control-Allow-Origin"))

	// Matching is case-insensitive.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, originRequest(http.MethodGet, "https://ADMIN.citylore.example"))
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSUnlistedOriginGetsNoHeaders(t *testing.T) {
	handler := corsHandler(config.CORSConfig{
		AllowedOrigins: []string{"https://citylore.example"},
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, originRequest(http.MethodGet, "https://evil.example"))

	// The request still runs; the browser enforces the missing header.
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSIgnoresSameOriginRequests(t *testing.T) {
	handler := corsHandler(config.CORSConfig{AllowAllOrigins: true})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, originRequest(http.MethodGet, ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	reached := false
	handler := CORS(config.CORSConfig{AllowAllOrigins: true}, zerolog.Nop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
		}))

	req := originRequest(http.MethodOptions, "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, reached, "preflight must not reach the handler")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
}
