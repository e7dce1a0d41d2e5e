package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drainBody reads the whole body and reports 413 when the size cap
// trips, mirroring what the JSON handlers do.
func drainBody(w http.ResponseWriter, r *http.Request) {
	if _, err := io.ReadAll(r.Body); err != nil {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func postBody(handler http.Handler, size int) *httptest.ResponseRecorder {
	body := bytes.Repeat([]byte("x"), size)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRequestSizeCapsBody(t *testing.T) {
	handler := RequestSize(1024)(http.HandlerFunc(drainBody))

	assert.Equal(t, http.StatusOK, postBody(handler, 512).Code)
	assert.Equal(t, http.StatusOK, postBody(handler, 1024).Code, "exact limit is allowed")
	assert.Equal(t, http.StatusRequestEntityTooLarge, postBody(handler, 1025).Code)
}

func TestRequestSizeTiers(t *testing.T) {
	tiers := []struct {
		name    string
		wrap    func() func(http.Handler) http.Handler
		ceiling int64
	}{
		{"public", PublicRequestSize, DefaultMaxBodySize},
		{"admin", AdminRequestSize, AdminMaxBodySize},
		{"upload", UploadRequestSize, UploadMaxBodySize},
	}

	for _, tier := range tiers {
		t.Run(tier.name, func(t *testing.T) {
			handler := tier.wrap()(http.HandlerFunc(drainBody))
			assert.Equal(t, http.StatusOK, postBody(handler, int(tier.ceiling)).Code)
			assert.Equal(t, http.StatusRequestEntityTooLarge, postBody(handler, int(tier.ceiling)+1).Code)
		})
	}
}

func TestRequestSizeAllowsEmptyBody(t *testing.T) {
	handler := RequestSize(1024)(http.HandlerFunc(drainBody))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestSizeCapHoldsAcrossChunkedReads(t *testing.T) {
	handler := RequestSize(1024)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 256)
		for {
			_, err := r.Body.Read(buf)
			if err == io.EOF {
				w.WriteHeader(http.StatusOK)
				return
			}
			if err != nil {
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				return
			}
		}
	}))

	assert.Equal(t, http.StatusRequestEntityTooLarge, postBody(handler, 2048).Code)
}
