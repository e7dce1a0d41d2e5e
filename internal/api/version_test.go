package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getVersion(t *testing.T, handler http.Handler) versionResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp versionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestVersionHandlerReportsBuildMetadata(t *testing.T) {
	resp := getVersion(t, VersionHandler("0.3.0", "abc123def456", "2026-08-01T12:00:00Z"))
	assert.Equal(t, "0.3.0", resp.Version)
	assert.Equal(t, "abc123def456", resp.GitCommit)
	assert.Equal(t, "2026-08-01T12:00:00Z", resp.BuildDate)
	assert.Equal(t, runtime.Version(), resp.GoVersion)
}

func TestVersionHandlerDefaultsMissingValues(t *testing.T) {
	resp := getVersion(t, VersionHandler("", "", ""))
	assert.Equal(t, "dev", resp.Version)
	assert.Equal(t, "unknown", resp.GitCommit)
	assert.Equal(t, "unknown", resp.BuildDate)

	// Partial ldflags keep what was provided.
	resp = getVersion(t, VersionHandler("1.0.0", "", "2026-08-01T12:00:00Z"))
	assert.Equal(t, "1.0.0", resp.Version)
	assert.Equal(t, "unknown", resp.GitCommit)
}

func TestVersionHandlerIsGetOnly(t *testing.T) {
	handler := VersionHandler("0.3.0", "abc123", "2026-08-01T12:00:00Z")
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		req := httptest.NewRequest(method, "/version", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
	}
}
