package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("<html><body>" + string(make([]byte, 6000)) + "</body></html>"))
	}))
	defer srv.Close()

	f := NewFetcher(zerolog.Nop()).WithoutBrowserFallback()
	body, err := f.Fetch(context.Background(), srv.URL+"/events")
	require.NoError(t, err)
	assert.Contains(t, body, "<html>")
}

func TestFetchRespectsRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		w.Write([]byte("content"))
	}))
	defer srv.Close()

	f := NewFetcher(zerolog.Nop()).WithoutBrowserFallback()

	_, err := f.Fetch(context.Background(), srv.URL+"/private/page")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "robots.txt")
}

func TestFetchRetriesOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("<html><body>" + string(make([]byte, 6000)) + "recovered</body></html>"))
	}))
	defer srv.Close()

	f := NewFetcher(zerolog.Nop()).WithoutBrowserFallback()
	body, err := f.Fetch(context.Background(), srv.URL+"/events")
	require.NoError(t, err)
	assert.Contains(t, body, "recovered")
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchDetectsBotChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("<html><title>Just a moment...</title></html>"))
	}))
	defer srv.Close()

	f := NewFetcher(zerolog.Nop()).WithoutBrowserFallback()
	_, err := f.Fetch(context.Background(), srv.URL+"/events")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot challenge")
}

func TestFetchRejectsBadURL(t *testing.T) {
	f := NewFetcher(zerolog.Nop()).WithoutBrowserFallback()
	_, err := f.Fetch(context.Background(), "not-a-url")
	assert.Error(t, err)
}

func TestLooksLikeBotChallenge(t *testing.T) {
	f := NewFetcher(zerolog.Nop())

	assert.True(t, f.looksLikeBotChallenge("<html>Checking your browser before accessing</html>"))
	assert.True(t, f.looksLikeBotChallenge("cloudflare ray id 123"))
	assert.False(t, f.looksLikeBotChallenge("a normal small page"))

	// Large pages that merely mention a marker are real content.
	large := "cloudflare " + string(make([]byte, botChallengeMaxBytes))
	assert.False(t, f.looksLikeBotChallenge(large))
}
