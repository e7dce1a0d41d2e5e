package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func captureSpans(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter
}

func spanAttr(span tracetest.SpanStub, key string) (string, int64, bool) {
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			return attr.Value.AsString(), attr.Value.AsInt64(), true
		}
	}
	return "", 0, false
}

func TestTracingRecordsRequestSpan(t *testing.T) {
	exporter := captureSpans(t)

	handler := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "GET /api/v1/events", span.Name)

	method, _, ok := spanAttr(span, "http.method")
	require.True(t, ok)
	assert.Equal(t, "GET", method)

	url, _, ok := spanAttr(span, "http.url")
	require.True(t, ok)
	assert.Equal(t, "/api/v1/events", url)

	_, status, ok := spanAttr(span, "http.status_code")
	require.True(t, ok)
	assert.EqualValues(t, http.StatusOK, status)
}

func TestTracingMarksErrorResponses(t *testing.T) {
	exporter := captureSpans(t)

	handler := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/no-such-event", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]

	assert.Equal(t, codes.Error, span.Status.Code)
	_, status, ok := spanAttr(span, "http.status_code")
	require.True(t, ok)
	assert.EqualValues(t, http.StatusNotFound, status)
}

func TestSpanStatusWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &spanStatusWriter{ResponseWriter: rec, status: http.StatusOK}

	w.WriteHeader(http.StatusCreated)
	assert.Equal(t, http.StatusCreated, w.status)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Without an explicit WriteHeader the default 200 stands.
	rec = httptest.NewRecorder()
	w = &spanStatusWriter{ResponseWriter: rec, status: http.StatusOK}
	_, _ = w.Write([]byte("ok"))
	assert.Equal(t, http.StatusOK, w.status)
}
