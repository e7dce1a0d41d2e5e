// Package problem renders API errors as RFC 7807 problem documents.
// Every error response in the API goes through here so clients see one
// consistent shape.
package problem

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

const contentType = "application/problem+json"

// ProblemDetails is the RFC 7807 response body. Errors carries
// field-level validation context when a handler has it.
type ProblemDetails struct {
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Status   int                    `json:"status"`
	Detail   string                 `json:"detail,omitempty"`
	Instance string                 `json:"instance,omitempty"`
	Errors   map[string]interface{} `json:"errors,omitempty"`
}

// Option customizes the document before it is written.
type Option func(*ProblemDetails)

func WithDetail(detail string) Option {
	return func(p *ProblemDetails) { p.Detail = detail }
}

func WithInstance(instance string) Option {
	return func(p *ProblemDetails) { p.Instance = instance }
}

func WithErrors(errs map[string]interface{}) Option {
	return func(p *ProblemDetails) { p.Errors = errs }
}

// Write builds and emits a problem document. Outside development the
// raw error text is replaced by the generic status text so internals
// never leak; the full error still goes to the request logger.
func Write(w http.ResponseWriter, r *http.Request, status int, typ, title string, err error, env string, opts ...Option) {
	doc := ProblemDetails{Type: typ, Title: title, Status: status}
	for _, opt := range opts {
		opt(&doc)
	}

	if doc.Detail == "" && err != nil {
		switch env {
		case "development", "test":
			doc.Detail = err.Error()
		default:
			doc.Detail = http.StatusText(status)
		}
	}
	if doc.Instance == "" && r != nil {
		doc.Instance = r.URL.Path
	}

	if err != nil && r != nil {
		logProblem(r, status, typ, title, err)
	}

	WriteProblem(w, doc)
}

// logProblem records the underlying error against the request's
// contextual logger: 5xx at error, everything else at warn.
func logProblem(r *http.Request, status int, typ, title string, err error) {
	logger := zerolog.Ctx(r.Context())
	evt := logger.Warn()
	if status >= 500 {
		evt = logger.Error()
	}
	evt.Err(err).
		Int("status", status).
		Str("type", typ).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg(title)
}

// WriteProblem serializes an already-built document. Used directly by
// middleware that has no underlying error to log.
func WriteProblem(w http.ResponseWriter, doc ProblemDetails) {
	payload, err := json.Marshal(doc)
	if err != nil {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"about:blank","title":"Internal Server Error","status":500}`))
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(doc.Status)
	_, _ = w.Write(payload)
}
