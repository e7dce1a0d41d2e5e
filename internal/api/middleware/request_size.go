package middleware

import "net/http"

// Body size ceilings by endpoint class. Image uploads get the most
// headroom; everything else carries JSON payloads that should stay
// small.
const (
	DefaultMaxBodySize int64 = 1 << 20  // 1MB
	AdminMaxBodySize   int64 = 5 << 20  // 5MB
	UploadMaxBodySize  int64 = 10 << 20 // 10MB
)

// RequestSize caps the request body at maxBytes via http.MaxBytesReader.
// Handlers reading past the cap get an error and the client a 413.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// PublicRequestSize caps public endpoint bodies at DefaultMaxBodySize.
func PublicRequestSize() func(http.Handler) http.Handler {
	return RequestSize(DefaultMaxBodySize)
}

// AdminRequestSize caps admin endpoint bodies at AdminMaxBodySize.
func AdminRequestSize() func(http.Handler) http.Handler {
	return RequestSize(AdminMaxBodySize)
}

// UploadRequestSize caps image upload bodies at UploadMaxBodySize.
func UploadRequestSize() func(http.Handler) http.Handler {
	return RequestSize(UploadMaxBodySize)
}
