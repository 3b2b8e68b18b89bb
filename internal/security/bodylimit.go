// Package security holds HTTP hardening middleware shared by the API routes.
package security

import (
	"net/http"
	"strconv"

	"github.com/noah-isme/backend-b2b/internal/common"
)

// BodyLimit caps request payloads. Declared lengths over Max are rejected up
// front; chunked bodies are cut off by http.MaxBytesReader while decoding.
type BodyLimit struct {
	Max int64
}

// Middleware rejects oversized requests with 413.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	if b.Max <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > b.Max {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
				"request body exceeds "+strconv.FormatInt(b.Max, 10)+" bytes", nil)
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		}
		next.ServeHTTP(w, r)
	})
}
