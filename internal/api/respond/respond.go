// Package respond writes JSON bodies and the error envelope shared by all
// API handlers.
package respond

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/albapepper/scoracle-league/internal/cache"
)

const (
	contentTypeJSON = "application/json"
	noStore         = "no-cache, no-store, must-revalidate"
)

// ErrorResponse is the envelope for every non-2xx response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries a stable machine code and a human message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Cached is a pre-encoded body served with validators. Hit reports whether
// it came from the response cache.
type Cached struct {
	Body []byte
	ETag string
	TTL  time.Duration
	Hit  bool
}

// WriteCached answers 304 when the request's If-None-Match covers the body's
// ETag, otherwise writes the body with public cache headers.
func WriteCached(w http.ResponseWriter, r *http.Request, c Cached) {
	h := w.Header()
	h.Set("ETag", c.ETag)
	h.Set("Vary", "Accept-Encoding")
	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), c.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	maxAge := int(c.TTL.Seconds())
	h.Set("Content-Type", contentTypeJSON)
	h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d, stale-while-revalidate=%d", maxAge, maxAge/2))
	if c.Hit {
		h.Set("X-Cache", "HIT")
	} else {
		h.Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(c.Body)
}

// WriteError sends the error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorDetail(w, status, code, message, "")
}

// WriteErrorDetail sends the error envelope with a detail line.
func WriteErrorDetail(w http.ResponseWriter, status int, code, message, detail string) {
	writeUncached(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message, Detail: detail}})
}

// WriteJSONObject encodes v uncached. Account-specific responses go through
// here.
func WriteJSONObject(w http.ResponseWriter, status int, v any) {
	writeUncached(w, status, v)
}

func writeUncached(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", noStore)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
