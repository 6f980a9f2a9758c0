// Package httputil holds the small HTTP helpers shared by the aggregate
// handlers: envelope writing and raw-JSON body reading.
package httputil

import (
	"encoding/json"
	"io"
	"net/http"
)

// maxBodyBytes caps command bodies; event payloads are small documents, not
// uploads.
const maxBodyBytes = 1 << 20

// WriteJSON writes v as the response body with the given status. Encoding
// failures after the header is written can only be logged by the caller's
// middleware, so they are ignored here.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadRawJSON reads the request body as an opaque JSON document. The pipeline
// stores event payloads verbatim, so the only validation here is that the
// body parses as JSON at all. On failure a 400 envelope has already been
// written and ok is false.
func ReadRawJSON(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return nil, false
	}
	if len(body) == 0 || !json.Valid(body) {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "body must be a JSON document"})
		return nil, false
	}
	return json.RawMessage(body), true
}
