// Package handlers implements the JSON HTTP surface.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vrtxceo/glove/internal/approval"
	"github.com/vrtxceo/glove/internal/extension"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeError maps classified service errors onto their HTTP shape; anything
// unclassified is a 500.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *approval.Error
	if errors.As(err, &apiErr) {
		writeDetail(w, apiErr.Status, apiErr.Detail)
		return
	}
	var installErr *extension.InstallError
	if errors.As(err, &installErr) {
		status := http.StatusBadRequest
		if installErr.Kind == "extension_exists" {
			status = http.StatusConflict
		}
		detail := installErr.Kind
		if installErr.Info != "" {
			detail += ": " + installErr.Info
		}
		writeDetail(w, status, detail)
		return
	}
	writeDetail(w, http.StatusInternalServerError, "internal_error")
}

// decodeJSON parses a request body into v, rejecting oversized payloads.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid_request")
		return false
	}
	return true
}

func lengthBetween(s string, min, max int) bool {
	return len(s) >= min && len(s) <= max
}
