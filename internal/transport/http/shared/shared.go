// Package shared holds the JSON envelope helpers every domain handler uses,
// so error translation stays consistent across the API surface.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "vigil/pkg/domain-errors"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteError translates a domain error into the HTTP error envelope.
// Unrecognized errors become opaque 500s; internal detail never leaks.
func WriteError(w http.ResponseWriter, err error) {
	var de *dErrors.Error
	body := ErrorBody{Error: string(dErrors.CodeInternal)}
	status := http.StatusInternalServerError
	if errors.As(err, &de) {
		status = dErrors.ToHTTPStatus(de.Code)
		body.Error = string(de.Code)
		body.Details = de.Details
		if de.Code != dErrors.CodeInternal {
			body.Message = de.Message
		}
	}
	WriteJSON(w, status, body)
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
