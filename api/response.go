package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
)

// Error codes exposed to clients.
const (
	codeValidation  = "ValidationError"
	codeNotFound    = "NotFoundError"
	codeUpstream    = "UpstreamError"
	codeRateLimited = "RateLimited"
)

// writeJSON encodes to a buffer first so an encoding failure can still
// become a 500 instead of a half-written body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// writeError writes a JSON error response carrying the correlation id.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:     code,
		Message:   message,
		RequestID: RequestID(r.Context()),
	})
}
