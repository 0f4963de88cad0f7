package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/anonify/anonify/internal/apperr"
)

const maxBodyBytes = 64 << 10

var errInvalidBody = apperr.New(apperr.Validation, "invalid JSON body")

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeOK sends a success envelope merged with extra fields.
func writeOK(w http.ResponseWriter, status int, message string, extra map[string]any) {
	payload := map[string]any{"success": true, "message": message}
	for k, v := range extra {
		payload[k] = v
	}
	writeJSON(w, status, payload)
}

// writeError sends a failure envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Unauthenticated:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.Upstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders a categorized error with its own message. Anything
// else is logged and reported generically.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, req *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "path", req.URL.Path, "error", err)
	}
	writeError(w, status, apperr.Message(err, "Internal server error"))
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, req *http.Request, v any) error {
	body := http.MaxBytesReader(w, req.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return errInvalidBody
	}
	return nil
}
