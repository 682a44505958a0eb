package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ternarybob/percipio/internal/models"
)

// RequireMethod validates that the request uses the given method, writing
// a 405 response otherwise.
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteKindError maps a classified error onto its HTTP status and writes
// the standard error body.
func WriteKindError(w http.ResponseWriter, err error) error {
	return WriteError(w, StatusForError(err), err.Error())
}

// StatusForError maps error taxonomy kinds onto HTTP status codes.
// Unclassified errors are internal.
func StatusForError(err error) int {
	kind, ok := models.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case models.ErrBadInput:
		return http.StatusBadRequest
	case models.ErrPolicyBlocked:
		return http.StatusForbidden
	case models.ErrQuotaExhausted:
		return http.StatusTooManyRequests
	case models.ErrTimedOut:
		return http.StatusGatewayTimeout
	case models.ErrStoreUnavailable, models.ErrCancelled:
		return http.StatusServiceUnavailable
	case models.ErrTransientNetwork, models.ErrPermanentHttp, models.ErrParseFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// QueryInt reads an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func QueryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return parsed
}

// QueryFloat reads a float query parameter, falling back to def when the
// parameter is absent or malformed.
func QueryFloat(r *http.Request, name string, def float64) float64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return parsed
}
