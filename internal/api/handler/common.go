package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/keyauthd/keyauthd/internal/domain"
	"github.com/keyauthd/keyauthd/internal/validation"
)

// envelope is the standard {success, message} response body.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondMessage writes a {success, message} response.
func respondMessage(w http.ResponseWriter, status int, success bool, message string) {
	respondJSON(w, status, &envelope{Success: success, Message: message})
}

// decodeJSON decodes JSON from the request body.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidInput
	}
	return nil
}

// handleError converts domain errors to HTTP responses. Store failures are
// logged and surfaced as a generic 500 so internal detail never leaks.
func handleError(w http.ResponseWriter, err error) {
	var verr *validation.ValidationError
	switch {
	case errors.As(err, &verr):
		respondMessage(w, http.StatusBadRequest, false, verr.Message)
	case errors.Is(err, domain.ErrNotFound):
		respondMessage(w, http.StatusNotFound, false, "Key not found")
	case errors.Is(err, domain.ErrInvalidInput):
		respondMessage(w, http.StatusBadRequest, false, "invalid request body")
	case errors.Is(err, domain.ErrUnauthorized):
		respondMessage(w, http.StatusUnauthorized, false, "Unauthorized")
	default:
		log.Printf("internal error: %v", err)
		respondMessage(w, http.StatusInternalServerError, false, "internal server error")
	}
}
