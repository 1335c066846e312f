package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"receivables/internal/reconciliation"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`

	// Result carries what a failed operation still produced, e.g. the
	// report of an aborted sync cycle.
	Result any `json:"result,omitempty"`
}

// JSON writes payload with the given status.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	body := []byte("null")
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			http.Error(w, `{"error":"encode_error"}`, http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// JSONError writes an ErrorResponse.
func JSONError(w http.ResponseWriter, status int, msg, details string) {
	JSON(w, status, ErrorResponse{Error: msg, Details: details})
}

// errorStatus maps reconciliation errors onto an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, reconciliation.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, reconciliation.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, reconciliation.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, reconciliation.ErrSyncInProgress):
		return http.StatusConflict, "sync_in_progress"
	case errors.Is(err, reconciliation.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
