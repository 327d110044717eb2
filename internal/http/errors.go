// Package httpapi exposes the HTTP API layer of the service.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/storefrontd/checkout-core/internal/model"
)

// jsonError represents a JSON error payload.
type jsonError struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Available *int64 `json:"available,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// WriteJSONError writes a JSON error payload with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonError{Error: message, Details: details})
}

// WriteDomainError maps the core's typed errors onto transport responses.
// A TransactionAbortedError is mapped by its cause so callers see the
// specific failure reason.
func WriteDomainError(w http.ResponseWriter, err error) {
	var aborted *model.TransactionAbortedError
	if errors.As(err, &aborted) {
		err = aborted.Cause
	}

	var short *model.InsufficientStockError
	switch {
	case errors.As(err, &short):
		writeJSON(w, http.StatusConflict, jsonError{
			Error:     "insufficient_stock",
			Details:   short.Error(),
			Available: &short.Available,
		})
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, jsonError{Error: "not_found"})
	case errors.Is(err, model.ErrConflict):
		writeJSON(w, http.StatusConflict, jsonError{
			Error:     "conflict",
			Details:   "concurrent update, retry the request",
			Retryable: true,
		})
	case errors.Is(err, model.ErrLocked):
		writeJSON(w, http.StatusLocked, jsonError{
			Error:     "locked",
			Details:   "resource locked by another operation, retry later",
			Retryable: true,
		})
	case errors.Is(err, model.ErrInvalidState):
		writeJSON(w, http.StatusConflict, jsonError{Error: "invalid_state", Details: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, jsonError{Error: "internal_error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
