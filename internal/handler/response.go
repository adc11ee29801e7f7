package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError so that all error
// bodies share one shape:
//   {"error": "not_found", "message": "User not found"}
//
// The frontend can rely on those two fields regardless of the status code.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/miniapp-auth/internal/apperror"
)

// Generic messages for responses that must not leak internals.
const (
	msgUnauthorized = "Unauthorized"
	msgInternal     = "Internal server error"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// writeJSON sends a JSON response with the given status code.
//
// Headers and status must be written before the body: once Encode calls
// w.Write, later header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent, all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status and sends it.
//
// ERROR MAPPING:
// The service layer returns errors wrapping apperror sentinels; errors.Is
// walks the chain (including AppError's multi-unwrap) to find them.
//
//	ErrValidation   → 400
//	ErrUnauthorized → 401 (message is always generic)
//	ErrNotFound     → 404
//	anything else   → 500 (message is always generic)
//
// 401 and 500 bodies never carry the error text: validator and storage
// messages can describe why a signature failed or echo SQL.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, apperror.ErrUnauthorized):
		logger.Info("request unauthorized", slog.String("error", err.Error()))
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: msgUnauthorized})
		return
	case errors.Is(err, apperror.ErrValidation):
		writeAppError(w, http.StatusBadRequest, "validation_error", err)
		return
	case errors.Is(err, apperror.ErrNotFound):
		writeAppError(w, http.StatusNotFound, "not_found", err)
		return
	}

	logger.Error("request failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: msgInternal,
	})
}

// writeAppError uses the AppError's client-safe Message when one is in the
// chain, falling back to the sentinel's text.
func writeAppError(w http.ResponseWriter, status int, errorType string, err error) {
	message := http.StatusText(status)
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	writeJSON(w, status, ErrorResponse{Error: errorType, Message: message})
}
