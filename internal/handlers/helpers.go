package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/nahidhasan98/netconf-relay/internal/errors"
	"github.com/nahidhasan98/netconf-relay/internal/logger"
	"github.com/nahidhasan98/netconf-relay/internal/models"
)

// requestLogger returns the logger carrying the request id, if any
func (h *Handler) requestLogger(r *http.Request) *logger.Logger {
	return logger.FromContext(r.Context(), h.log)
}

// writeJSON writes a JSON response with the given status code
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("Failed to encode JSON response", err)
	}
}

// writeAppError writes an application error response
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, appErr *errors.AppError) {
	response := &models.ErrorResponse{
		Error:   appErr.Message,
		Code:    string(appErr.Code),
		Details: appErr.Details,
	}

	// Log the error for internal monitoring
	h.requestLogger(r).With("error_code", appErr.Code).
		With("status_code", appErr.StatusCode).
		Error(appErr.Message, appErr.Err)

	h.writeJSON(w, response, appErr.StatusCode)
}

// MethodNotAllowed answers requests to known paths with the wrong method
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeAppError(w, r, errors.New(errors.ErrCodeMethodNotAllowed, "Method "+r.Method+" not allowed"))
}
