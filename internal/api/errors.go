package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/wallet-insight/internal/errors"
	"github.com/wallet-insight/internal/logging"
	"github.com/wallet-insight/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondServiceError maps a service error onto its HTTP status and body.
// Internal causes are logged, never echoed to the client.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if stderrors.Is(err, context.DeadlineExceeded) {
		err = errors.NewProviderTimeoutError("upstream")
	}

	catErr := errors.Categorize(err)
	logger := logging.FromContext(r.Context()).WithFields(map[string]interface{}{
		"code":   catErr.Code,
		"status": catErr.StatusCode,
	})
	if catErr.StatusCode >= http.StatusInternalServerError {
		logger.WithError(err).Error("Request failed")
	} else {
		logger.Debug("Request rejected")
	}

	message := catErr.Message
	details := catErr.Details
	if catErr.Code == "INTERNAL_ERROR" {
		message = "An internal error occurred"
		details = nil
	}
	respondError(w, catErr.StatusCode, catErr.Code, message, details)
}

// handleNotFound answers unknown routes with the standard error body
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	respondServiceError(w, r, errors.NewNotFoundError("route", r.URL.Path))
}
