// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/doctools/backend/internal/catalog"
	"github.com/doctools/backend/internal/session"
	"github.com/doctools/backend/internal/staging"
	"github.com/labstack/echo/v4"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil && exposeErrorDetails {
		err.Details = cause.Error()
	}
	return err
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
}

// FromError maps domain errors onto API errors.
func FromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, catalog.ErrToolNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, session.ErrNoFilesSelected):
		return &APIError{
			Status:  http.StatusBadRequest,
			Code:    "NO_FILES_SELECTED",
			Message: "Please select files from your computer to continue",
		}
	case errors.Is(err, staging.ErrInvalidReorder):
		return &APIError{Status: http.StatusBadRequest, Code: "INVALID_REORDER", Message: err.Error()}
	case errors.Is(err, session.ErrAlreadyProcessing),
		errors.Is(err, session.ErrAlreadyComplete),
		errors.Is(err, session.ErrSessionBusy),
		errors.Is(err, session.ErrNotComplete):
		return NewConflictError(err.Error())
	case errors.Is(err, session.ErrTooManySessions):
		return NewServiceUnavailableError(err.Error())
	}
	return NewInternalError("An unexpected error occurred", err)
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		apiErr = &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	} else {
		apiErr = FromError(err)
	}

	if apiErr.Status >= http.StatusInternalServerError {
		logger.Errorf("[API] %s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(apiErr.Status)
		return
	}
	c.JSON(apiErr.Status, apiErr)
}

// exposeErrorDetails controls whether internal error causes reach clients.
var exposeErrorDetails = true
