package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	reconciledomain "github.com/storelytics/tally/internal/reconcile/domain"
	"gorm.io/gorm"
)

// errorPayload is the wire shape of every error response.
type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
	ErrInternal       = errors.New("internal_error")
)

// ValidationError pins a bad input to the field that carried it.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (v *ValidationError) Error() string { return v.Code }

// ErrorHandlingMiddleware renders the last gin error as the JSON envelope.
// Handlers report failures through AbortWithError and never write error
// bodies themselves.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &ValidationError{Field: field, Code: code, Message: message}
}

func mapError(err error) (int, errorPayload) {
	var vErr *ValidationError
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Code:    vErr.Code,
			Message: vErr.Message,
			Details: gin.H{"field": vErr.Field},
		}
	}

	switch {
	case isInvalidInputError(err):
		return http.StatusBadRequest, errorPayload{
			Code:    errorCode(err, "invalid_request"),
			Message: "invalid request",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Code:    errorCode(err, "not_found"),
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Code:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isInvalidInputError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, reconciledomain.ErrInvalidRunID) ||
		errors.Is(err, reconciledomain.ErrInvalidOrderID)
}

func isNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, reconciledomain.ErrRunNotFound) ||
		errors.Is(err, reconciledomain.ErrOrderFactNotFound) ||
		errors.Is(err, reconciledomain.ErrNoCompletedRun) ||
		errors.Is(err, gorm.ErrRecordNotFound)
}

// errorCode keeps sentinel names as stable API codes; anything else falls
// back so internal error text never leaks.
func errorCode(err error, fallback string) string {
	for _, sentinel := range []error{
		reconciledomain.ErrInvalidRunID,
		reconciledomain.ErrInvalidOrderID,
		reconciledomain.ErrRunNotFound,
		reconciledomain.ErrOrderFactNotFound,
		reconciledomain.ErrNoCompletedRun,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return fallback
}

// classifyErrorForLog labels request errors for the access log.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) && vErr != nil {
		return "validation_error", vErr.Code
	}
	switch {
	case isInvalidInputError(err):
		return "validation_error", errorCode(err, "invalid_request")
	case isNotFoundError(err):
		return "not_found", errorCode(err, "not_found")
	default:
		return "internal_error", "internal_error"
	}
}
