package httpcontroller

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Tenemo/bob/internal/errors"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandlerError carries the status code chosen by a handler
type HandlerError struct {
	Err     error
	Message string
	Code    int
}

// Error implements the error interface for HandlerError.
func (e *HandlerError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *HandlerError) Unwrap() error { return e.Err }

func newHandlerError(err error, message string, code int) *HandlerError {
	return &HandlerError{Err: err, Message: message, Code: code}
}

// statusFromCategory maps enhanced error categories to HTTP status codes
func statusFromCategory(category string) int {
	switch errors.ErrorCategory(category) {
	case errors.CategoryValidation, errors.CategoryFileParsing:
		return http.StatusBadRequest
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryConflict, errors.CategoryState:
		return http.StatusConflict
	case errors.CategoryLimit:
		return http.StatusRequestEntityTooLarge
	case errors.CategoryResource, errors.CategorySystem:
		return http.StatusInsufficientStorage
	case errors.CategoryAudioOutput, errors.CategoryDatabase:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// statusAndMessage determines the response for err
func statusAndMessage(err error) (int, string) {
	var he *HandlerError
	var echoErr *echo.HTTPError
	var enhancedErr *errors.EnhancedError

	switch {
	case errors.As(err, &he):
		return he.Code, he.Message
	case errors.As(err, &echoErr):
		if msg, ok := echoErr.Message.(string); ok {
			return echoErr.Code, msg
		}
		return echoErr.Code, http.StatusText(echoErr.Code)
	case errors.As(err, &enhancedErr):
		code := statusFromCategory(enhancedErr.GetCategory())
		if code == http.StatusInternalServerError {
			return code, "An unexpected error occurred"
		}
		return code, enhancedErr.Error()
	default:
		return http.StatusInternalServerError, "An unexpected error occurred"
	}
}

// handleError is the echo error handler: every error becomes {"error": "..."}
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, message := statusAndMessage(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"status", code,
			"error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, ErrorResponse{Error: message})
	}
	if err != nil {
		s.logger.Warn("failed to write error response", "error", err)
	}
}
