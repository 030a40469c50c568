package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rsamf/mink/internal/datastore"
	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/jobqueue"
	"github.com/rsamf/mink/internal/logger"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Detail        string `json:"detail"`
	Error         string `json:"error,omitempty"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // Unique identifier for tracking this error
}

// NewErrorResponse creates a new API error response.
func NewErrorResponse(err error, detail string, code int) *ErrorResponse {
	resp := &ErrorResponse{
		Detail:        detail,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
	if err != nil && code < http.StatusInternalServerError {
		resp.Error = err.Error()
	}
	return resp
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.Is(err, datastore.ErrJobNotFound):
		return http.StatusNotFound, "Job not found"
	case errors.Is(err, datastore.ErrMeetingNotFound):
		return http.StatusNotFound, "Meeting not found"
	case errors.Is(err, datastore.ErrInvalidTransition):
		return http.StatusConflict, "Job is not in a state that allows this"
	case errors.Is(err, jobqueue.ErrQueueFull), errors.Is(err, jobqueue.ErrQueueStopped):
		return http.StatusServiceUnavailable, "Job queue is not accepting work"
	case errors.As(err, &he):
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg
		}
		return he.Code, http.StatusText(he.Code)
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// HandleError writes err as an ErrorResponse and logs server-side failures.
func (s *Server) HandleError(c echo.Context, err error) error {
	code, detail := statusFor(err)
	resp := NewErrorResponse(err, detail, code)

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("method", c.Request().Method),
		logger.String("path", c.Path()),
		logger.String("ip", c.RealIP()),
		logger.Int("status", code),
		logger.Error(err),
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("API error", fields...)
	} else {
		s.log.Debug("API error", fields...)
	}

	return c.JSON(code, resp)
}

// httpErrorHandler replaces echo's default so every error has the same shape.
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if herr := s.HandleError(c, err); herr != nil {
		s.log.Warn("failed to write error response", logger.Error(herr))
	}
}
