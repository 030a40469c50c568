package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/observability/metrics"
)

// NewMetrics records request count, latency, response size and error class
// per route template. A nil m disables recording.
func NewMetrics(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if m == nil {
			return next
		}
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := c.Request().Method
			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}

			m.RecordHTTPRequest(method, path, status, time.Since(start).Seconds())
			m.RecordHTTPResponseSize(method, path, c.Response().Size)
			if class := errorClass(status); class != "" {
				m.RecordHTTPRequestError(method, path, class)
			}
			return err
		}
	}
}

func errorClass(status int) string {
	switch {
	case status == http.StatusNotFound:
		return "not-found"
	case status == http.StatusUnauthorized:
		return "unauthorized"
	case status >= 500:
		return "system"
	case status >= 400:
		return "validation"
	default:
		return ""
	}
}
