package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIKeyHeader carries the client's static API key.
const APIKeyHeader = "X-API-Key"

// UnauthorizedDetail is the body detail of a rejected request.
const UnauthorizedDetail = "Invalid or missing API Key"

// DefaultPublicPaths are served without a key.
var DefaultPublicPaths = []string{"/docs", "/openapi.json", "/redoc", "/health"}

// APIKeyConfig configures NewAPIKeyAuth.
type APIKeyConfig struct {
	// Keys is the allow-list. It is copied at construction.
	Keys []string
	// PublicPaths bypass the check. Matched against the exact request path.
	PublicPaths []string
	// OnResult is called with the outcome of every check, if set.
	OnResult func(ok bool)
}

// NewAPIKeyAuth rejects requests whose X-API-Key is not in the allow-list
// with 401 {"detail": "Invalid or missing API Key"}.
func NewAPIKeyAuth(config APIKeyConfig) echo.MiddlewareFunc {
	keys := make([][]byte, 0, len(config.Keys))
	for _, k := range config.Keys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}
	public := make(map[string]struct{}, len(config.PublicPaths))
	for _, p := range config.PublicPaths {
		public[p] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := public[c.Request().URL.Path]; ok {
				return next(c)
			}

			ok := validKey(keys, c.Request().Header.Get(APIKeyHeader))
			if config.OnResult != nil {
				config.OnResult(ok)
			}
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"detail": UnauthorizedDetail,
				})
			}
			return next(c)
		}
	}
}

// validKey compares presented against every key, including after a match.
func validKey(keys [][]byte, presented string) bool {
	if presented == "" {
		return false
	}
	p := []byte(presented)
	match := 0
	for _, k := range keys {
		match |= subtle.ConstantTimeCompare(k, p)
	}
	return match == 1
}
