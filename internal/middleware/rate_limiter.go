package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// RateLimiter caps how fast one client can hit the send endpoints: a
// burst of 5 requests per client IP, refilling at 5 per second. Beyond
// that the caller gets a 429 in the API's error shape. The in-memory
// store matches the process-local connection registry; a multi-process
// deployment would need a shared store here too.
func RateLimiter() echo.MiddlewareFunc {
	config := echomw.RateLimiterConfig{
		Store: echomw.NewRateLimiterMemoryStore(5),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"code":    "rate_limited",
				"message": "Too many requests, slow down",
			})
		},
	}
	return echomw.RateLimiterWithConfig(config)
}
