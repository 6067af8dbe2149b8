package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/parley/internal/auth"
)

// IdentityContextKey is where the authenticated identity is stored on the
// echo context.
const IdentityContextKey = "identity"

// TokenHeader is the request header carrying the access token. The token
// may alternatively arrive as a "token" query parameter, which is how
// WebSocket upgrades send it since browsers cannot set headers there.
const TokenHeader = "x-access-token"

// Auth creates a middleware that protects routes requiring an
// authenticated user. Any verification failure is a 401; the server never
// retries or refreshes tokens on the caller's behalf.
func Auth(verifier auth.Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := c.Request().Header.Get(TokenHeader)
			if token == "" {
				token = c.QueryParam("token")
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"code":    "invalid_token",
					"message": "Invalid or expired token",
				})
			}

			c.Set(IdentityContextKey, identity)
			return next(c)
		}
	}
}

// IdentityFrom returns the authenticated identity set by Auth, or nil on
// an unprotected route.
func IdentityFrom(c echo.Context) *auth.Identity {
	identity, _ := c.Get(IdentityContextKey).(*auth.Identity)
	return identity
}
