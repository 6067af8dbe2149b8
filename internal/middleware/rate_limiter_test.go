package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sendFrom(e *echo.Echo, clientAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/send", nil)
	req.RemoteAddr = clientAddr
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_BlocksAfterBurstPerClient(t *testing.T) {
	e := echo.New()
	e.POST("/send", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, RateLimiter())

	const burst = 5
	for i := 0; i < burst; i++ {
		rec := sendFrom(e, "192.0.2.7:1234")
		require.Equal(t, http.StatusOK, rec.Code, "request %d within the burst must pass", i+1)
	}

	blocked := sendFrom(e, "192.0.2.7:1234")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Contains(t, blocked.Body.String(), "rate_limited")

	// Another client has its own budget.
	other := sendFrom(e, "192.0.2.8:1234")
	assert.Equal(t, http.StatusOK, other.Code)
}
