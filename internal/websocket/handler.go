package websocket

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/parley/internal/auth"
	"github.com/nfrund/parley/internal/pubsub"
	"github.com/nfrund/parley/internal/registry"
)

// Handler returns an echo.HandlerFunc that upgrades a request to a
// WebSocket connection. The caller's token arrives as a connection
// parameter; verification failure refuses the connection and the client
// is responsible for reconnecting with a fresh token.
func Handler(reg *registry.Registry, verifier auth.Verifier, pub pubsub.Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, err := verifier.Verify(c.QueryParam("token"))
		if err != nil {
			slog.Warn("Refusing WebSocket connection, invalid token", "remote", c.RealIP())
			return c.String(http.StatusUnauthorized, "Invalid token")
		}

		conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
			// Browser clients connect cross-origin during development.
			InsecureSkipVerify: true,
		})
		if err != nil {
			slog.Error("Failed to upgrade WebSocket connection", "error", err)
			return c.String(http.StatusInternalServerError, "Failed to upgrade to WebSocket")
		}

		client := newClient(identity.UserID, conn, reg, pub)
		// Last-connect-wins: any prior connection for this user is closed
		// by the registry as part of registration.
		reg.Register(identity.UserID, client)
		slog.Info("WebSocket connected", "userID", identity.UserID)

		go client.writePump()
		go client.readPump()

		return nil
	}
}
