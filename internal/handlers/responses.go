package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/parley/internal/domain"
	"github.com/nfrund/parley/internal/middleware"
)

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// LastMessageResponse pairs a chat's most recent message with its sender.
// Both fields are null for a chat with no messages.
type LastMessageResponse struct {
	Message *domain.Message `json:"message"`
	Sender  *domain.UserRef `json:"sender"`
}

// DeleteMessageResponse reports whether the removed message was the
// chat's most recent one.
type DeleteMessageResponse struct {
	WasLastMessage bool `json:"wasLastMessage"`
}

// errorJSON maps domain errors onto HTTP statuses. Anything unrecognized
// is a 500 with a generic body so internals never leak to clients.
func errorJSON(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Code: "not_found", Message: "Resource not found"})
	case errors.Is(err, domain.ErrNotAMember):
		return c.JSON(http.StatusForbidden, ErrorResponse{Code: "not_a_member", Message: "You are not a member of this chat"})
	case errors.Is(err, domain.ErrNotMessageSender):
		return c.JSON(http.StatusForbidden, ErrorResponse{Code: "not_message_sender", Message: "Only the sender can delete a message"})
	case errors.Is(err, domain.ErrInvalidToken):
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Code: "invalid_token", Message: "Invalid or expired token"})
	default:
		middleware.FromContext(c.Request().Context()).Error("Unhandled error in chat API", "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "internal", Message: "Something went wrong"})
	}
}
