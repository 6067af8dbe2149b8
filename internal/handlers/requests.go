package handlers

import (
	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the go-playground/validator library to implement
// Echo's Validator interface.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new CustomValidator.
func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate implements the echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// SendMessageRequest is the body for posting a message into an existing
// chat.
type SendMessageRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

// NewChatRequest is the body for starting a direct chat with its first
// message.
type NewChatRequest struct {
	RecipientID string `json:"recipientID" validate:"required"`
	Text        string `json:"text" validate:"required,max=4000"`
}
