package domain

import "errors"

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for common business logic failures.
var (
	ErrNotFound         = errors.New("requested resource not found")
	ErrNotAMember       = errors.New("user is not a member of this chat")
	ErrInvalidToken     = errors.New("invalid or expired token")
	ErrNotMessageSender = errors.New("message was sent by another user")
)
