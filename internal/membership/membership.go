// Package membership defines the lookup from a chat id to the set of user
// ids that belong to it. The fan-out dispatcher consumes this contract
// only; the persistent store provides the implementation.
package membership

import (
	"context"
	"errors"
)

// ErrChatNotFound is returned when the chat id is unknown. The dispatcher
// drops such events silently; the sender's own persistence call succeeded
// or failed independently.
var ErrChatNotFound = errors.New("chat not found")

// Resolver resolves a chat id to its member user ids. Lookups may suspend
// on I/O and must honor ctx cancellation.
type Resolver interface {
	Members(ctx context.Context, chatID string) ([]string, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, chatID string) ([]string, error)

// Members implements Resolver.
func (f ResolverFunc) Members(ctx context.Context, chatID string) ([]string, error) {
	return f(ctx, chatID)
}
