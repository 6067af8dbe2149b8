// Package pubsub is the in-process message bus between the transport layer
// and the fan-out dispatcher.
package pubsub

import "context"

// Message is the structure passed between components on the bus.
type Message struct {
	// Topic identifies the channel the message belongs to.
	Topic string
	// UserID identifies the authenticated user the message originated from.
	UserID string
	// Payload contains the raw envelope bytes as read off the connection.
	Payload []byte
}

// Handler processes one received message. A non-nil error marks the
// message as not processed.
type Handler func(ctx context.Context, msg Message) error

// Publisher is the contract for sending messages to the bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber is the contract for receiving messages from the bus.
// Messages published from a single goroutine are delivered to the handler
// in publish order; the dispatcher relies on this for its per-sender
// ordering guarantee.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}
