// Package dispatch routes a sender's fan-out envelope to the live
// connections of the target chat's members.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/nfrund/parley/internal/membership"
	"github.com/nfrund/parley/internal/pubsub"
	"github.com/nfrund/parley/internal/registry"
	"github.com/nfrund/parley/internal/wire"
)

// TopicOutbound is the bus topic carrying fan-out envelopes read off live
// connections. The transport publishes to it; the dispatcher is its single
// subscriber, so envelopes from one sender's connection are handled in the
// order they were received.
const TopicOutbound = "chat.fanout.outbound"

// Dispatcher consumes send_message envelopes, resolves the target chat's
// membership, and forwards the payload verbatim to every member with a
// live connection. Delivery is best-effort and at most once per currently
// connected recipient: offline members are skipped with no queuing or
// retry, and pick up missed content on their next HTTP fetch.
type Dispatcher struct {
	registry   *registry.Registry
	resolver   membership.Resolver
	subscriber pubsub.Subscriber
	logger     *slog.Logger
}

// New creates a Dispatcher. Start must be called before any envelope is
// delivered.
func New(reg *registry.Registry, resolver membership.Resolver, sub pubsub.Subscriber) *Dispatcher {
	return &Dispatcher{
		registry:   reg,
		resolver:   resolver,
		subscriber: sub,
		logger:     slog.Default().With("component", "dispatcher"),
	}
}

// Start subscribes to the outbound topic. It returns once the
// subscription is active; processing continues until ctx is canceled.
func (d *Dispatcher) Start(ctx context.Context) error {
	return d.subscriber.Subscribe(ctx, TopicOutbound, d.handle)
}

// handle processes one envelope. It always returns nil: every failure
// mode here is either a malformed event or a recipient who is effectively
// offline, and neither is surfaced to the sender.
func (d *Dispatcher) handle(ctx context.Context, msg pubsub.Message) error {
	ev := wire.Decode(msg.Payload)

	send, ok := ev.(wire.SendMessage)
	if !ok {
		d.logger.Debug("Ignoring non-fanout envelope", "senderID", msg.UserID)
		return nil
	}

	members, err := d.resolver.Members(ctx, send.ChatID)
	if err != nil {
		// The sender's own persistence call succeeded or failed
		// independently, so a failed lookup only costs the push.
		d.logger.Warn("Membership lookup failed, dropping dispatch",
			"chatID", send.ChatID, "senderID", msg.UserID, "error", err)
		return nil
	}

	delivered := 0
	for _, member := range members {
		if member == msg.UserID {
			// The sender reconciles from its own HTTP response.
			continue
		}
		handle, ok := d.registry.Lookup(member)
		if !ok {
			continue
		}
		if err := handle.Send(send.Payload); err != nil {
			// The connection closed mid-send; treat the recipient as
			// offline and keep dispatching to the rest.
			d.logger.Debug("Send failed, recipient treated as offline",
				"chatID", send.ChatID, "userID", member, "error", err)
			continue
		}
		delivered++
	}

	d.logger.Debug("Fan-out complete",
		"chatID", send.ChatID, "senderID", msg.UserID,
		"members", len(members), "delivered", delivered)
	return nil
}
