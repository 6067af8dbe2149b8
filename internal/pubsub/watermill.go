package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const metaKeyUserID = "user_id"

// WatermillBus implements Publisher and Subscriber on top of watermill's
// in-memory GoChannel, which preserves publish order per topic.
type WatermillBus struct {
	pub message.Publisher
	sub message.Subscriber
}

// NewWatermillBus initializes the in-memory bus.
func NewWatermillBus() *WatermillBus {
	logger := watermill.NewStdLogger(false, false)
	goChannel := gochannel.NewGoChannel(gochannel.Config{}, logger)

	return &WatermillBus{pub: goChannel, sub: goChannel}
}

// Publish implements the Publisher interface.
func (b *WatermillBus) Publish(ctx context.Context, msg Message) error {
	wmMsg := message.NewMessage(watermill.NewUUID(), msg.Payload)
	wmMsg.Metadata.Set(metaKeyUserID, msg.UserID)
	return b.pub.Publish(msg.Topic, wmMsg)
}

// Subscribe implements the Subscriber interface. The handler runs on a
// single goroutine per subscription, so messages are processed strictly in
// delivery order.
func (b *WatermillBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := b.sub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for wmMsg := range messages {
			msg := Message{
				Topic:   topic,
				UserID:  wmMsg.Metadata.Get(metaKeyUserID),
				Payload: wmMsg.Payload,
			}
			if err := handler(ctx, msg); err != nil {
				slog.Error("Failed to handle message", "topic", topic, "msg_id", wmMsg.UUID, "error", err)
				wmMsg.Nack()
			} else {
				wmMsg.Ack()
			}
		}
		slog.Debug("Subscription message loop ended", "topic", topic)
	}()

	return nil
}

// Close shuts the bus down, ending all subscription loops.
func (b *WatermillBus) Close() error {
	return b.sub.Close()
}
