package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nfrund/parley/internal/membership"
	"github.com/nfrund/parley/internal/pubsub"
	"github.com/nfrund/parley/internal/registry"
	"github.com/nfrund/parley/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandle collects everything sent to one connection.
type recordingHandle struct {
	mu      sync.Mutex
	sent    [][]byte
	sendErr error
}

func (h *recordingHandle) Send(payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sendErr != nil {
		return h.sendErr
	}
	h.sent = append(h.sent, payload)
	return nil
}

func (h *recordingHandle) Close() {}

func (h *recordingHandle) payloads() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]byte, len(h.sent))
	copy(out, h.sent)
	return out
}

func staticResolver(members map[string][]string) membership.Resolver {
	return membership.ResolverFunc(func(ctx context.Context, chatID string) ([]string, error) {
		ids, ok := members[chatID]
		if !ok {
			return nil, membership.ErrChatNotFound
		}
		return ids, nil
	})
}

func fanoutEnvelope(t *testing.T, senderID, chatID string, payload []byte) pubsub.Message {
	t.Helper()
	data, err := wire.Encode(wire.SendMessage{ChatID: chatID, Payload: payload})
	require.NoError(t, err)
	return pubsub.Message{Topic: TopicOutbound, UserID: senderID, Payload: data}
}

func TestDispatcher_DeliversOnlyToConnectedMembers(t *testing.T) {
	reg := registry.New()
	a, b := &recordingHandle{}, &recordingHandle{}
	reg.Register("A", a)
	reg.Register("B", b)
	// D is a member but offline.
	outsider := &recordingHandle{}
	reg.Register("E", outsider) // connected but not a member

	d := New(reg, staticResolver(map[string][]string{"c1": {"A", "B", "D"}}), nil)

	payload := []byte(`{"type":"new_chat_message","chatID":"c1"}`)
	err := d.handle(context.Background(), fanoutEnvelope(t, "A", "c1", payload))
	require.NoError(t, err)

	require.Len(t, b.payloads(), 1, "connected member must receive exactly one delivery")
	assert.Equal(t, payload, b.payloads()[0], "payload must be forwarded verbatim")
	assert.Empty(t, a.payloads(), "sender must not be echoed its own event")
	assert.Empty(t, outsider.payloads(), "non-members must receive nothing")
}

func TestDispatcher_UnknownChatIsDroppedSilently(t *testing.T) {
	reg := registry.New()
	b := &recordingHandle{}
	reg.Register("B", b)

	d := New(reg, staticResolver(nil), nil)

	err := d.handle(context.Background(), fanoutEnvelope(t, "A", "ghost", []byte(`{}`)))

	assert.NoError(t, err, "membership failure must not surface to the sender")
	assert.Empty(t, b.payloads())
}

func TestDispatcher_MalformedEnvelopeIsIgnored(t *testing.T) {
	reg := registry.New()
	b := &recordingHandle{}
	reg.Register("B", b)

	d := New(reg, staticResolver(map[string][]string{"c1": {"A", "B"}}), nil)

	err := d.handle(context.Background(), pubsub.Message{
		Topic:   TopicOutbound,
		UserID:  "A",
		Payload: []byte(`{"type":"mystery_event"}`),
	})

	assert.NoError(t, err)
	assert.Empty(t, b.payloads())
}

func TestDispatcher_FailedSendDoesNotAbortOtherRecipients(t *testing.T) {
	reg := registry.New()
	closing := &recordingHandle{sendErr: errors.New("connection closing")}
	healthy := &recordingHandle{}
	reg.Register("B", closing)
	reg.Register("C", healthy)

	d := New(reg, staticResolver(map[string][]string{"c1": {"A", "B", "C"}}), nil)

	err := d.handle(context.Background(), fanoutEnvelope(t, "A", "c1", []byte(`{"x":1}`)))

	assert.NoError(t, err)
	assert.Len(t, healthy.payloads(), 1, "dispatch must continue past a mid-send failure")
}

func TestDispatcher_PreservesSenderOrderThroughBus(t *testing.T) {
	reg := registry.New()
	recipient := &recordingHandle{}
	reg.Register("B", recipient)

	bus := pubsub.NewWatermillBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := New(reg, staticResolver(map[string][]string{"c1": {"A", "B"}}), bus)
	require.NoError(t, d.Start(ctx))

	payloads := [][]byte{[]byte(`"one"`), []byte(`"two"`), []byte(`"three"`)}
	for _, p := range payloads {
		require.NoError(t, bus.Publish(ctx, fanoutEnvelope(t, "A", "c1", p)))
	}

	assert.Eventually(t, func() bool {
		return len(recipient.payloads()) == len(payloads)
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, payloads, recipient.payloads(), "events from one sender must arrive in send order")
}
