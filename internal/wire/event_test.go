package wire

import (
	"testing"
	"time"

	"github.com/nfrund/parley/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_SendMessage(t *testing.T) {
	raw := `{"type":"send_message","chatID":"c1","message":"{\"type\":\"message\",\"chatID\":\"c1\"}"}`

	ev := Decode([]byte(raw))

	send, ok := ev.(SendMessage)
	require.True(t, ok, "expected SendMessage, got %T", ev)
	assert.Equal(t, "c1", send.ChatID)
	assert.JSONEq(t, `{"type":"message","chatID":"c1"}`, string(send.Payload))
}

func TestDecode_Message(t *testing.T) {
	raw := `{"type":"message","chatID":"c1","fromUsername":"ada",` +
		`"message":{"id":"m1","text":"hello","from":"u1","sentAt":"2025-06-01T10:00:00Z"}}`

	ev := Decode([]byte(raw))

	msg, ok := ev.(MessageEvent)
	require.True(t, ok, "expected MessageEvent, got %T", ev)
	assert.Equal(t, "c1", msg.ChatID)
	assert.Equal(t, "ada", msg.FromUsername)
	assert.Equal(t, "m1", msg.Message.ID)
	assert.Equal(t, "hello", msg.Message.Text)
	assert.Equal(t, "u1", msg.Message.From)
}

func TestDecode_DeleteMessage(t *testing.T) {
	raw := `{"type":"delete_message","chatID":"c1","msgID":"m2","isLastMessage":true}`

	ev := Decode([]byte(raw))

	del, ok := ev.(DeleteMessage)
	require.True(t, ok, "expected DeleteMessage, got %T", ev)
	assert.Equal(t, "c1", del.ChatID)
	assert.Equal(t, "m2", del.MsgID)
	assert.True(t, del.IsLastMessage)
}

func TestDecode_ToleratesBadInput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "unknown type", raw: `{"type":"presence_ping","chatID":"c1"}`},
		{name: "not json", raw: `this is not an envelope`},
		{name: "empty object", raw: `{}`},
		{name: "message missing chatID", raw: `{"type":"message","message":{"id":"m1"}}`},
		{name: "message missing body", raw: `{"type":"message","chatID":"c1"}`},
		{name: "delete missing msgID", raw: `{"type":"delete_message","chatID":"c1"}`},
		{name: "send with object payload", raw: `{"type":"send_message","chatID":"c1","message":{"oops":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Decode([]byte(tt.raw))
			_, ok := ev.(Unrecognized)
			assert.True(t, ok, "expected Unrecognized, got %T", ev)
		})
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	sentAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	original := MessageEvent{
		ChatID:       "c9",
		FromUsername: "grace",
		Message:      domain.Message{ID: "m9", Text: "it works", From: "u2", SentAt: sentAt},
	}

	data, err := Encode(original)
	require.NoError(t, err)

	decoded := Decode(data)
	assert.Equal(t, original, decoded)
}

func TestEncode_SendMessageWrapsPayloadAsString(t *testing.T) {
	inner, err := Encode(NewChatMessage{ChatID: "c3"})
	require.NoError(t, err)

	data, err := Encode(SendMessage{ChatID: "c3", Payload: inner})
	require.NoError(t, err)

	decoded := Decode(data)
	send, ok := decoded.(SendMessage)
	require.True(t, ok, "expected SendMessage, got %T", decoded)
	assert.Equal(t, NewChatMessage{ChatID: "c3"}, Decode(send.Payload))
}
