// Package wire defines the JSON envelope exchanged over a live connection
// and decodes it exactly once, at the transport boundary, into a typed
// event. Consumers switch on the concrete type; anything malformed or
// unknown decodes to Unrecognized, which every consumer treats as a no-op.
package wire

import (
	"encoding/json"

	"github.com/nfrund/parley/internal/domain"
)

// Envelope type tags.
const (
	TypeSendMessage    = "send_message"
	TypeMessage        = "message"
	TypeNewChatMessage = "new_chat_message"
	TypeDeleteMessage  = "delete_message"
)

// Event is one decoded envelope. The concrete types below are the only
// implementations.
type Event interface {
	isEvent()
}

// SendMessage is a client-to-server request to fan a payload out to the
// members of a chat. Payload is opaque to the dispatcher and forwarded
// verbatim; by convention it contains one of the server-to-client events.
type SendMessage struct {
	ChatID  string
	Payload []byte
}

// MessageEvent is a server-to-client notification that a new message was
// persisted in a chat.
type MessageEvent struct {
	ChatID       string
	Message      domain.Message
	FromUsername string
}

// NewChatMessage signals that a chat the recipient was not previously
// tracking now has its first message.
type NewChatMessage struct {
	ChatID string
}

// DeleteMessage signals that a message was removed from a chat.
// IsLastMessage is true when the removed message was the chat's most
// recent one, in which case list views must refetch the new last message.
type DeleteMessage struct {
	ChatID        string
	MsgID         string
	IsLastMessage bool
}

// Unrecognized is the decode result for an unknown type tag, malformed
// JSON, or an envelope missing a required field.
type Unrecognized struct {
	Type string
}

func (SendMessage) isEvent()    {}
func (MessageEvent) isEvent()   {}
func (NewChatMessage) isEvent() {}
func (DeleteMessage) isEvent()  {}
func (Unrecognized) isEvent()   {}

// envelope is the on-the-wire superset of all event fields.
type envelope struct {
	Type          string          `json:"type"`
	ChatID        string          `json:"chatID,omitempty"`
	Message       json.RawMessage `json:"message,omitempty"`
	FromUsername  string          `json:"fromUsername,omitempty"`
	MsgID         string          `json:"msgID,omitempty"`
	IsLastMessage bool            `json:"isLastMessage,omitempty"`
}

// Decode parses a raw envelope into a typed event. It never fails: bad
// input yields Unrecognized so that a hostile or buggy peer cannot crash
// event processing.
func Decode(data []byte) Event {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Unrecognized{}
	}

	switch env.Type {
	case TypeSendMessage:
		// The payload arrives as a JSON-encoded string.
		var payload string
		if env.ChatID == "" || json.Unmarshal(env.Message, &payload) != nil || payload == "" {
			return Unrecognized{Type: env.Type}
		}
		return SendMessage{ChatID: env.ChatID, Payload: []byte(payload)}

	case TypeMessage:
		var msg domain.Message
		if env.ChatID == "" || json.Unmarshal(env.Message, &msg) != nil || msg.ID == "" {
			return Unrecognized{Type: env.Type}
		}
		return MessageEvent{ChatID: env.ChatID, Message: msg, FromUsername: env.FromUsername}

	case TypeNewChatMessage:
		if env.ChatID == "" {
			return Unrecognized{Type: env.Type}
		}
		return NewChatMessage{ChatID: env.ChatID}

	case TypeDeleteMessage:
		if env.ChatID == "" || env.MsgID == "" {
			return Unrecognized{Type: env.Type}
		}
		return DeleteMessage{ChatID: env.ChatID, MsgID: env.MsgID, IsLastMessage: env.IsLastMessage}

	default:
		return Unrecognized{Type: env.Type}
	}
}

// Encode serializes a typed event back into its wire envelope.
func Encode(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case SendMessage:
		payload, err := json.Marshal(string(e.Payload))
		if err != nil {
			return nil, err
		}
		return json.Marshal(envelope{Type: TypeSendMessage, ChatID: e.ChatID, Message: payload})

	case MessageEvent:
		msg, err := json.Marshal(e.Message)
		if err != nil {
			return nil, err
		}
		return json.Marshal(envelope{
			Type:         TypeMessage,
			ChatID:       e.ChatID,
			Message:      msg,
			FromUsername: e.FromUsername,
		})

	case NewChatMessage:
		return json.Marshal(envelope{Type: TypeNewChatMessage, ChatID: e.ChatID})

	case DeleteMessage:
		return json.Marshal(envelope{
			Type:          TypeDeleteMessage,
			ChatID:        e.ChatID,
			MsgID:         e.MsgID,
			IsLastMessage: e.IsLastMessage,
		})

	default:
		return json.Marshal(envelope{Type: ""})
	}
}
