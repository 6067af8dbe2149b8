package domain

import "time"

// PendingChatID is the reserved chat id used for the sentinel summary: a
// chat the user is composing to a newly selected recipient before the first
// message has created a persisted chat. It is never stored server-side.
const PendingChatID = "pending"

// Message is a single chat message. Messages are immutable once created;
// the only permitted change is removal from a chat.
type Message struct {
	ID     string    `json:"id"`
	Text   string    `json:"text"`
	From   string    `json:"from"`
	SentAt time.Time `json:"sentAt"`
}

// UserRef is a lightweight reference to a user, enough to attribute a
// message in the chat list without loading the full account.
type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// ChatSummary is one entry in a user's chat list. LastMessage and
// LastMessageSender are nil for a chat that has no messages yet.
type ChatSummary struct {
	ChatID            string   `json:"chatID"`
	DisplayName       string   `json:"displayName"`
	IconImage         string   `json:"iconImage,omitempty"`
	MemberIDs         []string `json:"memberIDs"`
	LastMessage       *Message `json:"lastMessage"`
	LastMessageSender *UserRef `json:"lastMessageSender"`

	// RecipientID is only set on the sentinel summary, identifying the
	// user the not-yet-created chat is addressed to.
	RecipientID string `json:"recipientID,omitempty"`
}

// IsSentinel reports whether the summary is the non-persisted placeholder
// for a chat that has not been created yet.
func (s ChatSummary) IsSentinel() bool {
	return s.ChatID == PendingChatID
}

// Chat is a persisted conversation: its member roster and full message
// history. Messages are stored newest first.
type Chat struct {
	ID       string    `json:"id"`
	Members  []UserRef `json:"members"`
	Messages []Message `json:"messages"`
}
