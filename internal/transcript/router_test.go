package transcript

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nfrund/parley/internal/domain"
	"github.com/nfrund/parley/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatData struct {
	chats map[string]domain.Chat
	err   error
}

func (f *fakeChatData) Chat(ctx context.Context, chatID string) (*domain.Chat, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.chats[chatID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func at(sec int) time.Time {
	return time.Date(2025, 6, 1, 12, 0, sec, 0, time.UTC)
}

func twoMessageChat() *fakeChatData {
	return &fakeChatData{chats: map[string]domain.Chat{
		"c1": {
			ID: "c1",
			Members: []domain.UserRef{
				{ID: "u1", Username: "ada"},
				{ID: "u2", Username: "bob"},
			},
			// Stored newest first.
			Messages: []domain.Message{
				{ID: "m2", Text: "second", From: "u2", SentAt: at(2)},
				{ID: "m1", Text: "can&#x27;t stop", From: "u1", SentAt: at(1)},
			},
		},
	}}
}

func TestOpen_ReversesHistoryAndUnescapes(t *testing.T) {
	r := New(twoMessageChat())

	view, err := r.Open(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, StateOpen, view.State)
	assert.Equal(t, "c1", view.ChatID)
	require.Len(t, view.Messages, 2)
	assert.Equal(t, "m1", view.Messages[0].ID, "display order is oldest first")
	assert.Equal(t, "can't stop", view.Messages[0].Text)
	assert.Equal(t, "m2", view.Messages[1].ID)
	assert.Len(t, view.Members, 2)
}

func TestOpen_FetchFailureClosesView(t *testing.T) {
	r := New(&fakeChatData{err: errors.New("timeout")})

	view, err := r.Open(context.Background(), "c1")

	assert.Error(t, err)
	assert.Equal(t, StateClosed, view.State)
}

func TestApply_AppendsMessageToOpenChat(t *testing.T) {
	r := New(twoMessageChat())
	view, err := r.Open(context.Background(), "c1")
	require.NoError(t, err)

	next := r.Apply(view, wire.MessageEvent{
		ChatID:  "c1",
		Message: domain.Message{ID: "m3", Text: "it&quot;works&quot;", From: "u2", SentAt: at(3)},
	})

	require.Len(t, next.Messages, 3)
	assert.Equal(t, "m3", next.Messages[2].ID, "new message lands at the bottom")
	assert.Equal(t, `it"works"`, next.Messages[2].Text)
	assert.Len(t, view.Messages, 2, "prior view must stay untouched")
}

func TestApply_EventForOtherChatIsDiscarded(t *testing.T) {
	r := New(twoMessageChat())
	view, err := r.Open(context.Background(), "c1")
	require.NoError(t, err)

	next := r.Apply(view, wire.MessageEvent{
		ChatID:  "c2",
		Message: domain.Message{ID: "m9", Text: "wrong room", From: "u9"},
	})

	assert.Equal(t, view, next, "open transcript must never show another chat's messages")
}

func TestApply_RemovesDeletedMessage(t *testing.T) {
	r := New(twoMessageChat())
	view, err := r.Open(context.Background(), "c1")
	require.NoError(t, err)

	next := r.Apply(view, wire.DeleteMessage{ChatID: "c1", MsgID: "m1", IsLastMessage: false})

	require.Len(t, next.Messages, 1)
	assert.Equal(t, "m2", next.Messages[0].ID)
	assert.Len(t, view.Messages, 2, "prior view must stay untouched")
}

func TestApply_DeleteOfUnknownMessageIsANoOp(t *testing.T) {
	r := New(twoMessageChat())
	view, err := r.Open(context.Background(), "c1")
	require.NoError(t, err)

	next := r.Apply(view, wire.DeleteMessage{ChatID: "c1", MsgID: "ghost", IsLastMessage: false})

	assert.Equal(t, view.Messages, next.Messages)
}

func TestApply_ClosedAndLoadingViewsIgnoreEvents(t *testing.T) {
	r := New(twoMessageChat())
	ev := wire.MessageEvent{ChatID: "c1", Message: domain.Message{ID: "m3", From: "u1"}}

	assert.Equal(t, Closed(), r.Apply(Closed(), ev))
	assert.Equal(t, Loading("c1"), r.Apply(Loading("c1"), ev))
}

func TestOpen_SwitchingChatsDiscardsPriorTranscript(t *testing.T) {
	data := twoMessageChat()
	data.chats["c2"] = domain.Chat{
		ID:      "c2",
		Members: []domain.UserRef{{ID: "u1", Username: "ada"}, {ID: "u3", Username: "cyd"}},
		Messages: []domain.Message{
			{ID: "n1", Text: "other room", From: "u3", SentAt: at(5)},
		},
	}
	r := New(data)

	first, err := r.Open(context.Background(), "c1")
	require.NoError(t, err)
	second, err := r.Open(context.Background(), "c2")
	require.NoError(t, err)

	assert.Equal(t, "c2", second.ChatID)
	require.Len(t, second.Messages, 1)
	assert.Equal(t, "n1", second.Messages[0].ID)
	assert.NotContains(t, second.Messages, first.Messages[0])
}
