// Package transcript owns the open-chat view: the message history and
// member roster of the single chat the user is currently reading, kept
// live as push events arrive.
//
// The view moves through closed, loading and open states. Push events
// only ever touch an open view whose chat id matches; everything else is
// discarded, so a transcript never shows messages from another chat.
package transcript

import (
	"context"
	"log/slog"

	"github.com/nfrund/parley/internal/chatlist"
	"github.com/nfrund/parley/internal/domain"
	"github.com/nfrund/parley/internal/wire"
	"github.com/samber/lo"
)

// State is the lifecycle phase of the transcript view.
type State string

const (
	// StateClosed means no chat is selected.
	StateClosed State = "closed"
	// StateLoading means a chat was selected and its history fetch is in
	// flight. Events arriving now are dropped; the fetch result includes
	// everything persisted so far.
	StateLoading State = "loading"
	// StateOpen means history is on screen and push events apply.
	StateOpen State = "open"
)

// ChatData fetches the full chat backing an open view.
type ChatData interface {
	Chat(ctx context.Context, chatID string) (*domain.Chat, error)
}

// View is one immutable snapshot of the transcript. Messages are ordered
// oldest first, ready for top-to-bottom rendering.
type View struct {
	State    State
	ChatID   string
	Members  []domain.UserRef
	Messages []domain.Message
}

// Closed returns the empty view.
func Closed() View {
	return View{State: StateClosed}
}

// Loading marks a chat as selected while its history fetch runs.
func Loading(chatID string) View {
	return View{State: StateLoading, ChatID: chatID}
}

// Router turns chat selections and push events into transcript views.
// Like the chat list, it holds no state of its own; callers thread the
// prior view through on a single goroutine in event-arrival order.
type Router struct {
	data   ChatData
	logger *slog.Logger
}

// New creates a Router backed by the given chat-data lookup.
func New(data ChatData) *Router {
	return &Router{
		data:   data,
		logger: slog.Default().With("component", "transcript"),
	}
}

// Open switches the view to chatID. Any prior transcript is discarded
// and history plus roster are refetched, even when reopening the chat
// that was already open. History is stored newest first and reversed
// here for display.
func (r *Router) Open(ctx context.Context, chatID string) (View, error) {
	chat, err := r.data.Chat(ctx, chatID)
	if err != nil {
		r.logger.Warn("Failed to load chat history", "chatID", chatID, "error", err)
		return Closed(), err
	}

	msgs := make([]domain.Message, len(chat.Messages))
	for i, m := range chat.Messages {
		m.Text = chatlist.UnescapeText(m.Text)
		msgs[len(chat.Messages)-1-i] = m
	}

	return View{
		State:    StateOpen,
		ChatID:   chat.ID,
		Members:  chat.Members,
		Messages: msgs,
	}, nil
}

// Apply folds one push event into the view. Only an open view with a
// matching chat id changes; a delete for an id not on screen is a no-op,
// as is any event type the transcript does not render.
func (r *Router) Apply(prior View, ev wire.Event) View {
	if prior.State != StateOpen {
		return prior
	}

	switch e := ev.(type) {
	case wire.MessageEvent:
		if e.ChatID != prior.ChatID {
			return prior
		}
		return appendMessage(prior, e.Message)
	case wire.DeleteMessage:
		if e.ChatID != prior.ChatID {
			return prior
		}
		return removeMessage(prior, e.MsgID)
	default:
		return prior
	}
}

func appendMessage(prior View, msg domain.Message) View {
	msg.Text = chatlist.UnescapeText(msg.Text)

	next := prior
	next.Messages = make([]domain.Message, 0, len(prior.Messages)+1)
	next.Messages = append(next.Messages, prior.Messages...)
	next.Messages = append(next.Messages, msg)
	return next
}

func removeMessage(prior View, msgID string) View {
	next := prior
	next.Messages = lo.Filter(prior.Messages, func(m domain.Message, _ int) bool {
		return m.ID != msgID
	})
	return next
}
