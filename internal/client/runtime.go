package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/nfrund/parley/internal/chatlist"
	"github.com/nfrund/parley/internal/domain"
	"github.com/nfrund/parley/internal/transcript"
	"github.com/nfrund/parley/internal/wire"
)

// Snapshot is one consistent view of the client's chat state: the
// ordered summary list and the open transcript.
type Snapshot struct {
	Chats []domain.ChatSummary
	View  transcript.View
}

// Runtime owns a live connection and the client-side chat state. All
// state transitions run on a single event loop in arrival order, so the
// reconcilers never see events out of sequence and need no locking of
// their own.
type Runtime struct {
	userID   string
	username string
	api      *API
	recon    *chatlist.Reconciler
	router   *transcript.Router
	conn     *websocket.Conn
	logger   *slog.Logger

	commands chan func(ctx context.Context)
	frames   chan []byte

	onChange func(Snapshot)

	// Owned by the event loop.
	chats []domain.ChatSummary
	view  transcript.View

	closeOnce sync.Once
	done      chan struct{}
}

// Connect dials the server's WebSocket endpoint, fetches the initial
// chat list, and returns a ready runtime. Call Run to start processing.
func Connect(ctx context.Context, wsURL string, api *API, userID, username, token string) (*Runtime, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, fmt.Sprintf("%s?token=%s", wsURL, token), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	summaries, err := api.Chats(ctx, userID)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to fetch chat list: %w", err)
	}

	return &Runtime{
		userID:   userID,
		username: username,
		api:      api,
		recon:    chatlist.New(api),
		router:   transcript.New(api),
		conn:     conn,
		logger:   slog.Default().With("component", "client"),
		commands: make(chan func(ctx context.Context), 16),
		frames:   make(chan []byte, 16),
		chats:    chatlist.Load(summaries),
		view:     transcript.Closed(),
		done:     make(chan struct{}),
	}, nil
}

// OnChange registers the callback invoked with a fresh snapshot after
// every state transition. Must be set before Run.
func (r *Runtime) OnChange(fn func(Snapshot)) {
	r.onChange = fn
}

// Run processes incoming events and queued commands until the context
// is canceled or the connection drops.
func (r *Runtime) Run(ctx context.Context) error {
	defer r.Close()

	go r.readFrames()
	r.notify()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.done:
			return nil
		case payload, ok := <-r.frames:
			if !ok {
				return nil
			}
			r.dispatch(ctx, wire.Decode(payload))
		case cmd := <-r.commands:
			cmd(ctx)
			r.notify()
		}
	}
}

// Close tears the connection down. Safe to call more than once.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.conn.Close()
	})
}

// OpenChat switches the transcript to the given chat. The view shows
// loading until the history fetch lands on the event loop.
func (r *Runtime) OpenChat(chatID string) {
	r.enqueue(func(ctx context.Context) {
		r.view = transcript.Loading(chatID)
		r.notify()

		view, err := r.router.Open(ctx, chatID)
		if err != nil {
			r.logger.Warn("Failed to open chat", "chatID", chatID, "error", err)
		}
		r.view = view
		r.chats = chatlist.DropSentinel(r.chats)
	})
}

// CloseChat returns the transcript to the closed state.
func (r *Runtime) CloseChat() {
	r.enqueue(func(ctx context.Context) {
		r.view = transcript.Closed()
	})
}

// SelectRecipient handles picking a user from search results. When a
// direct chat with the recipient already exists it opens that chat; a
// sentinel is only pinned for a correspondent with no chat yet, so a
// known correspondent never gets a duplicate placeholder.
func (r *Runtime) SelectRecipient(recipient domain.UserRef, icon string) {
	r.enqueue(func(ctx context.Context) {
		chat, err := r.api.ChatWith(ctx, recipient.ID)
		if err == nil {
			r.chats = chatlist.DropSentinel(r.chats)
			view, err := r.router.Open(ctx, chat.ID)
			if err != nil {
				r.logger.Warn("Failed to open existing chat", "chatID", chat.ID, "error", err)
				return
			}
			r.view = view
			return
		}
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn("Direct chat lookup failed", "recipientID", recipient.ID, "error", err)
		}

		r.chats = chatlist.SelectRecipient(r.chats, recipient, icon)
		r.view = transcript.Closed()
	})
}

// SendChatMessage persists a message into an existing chat, pushes the
// fan-out envelope so other members hear about it, and applies the
// message locally. The sender is excluded from fan-out, so local apply
// is the only way their own screen updates.
func (r *Runtime) SendChatMessage(ctx context.Context, chatID, text string) error {
	msg, err := r.api.SendMessage(ctx, chatID, text)
	if err != nil {
		return err
	}

	ev := wire.MessageEvent{ChatID: chatID, Message: *msg, FromUsername: r.username}
	if err := r.push(chatID, ev); err != nil {
		r.logger.Error("Failed to push message event", "chatID", chatID, "error", err)
	}

	r.enqueue(func(ctx context.Context) {
		r.dispatchLocked(ctx, ev)
	})
	return nil
}

// StartChat creates (or reuses) a direct chat with its first message and
// announces it to the recipient.
func (r *Runtime) StartChat(ctx context.Context, recipientID, text string) error {
	started, err := r.api.StartChat(ctx, recipientID, text)
	if err != nil {
		return err
	}

	ev := wire.NewChatMessage{ChatID: started.Chat.ID}
	if err := r.push(started.Chat.ID, ev); err != nil {
		r.logger.Error("Failed to push new chat event", "chatID", started.Chat.ID, "error", err)
	}

	r.enqueue(func(ctx context.Context) {
		r.chats = chatlist.DropSentinel(r.chats)
		r.dispatchLocked(ctx, ev)

		view, err := r.router.Open(ctx, started.Chat.ID)
		if err != nil {
			r.logger.Warn("Failed to open new chat", "chatID", started.Chat.ID, "error", err)
			return
		}
		r.view = view
	})
	return nil
}

// DeleteMessage removes one of the caller's own messages. The server
// fans the deletion out to other members; locally the same event is
// applied directly.
func (r *Runtime) DeleteMessage(ctx context.Context, chatID, msgID string) error {
	wasLast, err := r.api.DeleteMessage(ctx, chatID, msgID)
	if err != nil {
		return err
	}

	ev := wire.DeleteMessage{ChatID: chatID, MsgID: msgID, IsLastMessage: wasLast}
	r.enqueue(func(ctx context.Context) {
		r.dispatchLocked(ctx, ev)
	})
	return nil
}

// readFrames pumps raw frames off the socket onto the event loop.
func (r *Runtime) readFrames() {
	defer close(r.frames)
	for {
		_, payload, err := r.conn.ReadMessage()
		if err != nil {
			select {
			case <-r.done:
			default:
				r.logger.Info("Connection closed", "error", err)
			}
			return
		}
		select {
		case r.frames <- payload:
		case <-r.done:
			return
		}
	}
}

// dispatch applies one decoded event to both reconcilers and notifies.
func (r *Runtime) dispatch(ctx context.Context, ev wire.Event) {
	r.dispatchLocked(ctx, ev)
	r.notify()
}

// dispatchLocked is dispatch without the notify, for callers already on
// the event loop that notify once at the end of a command.
func (r *Runtime) dispatchLocked(ctx context.Context, ev wire.Event) {
	chats, err := r.recon.Apply(ctx, r.chats, ev)
	if err != nil {
		r.logger.Warn("Chat list update failed, keeping prior state", "error", err)
	}
	r.chats = chats
	r.view = r.router.Apply(r.view, ev)
}

// push writes a fan-out envelope onto the socket. Writes are serialized
// through the event loop since the connection allows one writer at a
// time.
func (r *Runtime) push(chatID string, inner wire.Event) error {
	payload, err := wire.Encode(inner)
	if err != nil {
		return err
	}
	envelope, err := wire.Encode(wire.SendMessage{ChatID: chatID, Payload: payload})
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	r.enqueue(func(ctx context.Context) {
		errc <- r.conn.WriteMessage(websocket.TextMessage, envelope)
	})
	select {
	case err := <-errc:
		return err
	case <-r.done:
		return fmt.Errorf("runtime closed")
	}
}

func (r *Runtime) enqueue(cmd func(ctx context.Context)) {
	select {
	case r.commands <- cmd:
	case <-r.done:
	}
}

func (r *Runtime) notify() {
	if r.onChange == nil {
		return
	}
	chats := make([]domain.ChatSummary, len(r.chats))
	copy(chats, r.chats)
	r.onChange(Snapshot{Chats: chats, View: r.view})
}
