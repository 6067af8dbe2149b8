// Package handlers exposes the chat subsystem's HTTP API. Push
// notifications ride the WebSocket; everything a client reads or writes
// on demand goes through here.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/parley/internal/dispatch"
	"github.com/nfrund/parley/internal/domain"
	"github.com/nfrund/parley/internal/membership"
	"github.com/nfrund/parley/internal/middleware"
	"github.com/nfrund/parley/internal/pubsub"
	"github.com/nfrund/parley/internal/wire"
	"github.com/samber/lo"
)

// ChatStore is the persistence surface the chat API needs.
type ChatStore interface {
	UserChats(ctx context.Context, userID string) ([]domain.ChatSummary, error)
	ChatByID(ctx context.Context, chatID string) (*domain.Chat, error)
	ChatSummaryFor(ctx context.Context, chatID, userID string) (*domain.ChatSummary, error)
	LastMessage(ctx context.Context, chatID string) (*domain.Message, *domain.UserRef, error)
	ChatWithUser(ctx context.Context, userID, otherID string) (*domain.Chat, error)
	CreateChat(ctx context.Context, memberIDs []string) (*domain.Chat, error)
	AppendMessage(ctx context.Context, chatID, senderID, text string) (*domain.Message, error)
	DeleteMessage(ctx context.Context, chatID, msgID, requesterID string) (bool, error)
	Members(ctx context.Context, chatID string) ([]string, error)
	SearchUsers(ctx context.Context, query string) ([]domain.UserRef, error)
}

// ChatHandler serves the chat API.
type ChatHandler struct {
	store ChatStore
	pub   pubsub.Publisher
}

// NewChatHandler creates a ChatHandler. The publisher carries deletion
// notifications into the fan-out pipeline.
func NewChatHandler(store ChatStore, pub pubsub.Publisher) *ChatHandler {
	return &ChatHandler{store: store, pub: pub}
}

// ChatsGet returns the chat summaries for a user. Users can only read
// their own list.
func (h *ChatHandler) ChatsGet(c echo.Context) error {
	identity := middleware.IdentityFrom(c)
	if c.Param("id") != identity.UserID {
		return c.JSON(http.StatusForbidden, ErrorResponse{Code: "forbidden", Message: "Cannot read another user's chat list"})
	}

	summaries, err := h.store.UserChats(c.Request().Context(), identity.UserID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, summaries)
}

// ChatGet returns a chat's full history and member roster.
func (h *ChatHandler) ChatGet(c echo.Context) error {
	ctx := c.Request().Context()
	chatID := c.Param("id")
	if err := h.requireMember(ctx, chatID, middleware.IdentityFrom(c).UserID); err != nil {
		return errorJSON(c, err)
	}

	chat, err := h.store.ChatByID(ctx, chatID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, chat)
}

// ChatDataGet returns a single chat's summary from the caller's
// perspective. Clients call it when a push event references a chat they
// are not yet tracking.
func (h *ChatHandler) ChatDataGet(c echo.Context) error {
	ctx := c.Request().Context()
	chatID := c.Param("id")
	identity := middleware.IdentityFrom(c)
	if err := h.requireMember(ctx, chatID, identity.UserID); err != nil {
		return errorJSON(c, err)
	}

	summary, err := h.store.ChatSummaryFor(ctx, chatID, identity.UserID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

// LastMessageGet returns a chat's most recent message and sender. Clients
// call it after a last-message deletion to recompute their preview.
func (h *ChatHandler) LastMessageGet(c echo.Context) error {
	ctx := c.Request().Context()
	chatID := c.Param("id")
	if err := h.requireMember(ctx, chatID, middleware.IdentityFrom(c).UserID); err != nil {
		return errorJSON(c, err)
	}

	msg, sender, err := h.store.LastMessage(ctx, chatID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, LastMessageResponse{Message: msg, Sender: sender})
}

// ChatWithUserGet resolves the caller's existing direct chat with another
// user. 404 means no chat exists yet and the client should show a pending
// placeholder instead.
func (h *ChatHandler) ChatWithUserGet(c echo.Context) error {
	identity := middleware.IdentityFrom(c)

	chat, err := h.store.ChatWithUser(c.Request().Context(), identity.UserID, c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, chat)
}

// MessageSendPost persists a message into an existing chat and returns it
// with its server-assigned id. Fan-out to other members is driven by the
// sender's WebSocket push, not by this endpoint.
func (h *ChatHandler) MessageSendPost(c echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Message: "Malformed request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Code: "validation", Message: err.Error()})
	}

	ctx := c.Request().Context()
	chatID := c.Param("id")
	identity := middleware.IdentityFrom(c)
	if err := h.requireMember(ctx, chatID, identity.UserID); err != nil {
		return errorJSON(c, err)
	}

	msg, err := h.store.AppendMessage(ctx, chatID, identity.UserID, req.Text)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

// NewChatResponse is the result of starting a direct chat.
type NewChatResponse struct {
	Chat    *domain.Chat    `json:"chat"`
	Message *domain.Message `json:"message"`
}

// NewChatPost starts a direct chat with a recipient and persists its
// first message. An existing direct chat is reused so repeated sends to
// the same correspondent never fork the conversation.
func (h *ChatHandler) NewChatPost(c echo.Context) error {
	var req NewChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Message: "Malformed request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Code: "validation", Message: err.Error()})
	}

	ctx := c.Request().Context()
	identity := middleware.IdentityFrom(c)

	chat, err := h.store.ChatWithUser(ctx, identity.UserID, req.RecipientID)
	if errors.Is(err, domain.ErrNotFound) {
		chat, err = h.store.CreateChat(ctx, []string{identity.UserID, req.RecipientID})
	}
	if err != nil {
		return errorJSON(c, err)
	}

	msg, err := h.store.AppendMessage(ctx, chat.ID, identity.UserID, req.Text)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, NewChatResponse{Chat: chat, Message: msg})
}

// MessageDeletePost removes a message the caller sent and notifies the
// chat's other connected members through the fan-out pipeline. Only the
// persisted deletion is load-bearing; a failed notification is logged and
// the response still succeeds, since list views resynchronize on their
// next fetch.
func (h *ChatHandler) MessageDeletePost(c echo.Context) error {
	ctx := c.Request().Context()
	chatID := c.Param("chatId")
	msgID := c.Param("msgId")
	identity := middleware.IdentityFrom(c)
	if err := h.requireMember(ctx, chatID, identity.UserID); err != nil {
		return errorJSON(c, err)
	}

	wasLast, err := h.store.DeleteMessage(ctx, chatID, msgID, identity.UserID)
	if err != nil {
		return errorJSON(c, err)
	}

	if err := h.publishDeletion(ctx, chatID, msgID, identity.UserID, wasLast); err != nil {
		middleware.FromContext(ctx).Error("Failed to publish deletion notification",
			"chatID", chatID, "msgID", msgID, "error", err)
	}

	return c.JSON(http.StatusOK, DeleteMessageResponse{WasLastMessage: wasLast})
}

// SearchGet finds users by username substring. Backing the recipient
// picker, it returns an empty list rather than 404 when nothing matches.
func (h *ChatHandler) SearchGet(c echo.Context) error {
	users, err := h.store.SearchUsers(c.Request().Context(), c.Param("query"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

// publishDeletion wraps a delete_message event in a fan-out envelope and
// publishes it with the deleter as sender, so the deleter is excluded
// from delivery like any other sender.
func (h *ChatHandler) publishDeletion(ctx context.Context, chatID, msgID, deleterID string, wasLast bool) error {
	inner, err := wire.Encode(wire.DeleteMessage{ChatID: chatID, MsgID: msgID, IsLastMessage: wasLast})
	if err != nil {
		return err
	}
	outer, err := wire.Encode(wire.SendMessage{ChatID: chatID, Payload: inner})
	if err != nil {
		return err
	}
	return h.pub.Publish(ctx, pubsub.Message{
		Topic:   dispatch.TopicOutbound,
		UserID:  deleterID,
		Payload: outer,
	})
}

func (h *ChatHandler) requireMember(ctx context.Context, chatID, userID string) error {
	members, err := h.store.Members(ctx, chatID)
	if err != nil {
		if errors.Is(err, membership.ErrChatNotFound) {
			return domain.ErrNotFound
		}
		return err
	}
	if !lo.Contains(members, userID) {
		return domain.ErrNotAMember
	}
	return nil
}
