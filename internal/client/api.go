// Package client is the connecting side of the chat subsystem: an HTTP
// client for the chat API and a WebSocket runtime that keeps the chat
// list and the open transcript reconciled against push events.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nfrund/parley/internal/domain"
	"github.com/nfrund/parley/internal/middleware"
)

// API calls the chat HTTP endpoints with a bearer token. It implements
// chatlist.ChatData and transcript.ChatData, so both reconcilers can use
// it directly for their fallback fetches.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPI creates an API client for the given server and access token.
func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Chats fetches the caller's chat summaries.
func (a *API) Chats(ctx context.Context, userID string) ([]domain.ChatSummary, error) {
	var summaries []domain.ChatSummary
	err := a.get(ctx, fmt.Sprintf("/user/%s/chats", userID), &summaries)
	return summaries, err
}

// Chat fetches a chat's full history and roster.
func (a *API) Chat(ctx context.Context, chatID string) (*domain.Chat, error) {
	var chat domain.Chat
	if err := a.get(ctx, "/chat/"+chatID, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// ChatSummary fetches a single chat's summary from the caller's
// perspective.
func (a *API) ChatSummary(ctx context.Context, chatID string) (*domain.ChatSummary, error) {
	var summary domain.ChatSummary
	if err := a.get(ctx, "/chatdata/"+chatID, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// lastMessagePayload mirrors the lastmessage endpoint's body.
type lastMessagePayload struct {
	Message *domain.Message `json:"message"`
	Sender  *domain.UserRef `json:"sender"`
}

// LastMessage fetches a chat's most recent message and sender. Both
// returns are nil for an empty chat.
func (a *API) LastMessage(ctx context.Context, chatID string) (*domain.Message, *domain.UserRef, error) {
	var payload lastMessagePayload
	if err := a.get(ctx, fmt.Sprintf("/chat/%s/lastmessage", chatID), &payload); err != nil {
		return nil, nil, err
	}
	return payload.Message, payload.Sender, nil
}

// ChatWith resolves the existing direct chat with another user.
// domain.ErrNotFound means none exists yet.
func (a *API) ChatWith(ctx context.Context, otherID string) (*domain.Chat, error) {
	var chat domain.Chat
	if err := a.get(ctx, "/chat/user/"+otherID, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// SendMessage persists a message into an existing chat and returns it
// with its server-assigned id.
func (a *API) SendMessage(ctx context.Context, chatID, text string) (*domain.Message, error) {
	var msg domain.Message
	err := a.post(ctx, fmt.Sprintf("/chat/%s/message/send", chatID), map[string]string{"text": text}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// StartedChat is the result of starting a direct chat.
type StartedChat struct {
	Chat    *domain.Chat    `json:"chat"`
	Message *domain.Message `json:"message"`
}

// StartChat creates (or reuses) a direct chat with a recipient and
// persists its first message.
func (a *API) StartChat(ctx context.Context, recipientID, text string) (*StartedChat, error) {
	var started StartedChat
	body := map[string]string{"recipientID": recipientID, "text": text}
	if err := a.post(ctx, "/message/send", body, &started); err != nil {
		return nil, err
	}
	return &started, nil
}

// DeleteMessage removes one of the caller's messages and reports whether
// it was the chat's last one.
func (a *API) DeleteMessage(ctx context.Context, chatID, msgID string) (wasLast bool, err error) {
	var resp struct {
		WasLastMessage bool `json:"wasLastMessage"`
	}
	path := fmt.Sprintf("/chat/%s/message/%s/delete", chatID, msgID)
	if err := a.post(ctx, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.WasLastMessage, nil
}

// SearchUsers finds users by username substring.
func (a *API) SearchUsers(ctx context.Context, query string) ([]domain.UserRef, error) {
	var users []domain.UserRef
	err := a.get(ctx, "/search/"+query, &users)
	return users, err
}

func (a *API) get(ctx context.Context, path string, out any) error {
	return a.do(ctx, http.MethodGet, path, nil, out)
}

func (a *API) post(ctx context.Context, path string, body, out any) error {
	return a.do(ctx, http.MethodPost, path, body, out)
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set(middleware.TokenHeader, a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return json.NewDecoder(resp.Body).Decode(out)
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusForbidden:
		return domain.ErrNotAMember
	case http.StatusUnauthorized:
		return domain.ErrInvalidToken
	default:
		return fmt.Errorf("unexpected status %d from %s %s", resp.StatusCode, method, path)
	}
}
