// Package store persists chats, their member rosters, and their message
// histories in SurrealDB. Messages are stored newest first within a chat,
// so messages[0] is always the last message.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/parley/internal/domain"
	"github.com/nfrund/parley/internal/membership"
	"github.com/surrealdb/surrealdb.go"
)

// Store handles database operations for chats and users.
type Store struct {
	db     *surrealdb.DB
	ns     string
	dbName string
}

// New creates a new Store instance.
func New(db *surrealdb.DB, ns, dbName string) *Store {
	return &Store{db: db, ns: ns, dbName: dbName}
}

// chatRecord is the persisted shape of a chat.
type chatRecord struct {
	ChatID   string           `json:"chat_id"`
	Members  []string         `json:"members"`
	Messages []domain.Message `json:"messages"`
}

// userRecord is the persisted shape of a user account, reduced to the
// fields the chat subsystem needs.
type userRecord struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	IconImage string `json:"icon_image,omitempty"`
}

// EscapeText HTML-entity escapes quote and apostrophe characters the way
// message text is stored. Clients unescape exactly once when an event
// enters their reconcilers.
func EscapeText(text string) string {
	text = strings.ReplaceAll(text, "'", "&#x27;")
	return strings.ReplaceAll(text, `"`, "&quot;")
}

// CreateChat persists a new chat between the given members with an empty
// history and returns it.
func (s *Store) CreateChat(ctx context.Context, memberIDs []string) (*domain.Chat, error) {
	if err := s.db.Use(ctx, s.ns, s.dbName); err != nil {
		return nil, fmt.Errorf("failed to set database scope: %w", err)
	}

	chatID := uuid.NewString()
	query := "CREATE chat CONTENT { chat_id: $chat_id, members: $members, messages: [] } RETURN AFTER"
	params := map[string]any{
		"chat_id": chatID,
		"members": memberIDs,
	}
	created, err := queryOne[chatRecord](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	if created == nil {
		return nil, fmt.Errorf("chat was not created or could not be fetched")
	}

	return s.toChat(ctx, created)
}

// AppendMessage stores a new message at the head of a chat's history and
// returns it with its server-assigned id. Text is escaped on the way in.
func (s *Store) AppendMessage(ctx context.Context, chatID, senderID, text string) (*domain.Message, error) {
	if err := s.db.Use(ctx, s.ns, s.dbName); err != nil {
		return nil, fmt.Errorf("failed to set database scope: %w", err)
	}

	msg := domain.Message{
		ID:     uuid.NewString(),
		Text:   EscapeText(text),
		From:   senderID,
		SentAt: time.Now().UTC(),
	}
	query := "UPDATE chat SET messages = array::prepend(messages, $msg) WHERE chat_id = $chat_id RETURN AFTER"
	params := map[string]any{
		"chat_id": chatID,
		"msg":     msg,
	}
	updated, err := queryOne[chatRecord](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	if updated == nil {
		return nil, domain.ErrNotFound
	}

	return &msg, nil
}

// DeleteMessage removes a message from a chat. Only the original sender
// may delete it. The returned flag reports whether the removed message was
// the chat's last (most recent) one, which list views need in order to
// refetch their preview.
func (s *Store) DeleteMessage(ctx context.Context, chatID, msgID, requesterID string) (wasLast bool, err error) {
	rec, err := s.chatRecord(ctx, chatID)
	if err != nil {
		return false, err
	}

	found := false
	for i, m := range rec.Messages {
		if m.ID == msgID {
			if m.From != requesterID {
				return false, domain.ErrNotMessageSender
			}
			found = true
			wasLast = i == 0
			break
		}
	}
	if !found {
		return false, domain.ErrNotFound
	}

	query := "UPDATE chat SET messages = array::filter(messages, |$m| $m.id != $msg_id) WHERE chat_id = $chat_id"
	params := map[string]any{
		"chat_id": chatID,
		"msg_id":  msgID,
	}
	if err := execute(ctx, s.db, query, params); err != nil {
		return false, fmt.Errorf("failed to delete message: %w", err)
	}
	return wasLast, nil
}

// ChatByID loads a chat's full history and member roster.
func (s *Store) ChatByID(ctx context.Context, chatID string) (*domain.Chat, error) {
	rec, err := s.chatRecord(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return s.toChat(ctx, rec)
}

// Members resolves a chat id to its member user ids, implementing
// membership.Resolver for the fan-out dispatcher.
func (s *Store) Members(ctx context.Context, chatID string) ([]string, error) {
	rec, err := s.chatRecord(ctx, chatID)
	if err != nil {
		if err == domain.ErrNotFound {
			return nil, membership.ErrChatNotFound
		}
		return nil, err
	}
	return rec.Members, nil
}

// LastMessage returns a chat's most recent message and its sender, or
// (nil, nil, nil) when the chat is empty.
func (s *Store) LastMessage(ctx context.Context, chatID string) (*domain.Message, *domain.UserRef, error) {
	rec, err := s.chatRecord(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}
	if len(rec.Messages) == 0 {
		return nil, nil, nil
	}

	last := rec.Messages[0]
	sender, err := s.UserByID(ctx, last.From)
	if err != nil {
		return nil, nil, err
	}
	return &last, sender, nil
}

// UserChats builds the chat list summaries for a user, one per chat they
// belong to. Display name and icon come from the other correspondent, or
// from the last message's sender when that was someone else.
func (s *Store) UserChats(ctx context.Context, userID string) ([]domain.ChatSummary, error) {
	if err := s.db.Use(ctx, s.ns, s.dbName); err != nil {
		return nil, fmt.Errorf("failed to set database scope: %w", err)
	}

	query := "SELECT * FROM chat WHERE $user_id IN members"
	records, err := queryAll[chatRecord](ctx, s.db, query, map[string]any{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user chats: %w", err)
	}

	summaries := make([]domain.ChatSummary, 0, len(records))
	for i := range records {
		summary, err := s.toSummary(ctx, &records[i], userID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *summary)
	}
	return summaries, nil
}

// ChatSummaryFor builds a single chat's summary from the viewing user's
// perspective. It backs the fetch a client performs on a new_chat_message
// event.
func (s *Store) ChatSummaryFor(ctx context.Context, chatID, userID string) (*domain.ChatSummary, error) {
	rec, err := s.chatRecord(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return s.toSummary(ctx, rec, userID)
}

// ChatWithUser finds the existing direct (two-member) chat between two
// users. Returns domain.ErrNotFound when none exists; it never creates
// one, so selecting a known correspondent can resolve to the real chat id
// instead of spawning a duplicate.
func (s *Store) ChatWithUser(ctx context.Context, userID, otherID string) (*domain.Chat, error) {
	if err := s.db.Use(ctx, s.ns, s.dbName); err != nil {
		return nil, fmt.Errorf("failed to set database scope: %w", err)
	}

	query := "SELECT * FROM chat WHERE array::len(members) = 2 AND $a IN members AND $b IN members"
	params := map[string]any{"a": userID, "b": otherID}
	rec, err := queryOne[chatRecord](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to look up direct chat: %w", err)
	}
	if rec == nil {
		return nil, domain.ErrNotFound
	}
	return s.toChat(ctx, rec)
}

// UserByID returns a user reference by id.
func (s *Store) UserByID(ctx context.Context, userID string) (*domain.UserRef, error) {
	if err := s.db.Use(ctx, s.ns, s.dbName); err != nil {
		return nil, fmt.Errorf("failed to set database scope: %w", err)
	}

	rec, err := queryOne[userRecord](ctx, s.db, "SELECT * FROM user WHERE user_id = $user_id", map[string]any{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	if rec == nil {
		return nil, domain.ErrNotFound
	}
	return &domain.UserRef{ID: rec.UserID, Username: rec.Username}, nil
}

// SearchUsers finds users whose username contains the query,
// case-insensitively.
func (s *Store) SearchUsers(ctx context.Context, q string) ([]domain.UserRef, error) {
	if err := s.db.Use(ctx, s.ns, s.dbName); err != nil {
		return nil, fmt.Errorf("failed to set database scope: %w", err)
	}

	query := "SELECT * FROM user WHERE string::contains(string::lowercase(username), string::lowercase($q))"
	records, err := queryAll[userRecord](ctx, s.db, query, map[string]any{"q": q})
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}

	refs := make([]domain.UserRef, len(records))
	for i, rec := range records {
		refs[i] = domain.UserRef{ID: rec.UserID, Username: rec.Username}
	}
	return refs, nil
}

func (s *Store) chatRecord(ctx context.Context, chatID string) (*chatRecord, error) {
	if err := s.db.Use(ctx, s.ns, s.dbName); err != nil {
		return nil, fmt.Errorf("failed to set database scope: %w", err)
	}

	rec, err := queryOne[chatRecord](ctx, s.db, "SELECT * FROM chat WHERE chat_id = $chat_id", map[string]any{"chat_id": chatID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chat: %w", err)
	}
	if rec == nil {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

func (s *Store) toChat(ctx context.Context, rec *chatRecord) (*domain.Chat, error) {
	members := make([]domain.UserRef, 0, len(rec.Members))
	for _, id := range rec.Members {
		ref, err := s.UserByID(ctx, id)
		if err != nil {
			return nil, err
		}
		members = append(members, *ref)
	}
	return &domain.Chat{ID: rec.ChatID, Members: members, Messages: rec.Messages}, nil
}

func (s *Store) toSummary(ctx context.Context, rec *chatRecord, viewerID string) (*domain.ChatSummary, error) {
	summary := &domain.ChatSummary{
		ChatID:    rec.ChatID,
		MemberIDs: rec.Members,
	}

	var other *domain.UserRef
	for _, id := range rec.Members {
		if id != viewerID {
			ref, err := s.UserByID(ctx, id)
			if err != nil {
				return nil, err
			}
			other = ref
			break
		}
	}

	if len(rec.Messages) > 0 {
		last := rec.Messages[0]
		sender, err := s.UserByID(ctx, last.From)
		if err != nil {
			return nil, err
		}
		summary.LastMessage = &last
		summary.LastMessageSender = sender
		if last.From != viewerID {
			other = sender
		}
	}

	if other != nil {
		summary.DisplayName = other.Username
		rec, err := s.userIcon(ctx, other.ID)
		if err == nil {
			summary.IconImage = rec
		}
	}
	return summary, nil
}

func (s *Store) userIcon(ctx context.Context, userID string) (string, error) {
	rec, err := queryOne[userRecord](ctx, s.db, "SELECT * FROM user WHERE user_id = $user_id", map[string]any{"user_id": userID})
	if err != nil || rec == nil {
		return "", err
	}
	return rec.IconImage, nil
}
