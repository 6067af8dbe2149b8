// Package chatlist owns the ordered summary list of a user's chats and
// keeps it consistent as push events arrive out of band from the
// request/response calls that created them.
//
// Every update is a pure transform: a new list of new summary values is
// produced, and summaries already handed out are never mutated. Message
// text is unescaped exactly once, when an event enters the reconciler, so
// the stored text is always display-ready.
package chatlist

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/nfrund/parley/internal/domain"
	"github.com/nfrund/parley/internal/wire"
	"github.com/samber/lo"
)

// ChatData is the external chat-data lookup backing the fallback fetches:
// the full summary for a chat the user was not yet tracking, and the new
// last message after a deletion.
type ChatData interface {
	ChatSummary(ctx context.Context, chatID string) (*domain.ChatSummary, error)
	LastMessage(ctx context.Context, chatID string) (*domain.Message, *domain.UserRef, error)
}

// Reconciler applies push events to the chat list. It holds no list state
// itself; callers thread the prior list through Apply on a single
// goroutine in event-arrival order.
type Reconciler struct {
	data   ChatData
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the receipt-time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// New creates a Reconciler backed by the given chat-data lookup.
func New(data ChatData, opts ...Option) *Reconciler {
	r := &Reconciler{
		data:   data,
		now:    time.Now,
		logger: slog.Default().With("component", "chatlist"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load prepares a freshly fetched chat list for display: chats without any
// message yet are dropped, text is unescaped, and the list is sorted by
// last message time descending.
func Load(summaries []domain.ChatSummary) []domain.ChatSummary {
	withMessages := lo.Filter(summaries, func(s domain.ChatSummary, _ int) bool {
		return s.LastMessage != nil
	})
	unescaped := lo.Map(withMessages, func(s domain.ChatSummary, _ int) domain.ChatSummary {
		return unescapeSummary(s)
	})
	return sortSummaries(unescaped)
}

// Apply transforms the prior list given one push event and returns the new
// list. Unknown events and missing cross-references are no-ops: a fetch on
// the next navigation will resynchronize, which beats a crashed UI.
// Applying the same event twice converges to the same state, bounding the
// damage of any duplicate delivery.
func (r *Reconciler) Apply(ctx context.Context, prior []domain.ChatSummary, ev wire.Event) ([]domain.ChatSummary, error) {
	switch e := ev.(type) {
	case wire.MessageEvent:
		return r.applyMessage(prior, e), nil
	case wire.NewChatMessage:
		return r.applyNewChat(ctx, prior, e)
	case wire.DeleteMessage:
		return r.applyDelete(ctx, prior, e)
	default:
		return prior, nil
	}
}

// applyMessage overwrites the target summary's last message and re-sorts.
// The event's receipt time becomes the sort key, matching the order the
// viewer actually observed the conversation move.
func (r *Reconciler) applyMessage(prior []domain.ChatSummary, ev wire.MessageEvent) []domain.ChatSummary {
	idx := indexOf(prior, func(s domain.ChatSummary) bool { return s.ChatID == ev.ChatID })
	if idx < 0 {
		// Fan-out only reaches members, so a missing summary means local
		// state is behind; the next full fetch will pick the chat up.
		r.logger.Debug("Message event for untracked chat ignored", "chatID", ev.ChatID)
		return prior
	}

	msg := ev.Message
	msg.Text = UnescapeText(msg.Text)
	msg.SentAt = r.now()

	updated := prior[idx]
	updated.LastMessage = &msg
	updated.LastMessageSender = &domain.UserRef{ID: ev.Message.From, Username: ev.FromUsername}

	next := make([]domain.ChatSummary, len(prior))
	copy(next, prior)
	next[idx] = updated
	return sortSummaries(next)
}

// applyNewChat fetches the summary for a chat the user was not previously
// tracking and prepends it.
func (r *Reconciler) applyNewChat(ctx context.Context, prior []domain.ChatSummary, ev wire.NewChatMessage) ([]domain.ChatSummary, error) {
	if lo.ContainsBy(prior, func(s domain.ChatSummary) bool { return s.ChatID == ev.ChatID }) {
		// Duplicate delivery; the chat is already tracked.
		return prior, nil
	}

	summary, err := r.data.ChatSummary(ctx, ev.ChatID)
	if err != nil {
		r.logger.Warn("Failed to fetch new chat summary", "chatID", ev.ChatID, "error", err)
		return prior, err
	}

	next := make([]domain.ChatSummary, 0, len(prior)+1)
	next = append(next, unescapeSummary(*summary))
	next = append(next, prior...)
	return next, nil
}

// applyDelete refetches the last message when the deleted one was the
// chat's most recent. A chat left empty keeps its summary with a nil last
// message rather than disappearing from the list.
func (r *Reconciler) applyDelete(ctx context.Context, prior []domain.ChatSummary, ev wire.DeleteMessage) ([]domain.ChatSummary, error) {
	if !ev.IsLastMessage {
		return prior, nil
	}

	idx := indexOf(prior, func(s domain.ChatSummary) bool { return s.ChatID == ev.ChatID })
	if idx < 0 {
		return prior, nil
	}

	last, sender, err := r.data.LastMessage(ctx, ev.ChatID)
	if err != nil {
		r.logger.Warn("Failed to refetch last message", "chatID", ev.ChatID, "error", err)
		return prior, err
	}

	updated := prior[idx]
	if last == nil {
		updated.LastMessage = nil
		updated.LastMessageSender = nil
	} else {
		msg := *last
		msg.Text = UnescapeText(msg.Text)
		updated.LastMessage = &msg
		updated.LastMessageSender = sender
	}

	next := make([]domain.ChatSummary, len(prior))
	copy(next, prior)
	next[idx] = updated
	return sortSummaries(next), nil
}

// SelectRecipient handles a search-result selection for a recipient with
// no existing chat: the sentinel summary is inserted at position 0,
// replacing any previous sentinel. At most one sentinel exists at a time.
func SelectRecipient(prior []domain.ChatSummary, recipient domain.UserRef, icon string) []domain.ChatSummary {
	sentinel := domain.ChatSummary{
		ChatID:      domain.PendingChatID,
		RecipientID: recipient.ID,
		DisplayName: recipient.Username,
		IconImage:   icon,
		MemberIDs:   []string{recipient.ID},
	}

	rest := lo.Filter(prior, func(s domain.ChatSummary, _ int) bool { return !s.IsSentinel() })
	next := make([]domain.ChatSummary, 0, len(rest)+1)
	next = append(next, sentinel)
	next = append(next, rest...)
	return next
}

// DropSentinel removes the pending placeholder, if any. Called when the
// selection moves to a chat with a real id.
func DropSentinel(prior []domain.ChatSummary) []domain.ChatSummary {
	return lo.Filter(prior, func(s domain.ChatSummary, _ int) bool { return !s.IsSentinel() })
}

// UnescapeText reverses the HTML-entity escaping applied to message text
// on the way into storage.
func UnescapeText(text string) string {
	text = strings.ReplaceAll(text, "&#x27;", "'")
	return strings.ReplaceAll(text, "&quot;", `"`)
}

func unescapeSummary(s domain.ChatSummary) domain.ChatSummary {
	if s.LastMessage != nil {
		msg := *s.LastMessage
		msg.Text = UnescapeText(msg.Text)
		s.LastMessage = &msg
	}
	return s
}

// sortSummaries orders by last message time descending, with the sentinel
// (if present) pinned first regardless of timestamp. Chats with no last
// message sort to the bottom. The sort is stable so equal timestamps keep
// their relative order.
func sortSummaries(summaries []domain.ChatSummary) []domain.ChatSummary {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		switch {
		case a.IsSentinel():
			return true
		case b.IsSentinel():
			return false
		case a.LastMessage == nil:
			return false
		case b.LastMessage == nil:
			return true
		default:
			return a.LastMessage.SentAt.After(b.LastMessage.SentAt)
		}
	})
	return summaries
}

// indexOf returns the position of the first summary matching pred, or -1.
func indexOf(summaries []domain.ChatSummary, pred func(domain.ChatSummary) bool) int {
	_, idx, _ := lo.FindIndexOf(summaries, pred)
	return idx
}
