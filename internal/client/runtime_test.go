package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nfrund/parley/internal/domain"
	"github.com/nfrund/parley/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServer pairs an HTTP API stub with a WebSocket endpoint that the
// test can push frames through.
type testServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn *websocket.Conn
}

func newTestServer(t *testing.T, summaries []domain.ChatSummary, chat *domain.Chat) *testServer {
	t.Helper()
	ts := &testServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := ts.upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		ts.mu.Lock()
		ts.conn = conn
		ts.mu.Unlock()
	})
	mux.HandleFunc("/user/u1/chats", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(summaries)
	})
	mux.HandleFunc("/chat/user/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/chat/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chat)
	})

	ts.srv = httptest.NewServer(mux)
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) pushFrame(t *testing.T, ev wire.Event) {
	t.Helper()
	payload, err := wire.Encode(ev)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		return ts.conn != nil
	}, time.Second, 10*time.Millisecond, "client never connected")

	ts.mu.Lock()
	defer ts.mu.Unlock()
	require.NoError(t, ts.conn.WriteMessage(websocket.TextMessage, payload))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestRuntime_PushEventUpdatesChatList(t *testing.T) {
	summaries := []domain.ChatSummary{
		{ChatID: "c1", DisplayName: "bob", LastMessage: &domain.Message{ID: "m1", Text: "old", From: "u2", SentAt: time.Now().Add(-time.Hour)}},
	}
	ts := newTestServer(t, summaries, nil)

	api := NewAPI(ts.srv.URL, "tok")
	rt, err := Connect(context.Background(), wsURL(ts.srv), api, "u1", "ada", "tok")
	require.NoError(t, err)
	defer rt.Close()

	snapshots := make(chan Snapshot, 16)
	rt.OnChange(func(s Snapshot) { snapshots <- s })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Run(ctx)

	ts.pushFrame(t, wire.MessageEvent{
		ChatID:       "c1",
		FromUsername: "bob",
		Message:      domain.Message{ID: "m2", Text: "fresh", From: "u2", SentAt: time.Now()},
	})

	require.Eventually(t, func() bool {
		select {
		case s := <-snapshots:
			return len(s.Chats) == 1 && s.Chats[0].LastMessage != nil && s.Chats[0].LastMessage.ID == "m2"
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond, "chat list never picked up the pushed message")
}

func TestRuntime_OpenChatLoadsTranscript(t *testing.T) {
	chat := &domain.Chat{
		ID:      "c1",
		Members: []domain.UserRef{{ID: "u1", Username: "ada"}, {ID: "u2", Username: "bob"}},
		Messages: []domain.Message{
			{ID: "m2", Text: "newer", From: "u2", SentAt: time.Now()},
			{ID: "m1", Text: "older", From: "u1", SentAt: time.Now().Add(-time.Minute)},
		},
	}
	ts := newTestServer(t, []domain.ChatSummary{}, chat)

	api := NewAPI(ts.srv.URL, "tok")
	rt, err := Connect(context.Background(), wsURL(ts.srv), api, "u1", "ada", "tok")
	require.NoError(t, err)
	defer rt.Close()

	snapshots := make(chan Snapshot, 16)
	rt.OnChange(func(s Snapshot) { snapshots <- s })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Run(ctx)

	rt.OpenChat("c1")

	require.Eventually(t, func() bool {
		select {
		case s := <-snapshots:
			return s.View.ChatID == "c1" && len(s.View.Messages) == 2 && s.View.Messages[0].ID == "m1"
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond, "transcript never opened with oldest-first history")
}

func TestRuntime_SelectRecipientWithoutChatPinsSentinel(t *testing.T) {
	ts := newTestServer(t, []domain.ChatSummary{}, nil)

	api := NewAPI(ts.srv.URL, "tok")
	rt, err := Connect(context.Background(), wsURL(ts.srv), api, "u1", "ada", "tok")
	require.NoError(t, err)
	defer rt.Close()

	snapshots := make(chan Snapshot, 16)
	rt.OnChange(func(s Snapshot) { snapshots <- s })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Run(ctx)

	rt.SelectRecipient(domain.UserRef{ID: "u5", Username: "eve"}, "")

	require.Eventually(t, func() bool {
		select {
		case s := <-snapshots:
			return len(s.Chats) == 1 && s.Chats[0].IsSentinel() && s.Chats[0].RecipientID == "u5"
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond, "sentinel never appeared for a recipient with no chat")
}

func TestAPI_ErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/chat/missing"):
			w.WriteHeader(http.StatusNotFound)
		case strings.HasPrefix(r.URL.Path, "/chat/private"):
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, "tok")

	_, err := api.Chat(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = api.Chat(context.Background(), "private")
	assert.ErrorIs(t, err, domain.ErrNotAMember)

	_, err = api.Chats(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}
