// Package registry tracks which users currently hold a live connection.
//
// The registry is process-local: when the server is deployed as multiple
// processes, each one only sees its own connections. Cross-process fan-out
// would need a shared registry or broker and is a known scaling limit.
package registry

import (
	"log/slog"
	"sync"
)

// Handle is the write side of a live connection. Send must not block;
// implementations drop the payload when the connection cannot take it.
// Close terminates the connection.
type Handle interface {
	Send(payload []byte) error
	Close()
}

// Registry is an in-memory bidirectional mapping between an authenticated
// user id and its single live connection. A user has at most one
// connection at any instant; registering a new one supersedes and closes
// the previous one (last-connect-wins, no multiplexing).
type Registry struct {
	mu      sync.RWMutex
	byUser  map[string]Handle
	byConn  map[Handle]string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byUser: make(map[string]Handle),
		byConn: make(map[Handle]string),
	}
}

// Register binds userID to handle. If the user already has a live
// connection its handle is closed and replaced; this is the expected path
// on reconnect or tab refresh and is not an error.
func (r *Registry) Register(userID string, handle Handle) {
	r.mu.Lock()
	prev, replaced := r.byUser[userID]
	if replaced {
		delete(r.byConn, prev)
	}
	r.byUser[userID] = handle
	r.byConn[handle] = userID
	r.mu.Unlock()

	if replaced {
		prev.Close()
		slog.Info("Superseded existing connection", "userID", userID)
	}
	slog.Debug("Connection registered", "userID", userID)
}

// Unregister removes the entry whose handle matches. It is idempotent: a
// double close, or an unregister racing a supersede, is a no-op. It must
// be driven by the transport's own close or error signal.
func (r *Registry) Unregister(handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[handle]
	if !ok {
		return
	}
	delete(r.byConn, handle)

	// Only drop the user entry if it still points at this handle; a newer
	// connection may have superseded it already.
	if r.byUser[userID] == handle {
		delete(r.byUser, userID)
	}
	slog.Debug("Connection unregistered", "userID", userID)
}

// CloseAll closes every live connection and empties the registry.
// Called on server shutdown; closing a handle ends its write pump, which
// tears the underlying transport down and unblocks its reader.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	handles := make([]Handle, 0, len(r.byConn))
	for handle := range r.byConn {
		handles = append(handles, handle)
	}
	r.byUser = make(map[string]Handle)
	r.byConn = make(map[Handle]string)
	r.mu.Unlock()

	for _, handle := range handles {
		handle.Close()
	}
	slog.Info("Closed all connections", "count", len(handles))
}

// Lookup returns the live handle for userID. An absent user is a normal
// outcome (offline), not an error. Lookup never blocks.
func (r *Registry) Lookup(userID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handle, ok := r.byUser[userID]
	return handle, ok
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byUser)
}
