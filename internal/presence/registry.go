// Package presence maps online users to their single live connection.
package presence

import (
	"context"
	"sync"
	"time"

	"citizen-portal/internal/common/metrics"
	"citizen-portal/internal/models"
)

// Connection is a live, addressable client connection.
type Connection interface {
	// Handle is the connection's unique identifier.
	Handle() string
	// Send delivers one named event with a JSON-encodable payload.
	Send(ctx context.Context, event string, payload interface{}) error
}

type entry struct {
	conn    Connection
	session models.ConnectionSession
}

// Registry holds at most one connection per user id. The last Register for
// a user wins; the displaced connection stays open but no longer receives
// events.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[string]entry
	byHandle map[string]string // handle -> user id
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		byUser:   make(map[string]entry),
		byHandle: make(map[string]string),
		now:      time.Now,
	}
}

// Register inserts or overwrites the mapping for userID. It returns the
// session that was displaced, if any.
func (r *Registry) Register(userID string, conn Connection) (models.ConnectionSession, bool) {
	handle := conn.Handle()
	session := models.ConnectionSession{UserID: userID, Handle: handle, ConnectedAt: r.now().UTC()}

	r.mu.Lock()
	defer r.mu.Unlock()

	// A handle re-joining as a different user leaves its old entry.
	if prevUser, ok := r.byHandle[handle]; ok && prevUser != userID {
		if e, ok := r.byUser[prevUser]; ok && e.session.Handle == handle {
			delete(r.byUser, prevUser)
		}
	}

	prev, replaced := r.byUser[userID]
	if replaced && prev.session.Handle != handle {
		delete(r.byHandle, prev.session.Handle)
	}

	r.byUser[userID] = entry{conn: conn, session: session}
	r.byHandle[handle] = userID
	metrics.PresenceConnections.Set(float64(len(r.byUser)))

	if replaced && prev.session.Handle != handle {
		return prev.session, true
	}
	return models.ConnectionSession{}, false
}

// Unregister removes whichever entry currently holds handle. Another
// user's entry, or a newer handle for the same user, is never touched.
func (r *Registry) Unregister(handle string) (models.ConnectionSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byHandle[handle]
	if !ok {
		return models.ConnectionSession{}, false
	}
	delete(r.byHandle, handle)

	e, ok := r.byUser[userID]
	if !ok || e.session.Handle != handle {
		return models.ConnectionSession{}, false
	}
	delete(r.byUser, userID)
	metrics.PresenceConnections.Set(float64(len(r.byUser)))
	return e.session, true
}

// Lookup returns the live connection for userID.
func (r *Registry) Lookup(userID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byUser[userID]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Len reports how many users are online.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// Snapshot copies the current sessions.
func (r *Registry) Snapshot() []models.ConnectionSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ConnectionSession, 0, len(r.byUser))
	for _, e := range r.byUser {
		out = append(out, e.session)
	}
	return out
}
