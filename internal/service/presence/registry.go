package presence

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/zhouzirui/moment-map/backend/internal/model/presence"
)

// Conn is the outbound half of a client connection as seen by the registry.
type Conn interface {
	ID() string
	Send(payload []byte) error
	Open() bool
	Close() error
}

// Session is a copy of one registry entry.
type Session struct {
	Profile    presence.Profile
	JoinedAt   time.Time
	LastActive time.Time
	Conn       Conn
}

// Registry holds one entry per connected identity.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Admit inserts or replaces the entry for profile.ID. When an entry already
// existed it is returned so the caller can decide what to do with the old
// connection.
func (r *Registry) Admit(profile presence.Profile, conn Conn) (Session, bool) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, replaced := r.sessions[profile.ID]
	r.sessions[profile.ID] = &Session{
		Profile:    profile,
		JoinedAt:   now,
		LastActive: now,
		Conn:       conn,
	}
	if !replaced {
		return Session{}, false
	}
	return *prev, true
}

// Lookup returns the entry for id.
func (r *Registry) Lookup(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Owns reports whether conn is the connection currently registered for id.
func (r *Registry) Owns(id string, conn Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	return ok && s.Conn == conn
}

// UpdatePosition stores a new opaque position and refreshes activity. It
// reports false, changing nothing, when id is not registered.
func (r *Registry) UpdatePosition(id string, position json.RawMessage) bool {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	s.Profile.Position = append(json.RawMessage(nil), position...)
	s.LastActive = now
	return true
}

// Touch refreshes the last-activity timestamp of id.
func (r *Registry) Touch(id string) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.LastActive = now
	}
}

// Remove deletes the entry for id and returns it.
func (r *Registry) Remove(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, id)
	return *s, true
}

// RemoveIf deletes the entry for id only while conn still owns it, so a
// superseded connection closing late cannot evict its replacement.
func (r *Registry) RemoveIf(id string, conn Conn) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.Conn != conn {
		return Session{}, false
	}
	delete(r.sessions, id)
	return *s, true
}

// Size is the presence count.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns copies of every entry.
func (r *Registry) Sessions() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		items = append(items, *s)
	}
	return items
}

// Stale returns the entries whose last activity is older than now - timeout.
func (r *Registry) Stale(now time.Time, timeout time.Duration) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []Session
	for _, s := range r.sessions {
		if now.Sub(s.LastActive) > timeout {
			items = append(items, *s)
		}
	}
	return items
}

// Snapshot returns the summaries served to read-only consumers.
func (r *Registry) Snapshot() []presence.UserSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]presence.UserSummary, 0, len(r.sessions))
	for _, s := range r.sessions {
		items = append(items, s.Profile.Summary(s.JoinedAt))
	}
	return items
}

// Roster returns the onlineUsers list.
func (r *Registry) Roster() []presence.RosterEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]presence.RosterEntry, 0, len(r.sessions))
	for _, s := range r.sessions {
		items = append(items, s.Profile.Roster())
	}
	return items
}
