package bubble

import (
	"sync"
	"time"

	"github.com/zhouzirui/moment-map/backend/internal/model/bubble"
)

// Entry is one stored bubble. Entries are never mutated after Put, so the
// pointer doubles as a token identifying that particular publication.
type Entry struct {
	Bubble     bubble.Bubble
	ReceivedAt time.Time
}

// Store keeps published bubbles in publication order, at most one per id.
type Store struct {
	mu      sync.RWMutex
	order   []*Entry
	entries map[string]*Entry
	now     func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// Put stores b. Re-publishing an existing id replaces the entry in place and
// reports replaced=true; timers holding the old entry become no-ops.
func (s *Store) Put(b bubble.Bubble) (entry *Entry, replaced bool) {
	entry = &Entry{Bubble: b, ReceivedAt: s.now()}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[b.ID]; ok {
		for i, e := range s.order {
			if e == old {
				s.order[i] = entry
				break
			}
		}
		s.entries[b.ID] = entry
		return entry, true
	}

	s.entries[b.ID] = entry
	s.order = append(s.order, entry)
	return entry, false
}

// Get returns the bubble stored under id.
func (s *Store) Get(id string) (bubble.Bubble, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return bubble.Bubble{}, false
	}
	return e.Bubble, true
}

// RemoveIf deletes id only while entry is still the stored publication.
func (s *Store) RemoveIf(id string, entry *Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entries[id]
	if !ok || current != entry {
		return false
	}
	s.removeLocked(id, current)
	return true
}

// Remove deletes id whatever publication is stored.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entries[id]
	if !ok {
		return false
	}
	s.removeLocked(id, current)
	return true
}

func (s *Store) removeLocked(id string, entry *Entry) {
	delete(s.entries, id)
	for i, e := range s.order {
		if e == entry {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// List returns every stored bubble in publication order.
func (s *Store) List() []bubble.Bubble {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]bubble.Bubble, 0, len(s.order))
	for _, e := range s.order {
		items = append(items, e.Bubble)
	}
	return items
}

// Len is the number of stored bubbles.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Expired returns the entries whose age exceeds their duration at now.
// Private bubbles and bubbles without a duration are never returned.
func (s *Store) Expired(now time.Time) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []*Entry
	for _, e := range s.order {
		if e.Bubble.ExpiredAt(now, e.ReceivedAt) {
			items = append(items, e)
		}
	}
	return items
}
