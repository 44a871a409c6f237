// Package session holds the authoritative list of open chat sessions.
//
// Every change goes through Store.Update with a function that receives the
// full prior list and returns the next one, so events arriving from several
// transport bindings never clobber each other's unrelated entries.
package session

import (
	"NiralaChat/internal/model"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("session not found")

// Mutation maps the prior session list to the next one. It must not modify
// prev in place.
type Mutation func(prev []model.Session) []model.Session

type Store struct {
	mu        sync.RWMutex
	sessions  []model.Session
	version   uint64
	listeners map[int]func([]model.Session)
	nextID    int

	// notifyMu orders delivery; delivered is the newest version listeners saw.
	notifyMu  sync.Mutex
	delivered uint64
}

func NewStore() *Store {
	return &Store{
		sessions:  []model.Session{},
		listeners: make(map[int]func([]model.Session)),
	}
}

// Update applies m atomically and notifies listeners with the new snapshot.
// It returns the list that was committed.
//
// Listeners run outside the store lock, one update at a time, and never see
// an older list after a newer one. A snapshot already superseded by the time
// its turn comes is skipped. Listeners must not call Update.
func (s *Store) Update(m Mutation) []model.Session {
	s.mu.Lock()
	next := m(s.sessions)
	if next == nil {
		next = []model.Session{}
	}
	s.sessions = next
	s.version++
	version := s.version
	listeners := make([]func([]model.Session), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	snapshot := cloneAll(next)
	s.mu.Unlock()

	s.notify(version, listeners, snapshot)
	return snapshot
}

func (s *Store) notify(version uint64, listeners []func([]model.Session), snapshot []model.Session) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if version <= s.delivered {
		return
	}
	s.delivered = version
	for _, l := range listeners {
		l(cloneAll(snapshot))
	}
}

// UpdateIf applies m only when check passes against the current list. The
// check and the update happen under the same lock.
func (s *Store) UpdateIf(check func(prev []model.Session) bool, m Mutation) bool {
	applied := false
	s.Update(func(prev []model.Session) []model.Session {
		if !check(prev) {
			return prev
		}
		applied = true
		return m(prev)
	})
	return applied
}

// Snapshot returns a deep copy of the open sessions in open order.
func (s *Store) Snapshot() []model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.sessions)
}

func (s *Store) Get(conversationID string) (model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.sessions, conversationID)
	if i < 0 {
		return model.Session{}, false
	}
	return s.sessions[i].Clone(), true
}

func (s *Store) Has(conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return indexOf(s.sessions, conversationID) >= 0
}

// IDs returns the open conversation ids in open order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ids(s.sessions)
}

func (s *Store) TotalUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return TotalUnread(s.sessions)
}

// Subscribe registers fn for every committed update. The returned function
// removes the listener.
func (s *Store) Subscribe(fn func([]model.Session)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func cloneAll(list []model.Session) []model.Session {
	out := make([]model.Session, len(list))
	for i, sess := range list {
		out[i] = sess.Clone()
	}
	return out
}

func indexOf(list []model.Session, conversationID string) int {
	for i, sess := range list {
		if sess.ConversationID == conversationID {
			return i
		}
	}
	return -1
}

func ids(list []model.Session) []string {
	out := make([]string, len(list))
	for i, sess := range list {
		out[i] = sess.ConversationID
	}
	return out
}
