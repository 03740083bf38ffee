// Package session keeps wizard sessions in memory. Each session is guarded by
// its own lock, so requests for different sessions never contend and never
// see each other's state.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/mpox-check/internal/wizard"
)

// ErrNotFound indicates an unknown or expired session.
var ErrNotFound = errors.New("session not found")

type entry struct {
	mu       sync.Mutex
	session  *wizard.Session
	lastSeen time.Time
}

// Store is an in-memory session registry with idle expiry.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time
}

// NewStore returns an empty store. Sessions idle for longer than ttl are
// dropped; ttl <= 0 disables expiry.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create registers a new session on the home page and returns its ID.
func (s *Store) Create() string {
	now := s.now()
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)
	s.entries[id] = &entry{session: wizard.NewSession(id, now), lastSeen: now}
	return id
}

// With runs fn with exclusive access to the session. The session pointer must
// not be retained after fn returns.
func (s *Store) With(id string, fn func(*wizard.Session) error) error {
	now := s.now()

	s.mu.Lock()
	e, ok := s.entries[id]
	if ok && s.expired(e, now) {
		delete(s.entries, id)
		ok = false
	}
	if ok {
		e.lastSeen = now
	}
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.session)
}

// Delete forgets a session.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Sweep drops expired sessions and reports how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

// Len is the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) sweepLocked(now time.Time) int {
	removed := 0
	for id, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

func (s *Store) expired(e *entry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.lastSeen) > s.ttl
}
