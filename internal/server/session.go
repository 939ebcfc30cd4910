package server

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/derekprior/fixture/internal/config"
	"github.com/derekprior/fixture/internal/schedule"
)

// ErrSessionNotFound is returned for an unknown or deleted session id.
var ErrSessionNotFound = errors.New("session not found")

// Session holds the team list and the last generated schedule of one client.
type Session struct {
	ID        string
	CreatedAt time.Time
	Teams     []config.Team
	Config    *config.Config
	Result    *schedule.Result
	Slots     []schedule.Slot
}

// SessionStore keeps sessions in memory. All access goes through its mutex;
// callers only ever see copies.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create starts an empty session and returns its id.
func (s *SessionStore) Create() string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &Session{ID: id, CreatedAt: s.now()}
	return id
}

// Get returns a snapshot of the session.
func (s *SessionStore) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return *sess, nil
}

// Update applies fn to the stored session under the write lock. fn must
// replace slices rather than mutate them in place, since earlier snapshots
// share them.
func (s *SessionStore) Update(id string, fn func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	fn(sess)
	return nil
}

func (s *SessionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
