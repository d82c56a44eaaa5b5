package session

import (
	"context"
	"sync"
	"time"

	"annogate/pkg/platform/sentinel"
)

// InMemoryStore keeps sessions in process memory. Sessions expire after ttl
// of inactivity.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	clock    func() time.Time
}

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// NewInMemoryStore creates an in-memory store.
func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
		clock:    time.Now,
	}
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || s.clock().After(entry.expiresAt) {
		return nil, sentinel.ErrNotFound
	}
	out := entry.session
	out.Personas = append([]string(nil), entry.session.Personas...)
	return &out, nil
}

func (s *InMemoryStore) Save(_ context.Context, sess *Session) error {
	stored := *sess
	stored.Personas = append([]string(nil), sess.Personas...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = memoryEntry{session: stored, expiresAt: s.clock().Add(s.ttl)}
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
