package account

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"annogate/pkg/platform/sentinel"
)

// MemoryStore keeps accounts in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[uuid.UUID]User
	activations map[string]Activation
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[uuid.UUID]User),
		activations: make(map[string]Activation),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, u *User, a *Activation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) || strings.EqualFold(existing.Email, u.Email) {
			return sentinel.ErrConflict
		}
	}
	s.users[u.ID] = *u
	if a != nil {
		s.activations[a.Code] = *a
	}
	return nil
}

func (s *MemoryStore) FindByUsername(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			found := u
			return &found, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			found := u
			return &found, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) CreateActivation(_ context.Context, a *Activation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[a.UserID]; !ok {
		return sentinel.ErrNotFound
	}
	s.activations[a.Code] = *a
	return nil
}

func (s *MemoryStore) FindActivation(_ context.Context, code string) (*Activation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.activations[code]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &a, nil
}

func (s *MemoryStore) Activate(_ context.Context, userID uuid.UUID, passwordHash, code string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if _, ok := s.activations[code]; !ok {
		return nil, sentinel.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.Active = true
	s.users[userID] = u
	delete(s.activations, code)
	return &u, nil
}
