// Package session persists the identities ("personas") a browser session
// claims. The core only reads sessions; the account endpoints write them.
package session

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
)

// CookieName is the cookie carrying the session id.
const CookieName = "session"

// Session is the server side state behind the session cookie.
type Session struct {
	ID       string   `json:"id"`
	Personas []string `json:"personas"`
	// Device is a display name for the browser that opened the session.
	Device    string    `json:"device,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an empty session with a random id.
func New(now time.Time) *Session {
	return &Session{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
}

// AddPersona claims an identity, keeping personas unique.
func (s *Session) AddPersona(persona string) {
	if !slices.Contains(s.Personas, persona) {
		s.Personas = append(s.Personas, persona)
	}
}

// Store persists sessions. Get returns sentinel.ErrNotFound for unknown or
// expired ids.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}
