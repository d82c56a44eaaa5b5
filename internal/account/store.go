package account

import (
	"context"

	"github.com/google/uuid"
)

// Store persists accounts and activation codes. Lookups return
// sentinel.ErrNotFound; CreateUser returns sentinel.ErrConflict when the
// username or email is taken. Activation codes serve both account activation
// and password resets.
type Store interface {
	CreateUser(ctx context.Context, u *User, a *Activation) error
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	CreateActivation(ctx context.Context, a *Activation) error
	FindActivation(ctx context.Context, code string) (*Activation, error)
	// Activate sets the password hash, marks the user active and consumes
	// the activation code.
	Activate(ctx context.Context, userID uuid.UUID, passwordHash, code string) (*User, error)
}
