package account

import (
	"time"

	"github.com/google/uuid"
)

// User is a local account.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

// Activation is an outstanding account activation code.
type Activation struct {
	Code      string
	UserID    uuid.UUID
	CreatedAt time.Time
}
