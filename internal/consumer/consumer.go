// Package consumer models registered API consumers and the users acting
// through them.
package consumer

import (
	"context"
	"time"

	"annogate/pkg/requestcontext"
)

// DefaultTTL is the token lifetime applied when a consumer has a secret but
// no explicit ttl.
const DefaultTTL = 24 * time.Hour

// Consumer is a registered API consumer.
type Consumer struct {
	Key    string
	Secret string
	TTL    time.Duration
}

// User is an authenticated principal bound to the consumer it came through.
type User struct {
	ID       string
	Consumer *Consumer
	IsAdmin  bool
}

// Authenticator resolves the acting user of a request. Key, secret and ttl are
// read once from configuration.
type Authenticator struct {
	key    string
	secret string
	ttl    time.Duration
}

// NewAuthenticator builds an authenticator for the configured consumer. A
// zero ttl means DefaultTTL.
func NewAuthenticator(key, secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Authenticator{key: key, secret: secret, ttl: ttl}
}

// Consumer returns the configured consumer. Secret and TTL are only applied
// when a secret is configured.
func (a *Authenticator) Consumer() *Consumer {
	c := &Consumer{Key: a.key}
	if a.secret != "" {
		c.Secret = a.secret
		c.TTL = a.ttl
	}
	return c
}

// RequestUser returns the user for the request's resolved identity, or nil
// for anonymous requests.
func (a *Authenticator) RequestUser(ctx context.Context) *User {
	userID := requestcontext.UserID(ctx)
	if userID == "" {
		return nil
	}
	return &User{ID: userID, Consumer: a.Consumer()}
}
