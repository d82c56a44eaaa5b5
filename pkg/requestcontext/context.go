// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values once per inbound request; services and the
// authorization code read them instead of reaching for ambient request state.
//
//	userID := requestcontext.UserID(ctx)
//	personas := requestcontext.Personas(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithSession(ctx, "sess-1", []string{"acct:alice@example.com"})
package requestcontext

import (
	"context"
	"time"
)

type (
	userIDKey      struct{}
	sessionKey     struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyUserID      = userIDKey{}
	ContextKeySession     = sessionKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyUserAgent   = userAgentKey{}
)

// -----------------------------------------------------------------------------
// Identity
// -----------------------------------------------------------------------------

// UserID returns the authenticated user id resolved from the request's auth
// token, or "" for anonymous requests.
func UserID(ctx context.Context) string {
	if userID, ok := ctx.Value(ContextKeyUserID).(string); ok {
		return userID
	}
	return ""
}

// WithUserID injects the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// -----------------------------------------------------------------------------
// Session
// -----------------------------------------------------------------------------

type sessionValue struct {
	id       string
	personas []string
}

// SessionID returns the id of the session bound to the request.
func SessionID(ctx context.Context) string {
	if s, ok := ctx.Value(ContextKeySession).(sessionValue); ok {
		return s.id
	}
	return ""
}

// Personas returns a copy of the identities claimed by the session. Callers
// may append to the result without touching the session.
func Personas(ctx context.Context) []string {
	s, ok := ctx.Value(ContextKeySession).(sessionValue)
	if !ok || len(s.personas) == 0 {
		return nil
	}
	out := make([]string, len(s.personas))
	copy(out, s.personas)
	return out
}

// HasSession reports whether session state has already been bound.
func HasSession(ctx context.Context) bool {
	_, ok := ctx.Value(ContextKeySession).(sessionValue)
	return ok
}

// WithSession binds session state to the context.
func WithSession(ctx context.Context, id string, personas []string) context.Context {
	return context.WithValue(ctx, ContextKeySession, sessionValue{id: id, personas: personas})
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// WithClientIP injects the client IP address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ContextKeyClientIP, ip)
}

// UserAgent retrieves the client User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithUserAgent injects the client User-Agent.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ContextKeyUserAgent, ua)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
