package testutil

import (
	"net/http"

	"annogate/pkg/requestcontext"
)

// WithUserID simulates the auth token middleware for req.
func WithUserID(req *http.Request, userID string) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

// WithPersonas simulates the session middleware for req.
func WithPersonas(req *http.Request, personas ...string) *http.Request {
	return req.WithContext(requestcontext.WithSession(req.Context(), "test-session", personas))
}
