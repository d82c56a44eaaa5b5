// Package auth resolves the annotator auth token of a request into the
// authenticated user id.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"annogate/pkg/requestcontext"
)

// HeaderAuthToken carries the annotator auth token.
const HeaderAuthToken = "X-Annotator-Auth-Token"

// TokenValidator validates a token and returns the user id it carries.
type TokenValidator interface {
	ValidateToken(tokenString string) (string, error)
}

// OptionalAuth binds the token's user id when the request carries a valid
// token. Missing or invalid tokens leave the request anonymous; authorization
// decides what anonymous callers may do.
func OptionalAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := ExtractToken(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			userID, err := validator.ValidateToken(raw)
			if err != nil {
				logger.WarnContext(ctx, "ignoring invalid auth token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithUserID(ctx, userID)))
		})
	}
}

// ExtractToken reads the annotator header, falling back to a bearer
// Authorization header.
func ExtractToken(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get(HeaderAuthToken)); t != "" {
		return t
	}
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}
