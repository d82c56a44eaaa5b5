// Package middleware holds request middleware that depends on process level
// stores.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"annogate/internal/session"
	"annogate/pkg/platform/sentinel"
	"annogate/pkg/requestcontext"
)

// Session loads the session named by the session cookie and binds its
// personas to the request context. Requests that already carry session state
// (in-process sub-requests) pass through untouched.
func Session(store session.Store, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if requestcontext.HasSession(ctx) {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(session.CookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r.WithContext(requestcontext.WithSession(ctx, "", nil)))
				return
			}

			sess, err := store.Get(ctx, cookie.Value)
			switch {
			case err == nil:
				ctx = requestcontext.WithSession(ctx, sess.ID, sess.Personas)
			case errors.Is(err, sentinel.ErrNotFound):
				ctx = requestcontext.WithSession(ctx, "", nil)
			default:
				logger.ErrorContext(ctx, "failed to load session",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				ctx = requestcontext.WithSession(ctx, "", nil)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
