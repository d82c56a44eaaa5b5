// Package request carries the request id between chi's RequestID middleware
// and requestcontext.
package request

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"annogate/pkg/requestcontext"
)

// HeaderRequestID is echoed on every response.
const HeaderRequestID = "X-Request-Id"

// RequestID assigns a request id (reusing an inbound X-Request-Id), echoes it
// on the response and exposes it through requestcontext.
func RequestID(next http.Handler) http.Handler {
	bind := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.GetReqID(r.Context())
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), id)))
	})
	return middleware.RequestID(bind)
}
