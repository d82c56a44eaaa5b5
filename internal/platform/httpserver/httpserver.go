package httpserver

import (
	"net/http"
	"time"
)

// New builds the HTTP server for addr. Write timeout stays unset so slow
// store sub-requests are bounded by the request context instead.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
