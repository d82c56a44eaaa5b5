package ratelimit

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"

	dErrors "annogate/pkg/domain-errors"
	"annogate/pkg/platform/httputil"
	"annogate/pkg/requestcontext"
)

// Middleware rejects requests over the per-IP allowance with 429.
type Middleware struct {
	limiter  *IPLimiter
	logger   *slog.Logger
	disabled bool
}

// Option configures Middleware.
type Option func(*Middleware)

// WithDisabled turns limiting off.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

// New builds the middleware.
func New(limiter *IPLimiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{limiter: limiter, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit wraps next.
func (m *Middleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		ip := requestcontext.ClientIP(ctx)
		if ip == "" {
			ip = remoteHost(r.RemoteAddr)
		}

		allowed, wait := m.limiter.Allow(ip)
		if !allowed {
			m.logger.WarnContext(ctx, "rate limit exceeded",
				"path", r.URL.Path,
				"request_id", requestcontext.RequestID(ctx),
			)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			httputil.WriteError(w, dErrors.New(dErrors.CodeTooManyRequest, "too many requests, try again later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
