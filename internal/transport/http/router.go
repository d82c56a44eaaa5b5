// Package httptransport assembles the public HTTP surface: token endpoints,
// account forms, annotation pages and the annotation store.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"annogate/internal/account"
	"annogate/internal/annotatorstore"
	"annogate/internal/binder"
	"annogate/internal/gateway"
	"annogate/internal/platform/config"
	platformmw "annogate/internal/platform/middleware"
	"annogate/internal/ratelimit"
	"annogate/internal/session"
	"annogate/internal/token"
	"annogate/pkg/platform/circuit"
	"annogate/pkg/platform/httputil"
	"annogate/pkg/platform/middleware/auth"
	"annogate/pkg/platform/middleware/metadata"
	"annogate/pkg/platform/middleware/request"
	"annogate/pkg/platform/middleware/requesttime"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the router mounts.
type Deps struct {
	Config   config.Config
	Logger   *slog.Logger
	Gatherer prometheus.Gatherer
	Sessions session.Store
	Tokens   auth.TokenValidator
	Issuer   *token.Issuer
	Limiter  *ratelimit.Middleware
	Accounts *account.Handler
	// Store and Binder are set when the annotation store runs in process.
	Store  *annotatorstore.Handler
	Binder *binder.Binder
	// StoreClient reaches a remote store; nil uses http.DefaultClient.
	StoreClient    *http.Client
	GatewayOptions []gateway.Option
	Health         map[string]HealthCheck
}

// NewRouter wires every public endpoint.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(platformmw.Logger(d.Logger))
	r.Use(platformmw.Session(d.Sessions, d.Logger))
	r.Use(auth.OptionalAuth(d.Tokens, d.Logger))

	r.Get("/healthz", healthHandler(d.Health))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	cfg := d.Config
	if d.Issuer != nil {
		tokenRoute := r.With()
		if d.Limiter != nil {
			tokenRoute = r.With(d.Limiter.RateLimit)
		}
		if cfg.Auth.Token != "" {
			tokenRoute.Method(http.MethodGet, cfg.Auth.Token, d.Issuer)
			tokenRoute.Method(http.MethodPost, cfg.Auth.Token, d.Issuer)
		}
		if cfg.Auth.LegacyToken != "" {
			tokenRoute.Method(http.MethodGet, cfg.Auth.LegacyToken, token.LegacyHandler(d.Issuer))
		}
	}
	if cfg.Auth.Authorize != "" {
		r.Handle(cfg.Auth.Authorize, token.AuthorizeHandler())
	}

	if d.Accounts != nil {
		d.Accounts.Register(r)
	}

	var invoker gateway.Invoker
	if cfg.EmbeddedStore() && d.Store != nil {
		var wrap func(string, http.Handler) http.Handler
		if d.Binder != nil {
			wrap = d.Binder.Wrap
		}
		if cfg.API.Endpoint == "" {
			d.Store.Register(r, wrap)
		} else {
			r.Route(cfg.API.Endpoint, func(sr chi.Router) {
				d.Store.Register(sr, wrap)
			})
		}
		invoker = gateway.InProcess(r)
	} else {
		client := d.StoreClient
		if client == nil {
			client = &http.Client{Timeout: 30 * time.Second}
		}
		invoker = gateway.WithCircuitBreaker(gateway.Remote(client), circuit.New("annotation-store"), d.Logger)
	}

	gw := gateway.New(cfg.API.Endpoint, invoker, d.GatewayOptions...)
	pages := NewAnnotationHandler(gw, d.Logger)
	pages.Register(r)

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok"}
		failed := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			status = http.StatusServiceUnavailable
			body["status"] = "unavailable"
			body["checks"] = failed
		}
		httputil.WriteJSON(w, status, body)
	}
}
