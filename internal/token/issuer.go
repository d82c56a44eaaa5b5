// Package token issues annotator auth tokens through an OAuth 2.0 style token
// endpoint, binding each token to a persona the session has claimed.
package token

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"annogate/internal/platform/metrics"
	dErrors "annogate/pkg/domain-errors"
	"annogate/pkg/platform/httputil"
	"annogate/pkg/requestcontext"
)

// Issuer is the token endpoint.
type Issuer struct {
	server  GrantServer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewIssuer builds the token endpoint. metrics may be nil.
func NewIssuer(server GrantServer, logger *slog.Logger, m *metrics.Metrics) *Issuer {
	return &Issuer{server: server, logger: logger, metrics: m}
}

func (i *Issuer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	headers, body, status := i.Respond(r)
	for k, v := range headers {
		w.Header()[k] = v
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Respond runs the grant for r and returns the response parts without
// writing them.
func (i *Issuer) Respond(r *http.Request) (http.Header, []byte, int) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		headers, body, status := oauthError(http.StatusBadRequest, "invalid_request", "malformed request parameters", nil)
		i.metrics.IncTokenResponse(strconv.Itoa(status))
		return headers, body, status
	}

	// r.Form is already query-decoded; the second pass only resolves
	// percent escapes so a literal '+' in the persona survives.
	persona := r.Form.Get("persona")
	if unescaped, err := url.PathUnescape(persona); err == nil {
		persona = unescaped
	}

	var creds *Credentials
	for _, p := range requestcontext.Personas(ctx) {
		if p == persona {
			creds = &Credentials{UserID: p}
			break
		}
	}

	headers, body, status := i.server.CreateTokenResponse(ctx, requestURL(r), r.Method, r.Form, r.Header, creds)
	i.metrics.IncTokenResponse(strconv.Itoa(status))

	if status == http.StatusOK {
		i.logger.InfoContext(ctx, "token issued",
			"user_id", persona,
			"request_id", requestcontext.RequestID(ctx),
		)
	} else {
		i.logger.WarnContext(ctx, "token request refused",
			"status", status,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return headers, body, status
}

// LegacyHandler serves the bare access token string, or "" when none could
// be issued. Requests that name no grant type get client_credentials.
func LegacyHandler(issuer *Issuer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("grant_type") == "" {
			q.Set("grant_type", GrantTypeClientCredentials)
			u := *r.URL
			u.RawQuery = q.Encode()
			r = r.Clone(r.Context())
			r.URL = &u
		}

		_, body, _ := issuer.Respond(r)
		var resp Response
		_ = json.Unmarshal(body, &resp)

		w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(resp.AccessToken))
	})
}

// AuthorizeHandler answers the authorization endpoint, which this service
// does not implement.
func AuthorizeHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotImplemented, "authorization endpoint is not implemented"))
	})
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
