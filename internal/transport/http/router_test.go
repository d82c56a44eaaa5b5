package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"annogate/internal/account"
	"annogate/internal/annotation"
	"annogate/internal/annotatorstore"
	"annogate/internal/authz"
	"annogate/internal/binder"
	"annogate/internal/consumer"
	"annogate/internal/events"
	"annogate/internal/platform/config"
	"annogate/internal/platform/metrics"
	"annogate/internal/ratelimit"
	"annogate/internal/session"
	"annogate/internal/token"
	"annogate/pkg/platform/middleware/auth"
	"annogate/pkg/testutil"
)

const alice = "acct:alice@example.com"

type RouterSuite struct {
	suite.Suite
	sessions *session.InMemoryStore
	events   []events.Event
	healthy  error
	router   http.Handler
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Defaults()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	s.events = nil
	s.healthy = nil
	s.sessions = session.NewInMemoryStore(time.Hour)

	bus := events.NewBus(logger)
	bus.Subscribe(events.ListenerFunc(func(_ context.Context, e events.Event) error {
		s.events = append(s.events, e)
		return nil
	}))

	authn := consumer.NewAuthenticator(cfg.API.Key, cfg.API.Secret, cfg.TokenTTL())
	codec := token.NewCodec(authn.Consumer())
	server := token.NewBackendApplicationServer(token.NewConsumerValidator(authn), codec)

	accounts := account.NewService(account.NewMemoryStore(), s.sessions, logger)

	s.router = NewRouter(Deps{
		Config:   cfg,
		Logger:   logger,
		Gatherer: reg,
		Sessions: s.sessions,
		Tokens:   codec,
		Issuer:   token.NewIssuer(server, logger, m),
		Limiter:  ratelimit.New(ratelimit.NewIPLimiter(100, 100), logger),
		Accounts: account.NewHandler(accounts, bus, logger, time.Hour),
		Store:    annotatorstore.New(annotatorstore.NewMemoryBackend(), logger, annotatorstore.WithMetrics(m)),
		Binder:   binder.New(annotation.New, authn, authz.New(), bus, logger),
		Health: map[string]HealthCheck{
			"store": func(context.Context) error { return s.healthy },
		},
	})
}

func (s *RouterSuite) sessionCookie(personas ...string) *http.Cookie {
	sess := session.New(time.Now())
	for _, p := range personas {
		sess.AddPersona(p)
	}
	s.Require().NoError(s.sessions.Save(context.Background(), sess))
	return &http.Cookie{Name: session.CookieName, Value: sess.ID}
}

func (s *RouterSuite) issueToken(cookie *http.Cookie) string {
	req := httptest.NewRequest(http.MethodGet, "/oauth/token?grant_type=client_credentials&persona="+url.QueryEscape(alice), nil)
	req.AddCookie(cookie)
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	tok, _ := testutil.DecodeJSON(s.T(), rr)["access_token"].(string)
	s.Require().NotEmpty(tok)
	return tok
}

func (s *RouterSuite) createAnnotation(tok string, body map[string]any) string {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/annotations", body)
	req.Header.Set(auth.HeaderAuthToken, tok)
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	id, _ := testutil.DecodeJSON(s.T(), rr)["id"].(string)
	s.Require().NotEmpty(id)
	return id
}

func (s *RouterSuite) TestHealth() {
	rr := testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	s.Equal(http.StatusOK, rr.Code)
	s.NotEmpty(rr.Header().Get("X-Request-Id"))

	s.healthy = errors.New("down")
	rr = testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	s.Equal(http.StatusServiceUnavailable, rr.Code)
	s.Equal(map[string]any{"store": "down"}, testutil.DecodeJSON(s.T(), rr)["checks"])
}

func (s *RouterSuite) TestMetricsEndpoint() {
	rr := testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	s.Equal(http.StatusOK, rr.Code)
}

func (s *RouterSuite) TestAuthorizeNotImplemented() {
	rr := testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/oauth/authorize", nil))
	s.Equal(http.StatusNotImplemented, rr.Code)
}

func (s *RouterSuite) TestTokenRequiresClaimedPersona() {
	req := httptest.NewRequest(http.MethodGet, "/oauth/token?grant_type=client_credentials&persona="+url.QueryEscape(alice), nil)
	req.AddCookie(s.sessionCookie("acct:bob@example.com"))
	rr := testutil.DoRequest(s.router, req)

	s.Equal(http.StatusBadRequest, rr.Code)
	s.Equal("invalid_grant", testutil.DecodeJSON(s.T(), rr)["error"])
}

func (s *RouterSuite) TestLegacyToken() {
	req := httptest.NewRequest(http.MethodGet, "/api/token?persona="+url.QueryEscape(alice), nil)
	req.AddCookie(s.sessionCookie(alice))
	rr := testutil.DoRequest(s.router, req)

	s.Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Header().Get("Content-Type"), "text/plain")
	s.NotEmpty(rr.Body.String())

	anon := testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/api/token", nil))
	s.Equal(http.StatusOK, anon.Code)
	s.Empty(anon.Body.String())
}

func (s *RouterSuite) TestAnnotationPageUsesCallerSession() {
	tok := s.issueToken(s.sessionCookie(alice))
	id := s.createAnnotation(tok, map[string]any{
		"text":        "private note",
		"permissions": map[string]any{"read": []string{alice}, "update": []string{alice}, "delete": []string{alice}, "admin": []string{alice}},
	})

	req := httptest.NewRequest(http.MethodGet, "/a/"+id, nil)
	req.Header.Set(auth.HeaderAuthToken, tok)
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	body := testutil.DecodeJSON(s.T(), rr)
	s.Equal("private note", body["text"])
	s.Equal(alice, body["user"])

	anon := testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/a/"+id, nil))
	s.Equal(http.StatusUnauthorized, anon.Code)

	other := httptest.NewRequest(http.MethodGet, "/a/"+id, nil)
	other.AddCookie(s.sessionCookie("acct:bob@example.com"))
	s.Equal(http.StatusForbidden, testutil.DoRequest(s.router, other).Code)

	missing := testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/a/nope", nil))
	s.Equal(http.StatusNotFound, missing.Code)
}

func (s *RouterSuite) TestStreamFiltersByCaller() {
	tok := s.issueToken(s.sessionCookie(alice))
	s.createAnnotation(tok, map[string]any{"text": "public", "permissions": map[string]any{"read": []string{authz.Everyone}}})
	s.createAnnotation(tok, map[string]any{"text": "private", "permissions": map[string]any{"read": []string{alice}}})

	rr := testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/stream", nil))
	s.Require().Equal(http.StatusOK, rr.Code)
	rows, _ := testutil.DecodeJSON(s.T(), rr)["rows"].([]any)
	s.Len(rows, 1)

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.AddCookie(s.sessionCookie(alice))
	rr = testutil.DoRequest(s.router, req)
	rows, _ = testutil.DecodeJSON(s.T(), rr)["rows"].([]any)
	s.Len(rows, 2)
}

func (s *RouterSuite) TestStoreEventsAndPreflight() {
	tok := s.issueToken(s.sessionCookie(alice))
	s.createAnnotation(tok, map[string]any{"text": "x"})

	var actions []string
	for _, e := range s.events {
		if ae, ok := e.(events.AnnotationEvent); ok {
			actions = append(actions, ae.Action)
		}
	}
	s.Equal([]string{"create"}, actions)

	req := httptest.NewRequest(http.MethodOptions, "/api/annotations", nil)
	req.Header.Set("Origin", "http://example.org")
	rr := testutil.DoRequest(s.router, req)
	s.Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Header().Get("Access-Control-Allow-Headers"), "X-Client-ID")
	s.Equal("http://example.org", rr.Header().Get("Access-Control-Allow-Origin"))
}

func (s *RouterSuite) TestLoginFlow() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login",
		map[string]string{"username": "ghost", "password": "x"}))
	s.Equal(http.StatusUnauthorized, rr.Code)
	s.Equal("failure", testutil.DecodeJSON(s.T(), rr)["status"])
}

func TestRemoteStoreReadsThroughClient(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/store/annotations/42", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"42","text":"remote"}`)
	}))
	defer upstream.Close()

	cfg := config.Defaults()
	cfg.API.Endpoint = upstream.URL + "/store"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authn := consumer.NewAuthenticator(cfg.API.Key, cfg.API.Secret, cfg.TokenTTL())

	router := NewRouter(Deps{
		Config:      cfg,
		Logger:      logger,
		Sessions:    session.NewInMemoryStore(time.Hour),
		Tokens:      token.NewCodec(authn.Consumer()),
		StoreClient: upstream.Client(),
	})

	rr := testutil.DoRequest(router, httptest.NewRequest(http.MethodGet, "/a/42", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "remote", testutil.DecodeJSON(t, rr)["text"])
}

func (s *RouterSuite) TestPasswordResetRoutesMounted() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/forgot",
		map[string]string{"email": "ghost@example.com"}))
	s.Equal(http.StatusBadRequest, rr.Code)
	s.Equal(map[string]any{"email": account.MsgUnknownEmail}, testutil.DecodeJSON(s.T(), rr)["errors"])

	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/reset",
		map[string]string{"code": "nope", "password": "fresh"}))
	s.Equal(http.StatusBadRequest, rr.Code)
	s.Equal(map[string]any{"code": account.MsgInvalidCode}, testutil.DecodeJSON(s.T(), rr)["errors"])
}
