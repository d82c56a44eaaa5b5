package token_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"annogate/internal/consumer"
	"annogate/internal/platform/metrics"
	"annogate/internal/token"
	"annogate/internal/token/mocks"
	"annogate/pkg/testutil"
)

const (
	alice   = "acct:alice@example.com"
	bobWork = "acct:bob+work@example.com"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestIssuerBindsSessionPersona(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		personas  []string
		wantCreds *token.Credentials
	}{
		{"persona claimed by session", "persona=" + url.QueryEscape(alice), []string{alice}, &token.Credentials{UserID: alice}},
		{"double encoded persona", "persona=" + url.QueryEscape(url.QueryEscape(alice)), []string{alice}, &token.Credentials{UserID: alice}},
		{"plus in persona", "persona=" + url.QueryEscape(bobWork), []string{bobWork}, &token.Credentials{UserID: bobWork}},
		{"plus in double encoded persona", "persona=" + url.QueryEscape(url.QueryEscape(bobWork)), []string{bobWork}, &token.Credentials{UserID: bobWork}},
		{"persona not in session", "persona=" + url.QueryEscape("acct:bob@example.com"), []string{alice}, nil},
		{"no persona", "", []string{alice}, nil},
		{"no session", "persona=" + url.QueryEscape(alice), nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			server := mocks.NewMockGrantServer(ctrl)
			server.EXPECT().
				CreateTokenResponse(gomock.Any(), gomock.Any(), http.MethodGet, gomock.Any(), gomock.Any(), tt.wantCreds).
				Return(http.Header{"Cache-Control": {"no-store"}}, []byte(`{"access_token":"tok"}`), http.StatusOK)

			req := httptest.NewRequest(http.MethodGet, "/oauth/token?"+tt.query, nil)
			if tt.personas != nil {
				req = testutil.WithPersonas(req, tt.personas...)
			}
			rr := testutil.DoRequest(token.NewIssuer(server, testLogger(), nil), req)

			testutil.AssertStatus(t, rr, http.StatusOK)
			assert.Equal(t, "application/json; charset=UTF-8", rr.Header().Get("Content-Type"))
			assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
			assert.JSONEq(t, `{"access_token":"tok"}`, rr.Body.String())
		})
	}
}

func TestIssuerPassesStatusThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	server := mocks.NewMockGrantServer(ctrl)
	server.EXPECT().CreateTokenResponse(gomock.Any(), "http://example.com/oauth/token", http.MethodPost, gomock.Any(), gomock.Any(), nil).
		Return(http.Header{}, []byte(`{"error":"invalid_grant"}`), http.StatusBadRequest)

	m := metrics.New(prometheus.NewRegistry())
	req := httptest.NewRequest(http.MethodPost, "http://example.com/oauth/token", strings.NewReader("grant_type=client_credentials"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := testutil.DoRequest(token.NewIssuer(server, testLogger(), m), req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.TokensIssued.WithLabelValues("400")))
}

func newRealIssuer() *token.Issuer {
	auth := consumer.NewAuthenticator("key", "secret", time.Hour)
	server := token.NewBackendApplicationServer(token.NewConsumerValidator(auth), token.NewCodec(auth.Consumer()))
	return token.NewIssuer(server, testLogger(), nil)
}

func TestIssuerEndToEnd(t *testing.T) {
	issuer := newRealIssuer()
	req := testutil.WithPersonas(httptest.NewRequest(http.MethodPost, "/oauth/token?persona="+url.QueryEscape(alice),
		strings.NewReader("grant_type=client_credentials")), alice)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rr := testutil.DoRequest(issuer, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	body := testutil.DecodeJSON(t, rr)

	codec := token.NewCodec(consumer.NewAuthenticator("key", "secret", time.Hour).Consumer())
	claims, err := codec.Decode(body["access_token"].(string))
	require.NoError(t, err)
	assert.Equal(t, alice, claims.UserID)
}

func TestLegacyHandler(t *testing.T) {
	h := token.LegacyHandler(newRealIssuer())

	t.Run("returns the bare token", func(t *testing.T) {
		req := testutil.WithPersonas(httptest.NewRequest(http.MethodGet, "/api/token?persona="+url.QueryEscape(alice), nil), alice)
		rr := testutil.DoRequest(h, req)
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Equal(t, 3, len(strings.Split(rr.Body.String(), ".")), "body is a compact JWT")
		assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/plain"))
	})

	t.Run("empty string without a claimed persona", func(t *testing.T) {
		rr := testutil.DoRequest(h, httptest.NewRequest(http.MethodGet, "/api/token", nil))
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Equal(t, "", rr.Body.String())
	})
}

func TestAuthorizeHandlerNotImplemented(t *testing.T) {
	rr := testutil.DoRequest(token.AuthorizeHandler(), httptest.NewRequest(http.MethodGet, "/oauth/authorize", nil))
	testutil.AssertStatus(t, rr, http.StatusNotImplemented)
	testutil.AssertErrorCode(t, rr, "not_implemented")
}
