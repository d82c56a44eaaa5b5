package token

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"annogate/internal/consumer"
	dErrors "annogate/pkg/domain-errors"
)

// GrantTypeClientCredentials is the only grant the server accepts.
const GrantTypeClientCredentials = "client_credentials"

// Credentials identify the user a token is issued for. A nil *Credentials
// means the caller proved no identity.
type Credentials struct {
	UserID string
}

// TokenRequest is a token endpoint request as seen by the grant server.
type TokenRequest struct {
	URI         string
	Method      string
	Body        url.Values
	Headers     http.Header
	Credentials *Credentials
}

// RequestValidator authenticates the client presenting a token request.
type RequestValidator interface {
	AuthenticateClient(ctx context.Context, req *TokenRequest) (*consumer.Consumer, error)
}

// Generator mints an access token.
type Generator interface {
	Generate(ctx context.Context, c *consumer.Consumer, creds *Credentials) (token string, expiresIn time.Duration, err error)
}

// GrantServer produces a complete token endpoint response.
type GrantServer interface {
	CreateTokenResponse(ctx context.Context, uri, method string, body url.Values, headers http.Header, credentials *Credentials) (http.Header, []byte, int)
}

// Response is the successful token response body.
type Response struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// BackendApplicationServer implements the OAuth 2.0 client credentials grant.
type BackendApplicationServer struct {
	validator RequestValidator
	generator Generator
}

// NewBackendApplicationServer builds the server.
func NewBackendApplicationServer(validator RequestValidator, generator Generator) *BackendApplicationServer {
	return &BackendApplicationServer{validator: validator, generator: generator}
}

func (s *BackendApplicationServer) CreateTokenResponse(ctx context.Context, uri, method string, body url.Values, headers http.Header, credentials *Credentials) (http.Header, []byte, int) {
	req := &TokenRequest{URI: uri, Method: method, Body: body, Headers: headers, Credentials: credentials}

	if body.Get("grant_type") != GrantTypeClientCredentials {
		return oauthError(http.StatusBadRequest, "unsupported_grant_type", "grant_type must be "+GrantTypeClientCredentials, nil)
	}

	client, err := s.validator.AuthenticateClient(ctx, req)
	if err != nil {
		h := http.Header{}
		h.Set("WWW-Authenticate", `Basic realm="annogate"`)
		return oauthError(http.StatusUnauthorized, "invalid_client", "client authentication failed", h)
	}

	if credentials == nil {
		return oauthError(http.StatusBadRequest, "invalid_grant", "no identity bound to the request", nil)
	}

	token, ttl, err := s.generator.Generate(ctx, client, credentials)
	if err != nil {
		return oauthError(http.StatusInternalServerError, "server_error", "", nil)
	}

	h := noCacheHeaders()
	out, _ := json.Marshal(Response{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(ttl / time.Second),
	})
	return h, out, http.StatusOK
}

func oauthError(status int, code, description string, extra http.Header) (http.Header, []byte, int) {
	h := noCacheHeaders()
	for k, v := range extra {
		h[k] = v
	}
	out, _ := json.Marshal(errorResponse{Error: code, ErrorDescription: description})
	return h, out, status
}

func noCacheHeaders() http.Header {
	h := http.Header{}
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
	return h
}

// ConsumerValidator authenticates clients against the single configured
// consumer. Requests that name no client are treated as the application's
// own consumer.
type ConsumerValidator struct {
	auth *consumer.Authenticator
}

// NewConsumerValidator builds the validator.
func NewConsumerValidator(auth *consumer.Authenticator) *ConsumerValidator {
	return &ConsumerValidator{auth: auth}
}

func (v *ConsumerValidator) AuthenticateClient(_ context.Context, req *TokenRequest) (*consumer.Consumer, error) {
	c := v.auth.Consumer()

	id, secret, hasBasic := basicAuth(req.Headers)
	if !hasBasic {
		id, secret = req.Body.Get("client_id"), req.Body.Get("client_secret")
	}
	if id == "" {
		return c, nil
	}
	if id != c.Key {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "unknown client")
	}
	if c.Secret != "" && subtle.ConstantTimeCompare([]byte(secret), []byte(c.Secret)) != 1 {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "client secret mismatch")
	}
	return c, nil
}

func basicAuth(h http.Header) (string, string, bool) {
	if h == nil || h.Get("Authorization") == "" {
		return "", "", false
	}
	r := &http.Request{Header: h}
	id, secret, ok := r.BasicAuth()
	if !ok {
		return "", "", false
	}
	if u, err := url.QueryUnescape(id); err == nil {
		id = u
	}
	if s, err := url.QueryUnescape(secret); err == nil {
		secret = s
	}
	return id, secret, true
}
