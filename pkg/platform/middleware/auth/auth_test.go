package auth

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"annogate/pkg/requestcontext"
)

type stubValidator map[string]string

func (s stubValidator) ValidateToken(token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", errors.New("invalid token")
}

func TestOptionalAuth(t *testing.T) {
	validator := stubValidator{"good": "acct:alice@example.com"}
	logs := &bytes.Buffer{}
	mw := OptionalAuth(validator, slog.New(slog.NewTextHandler(logs, nil)))

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"annotator header", map[string]string{HeaderAuthToken: "good"}, "acct:alice@example.com"},
		{"bearer header", map[string]string{"Authorization": "Bearer good"}, "acct:alice@example.com"},
		{"invalid token stays anonymous", map[string]string{HeaderAuthToken: "bad"}, ""},
		{"no token", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := mw(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				called = true
				assert.Equal(t, tt.want, requestcontext.UserID(r.Context()))
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.True(t, called)
		})
	}
	assert.Contains(t, logs.String(), "ignoring invalid auth token")
}
