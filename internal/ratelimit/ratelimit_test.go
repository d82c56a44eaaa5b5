package ratelimit

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"annogate/pkg/requestcontext"
	"annogate/pkg/testutil"
)

func TestIPLimiterBurstAndRefill(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewIPLimiter(1, 2)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, _ = l.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, wait := l.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	ok, _ = l.Allow("10.0.0.2")
	assert.True(t, ok, "keys are limited independently")

	now = now.Add(time.Second)
	ok, _ = l.Allow("10.0.0.1")
	assert.True(t, ok, "one token refilled")
}

func TestIPLimiterSweepsIdleBuckets(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewIPLimiter(1, 1)
	l.now = func() time.Time { return now }

	l.Allow("10.0.0.1")
	now = now.Add(2 * idleTTL)
	l.Allow("10.0.0.2")

	assert.NotContains(t, l.buckets, "10.0.0.1")
	assert.Contains(t, l.buckets, "10.0.0.2")
}

func TestMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	h := New(NewIPLimiter(0.001, 1), logger).RateLimit(ok)
	req := func(ip string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/oauth/token", nil)
		return r.WithContext(requestcontext.WithClientIP(r.Context(), ip))
	}

	testutil.AssertStatus(t, testutil.DoRequest(h, req("10.0.0.1")), http.StatusOK)
	rr := testutil.DoRequest(h, req("10.0.0.1"))
	testutil.AssertStatus(t, rr, http.StatusTooManyRequests)
	testutil.AssertErrorCode(t, rr, "too_many_requests")
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	testutil.AssertStatus(t, testutil.DoRequest(h, req("10.0.0.2")), http.StatusOK)

	disabled := New(NewIPLimiter(0.001, 1), logger, WithDisabled(true)).RateLimit(ok)
	for range 3 {
		testutil.AssertStatus(t, testutil.DoRequest(disabled, req("10.0.0.1")), http.StatusOK)
	}
}
