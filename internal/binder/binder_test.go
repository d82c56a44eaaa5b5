package binder

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annogate/internal/annotation"
	"annogate/internal/authz"
	"annogate/internal/consumer"
	"annogate/internal/events"
	"annogate/pkg/requestcontext"
)

type recordingNotifier struct {
	events []events.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e events.Event) {
	n.events = append(n.events, e)
}

func newTestBinder(n events.Notifier, logs io.Writer) *Binder {
	return New(annotation.New,
		consumer.NewAuthenticator("key", "secret", 0),
		authz.New(),
		n,
		slog.New(slog.NewTextHandler(logs, nil)),
	)
}

func respond(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func TestWrapBindsCollaborators(t *testing.T) {
	b := newTestBinder(&recordingNotifier{}, io.Discard)
	var got *Bindings
	h := b.Wrap("store.root", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ok bool
		got, ok = FromContext(r.Context())
		require.True(t, ok)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(requestcontext.WithSession(req.Context(), "s1", []string{"acct:alice@example.com"}))
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.NotNil(t, got.NewAnnotation)
	assert.NotNil(t, got.Auth)
	require.NotNil(t, got.BeforeUpdate)

	ann := annotation.Annotation{"permissions": map[string]any{"read": []any{"acct:alice@example.com"}}}
	assert.True(t, got.Authorize(ann, "read", nil), "bound authorize sees the session personas")
	assert.False(t, got.Authorize(ann, "update", nil))

	deleted := annotation.Annotation{"deleted": true, "user": "acct:alice@example.com"}
	got.BeforeUpdate(deleted)
	assert.Equal(t, "", deleted.User())
}

func TestFromContextWithoutBindings(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}

func TestAfterRequestDispatchesAnnotationEvents(t *testing.T) {
	tests := []struct {
		name   string
		route  string
		method string
		status int
		req    string
		resp   string
		action string
		text   string
	}{
		{"create uses response body", "store.create_annotation", http.MethodPost, 200, `{"text":"sent"}`, `{"id":"a1","text":"stored"}`, "create", "stored"},
		{"read uses response body", "store.read_annotation", http.MethodGet, 200, "", `{"id":"a1","text":"stored"}`, "read", "stored"},
		{"update uses response body", "store.update_annotation", http.MethodPut, 200, `{"text":"sent"}`, `{"id":"a1","text":"stored"}`, "update", "stored"},
		{"delete uses request body", "store.delete_annotation", http.MethodDelete, 204, `{"id":"a1","text":"sent"}`, "", "delete", "sent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &recordingNotifier{}
			h := newTestBinder(n, io.Discard).Wrap(tt.route, respond(tt.status, tt.resp))

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(tt.method, "/annotations", strings.NewReader(tt.req)))

			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.resp, rr.Body.String(), "response passes through unchanged")
			require.Len(t, n.events, 1)
			ev, ok := n.events[0].(events.AnnotationEvent)
			require.True(t, ok)
			assert.Equal(t, tt.action, ev.Action)
			assert.Equal(t, tt.text, ev.Annotation["text"])
			assert.NotNil(t, ev.Request)
		})
	}
}

func TestAfterRequestSkipsNonEvents(t *testing.T) {
	tests := []struct {
		name   string
		route  string
		status int
	}{
		{"error status", "store.read_annotation", http.StatusNotFound},
		{"redirect status", "store.read_annotation", http.StatusFound},
		{"search route", "store.search_annotations", http.StatusOK},
		{"index route", "store.index", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &recordingNotifier{}
			h := newTestBinder(n, io.Discard).Wrap(tt.route, respond(tt.status, `{"id":"a1"}`))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
			assert.Empty(t, n.events)
		})
	}
}

func TestAfterRequestUnreadablePayloadIsLogged(t *testing.T) {
	n := &recordingNotifier{}
	var logs bytes.Buffer
	h := newTestBinder(n, &logs).Wrap("store.delete_annotation", respond(http.StatusNoContent, ""))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/annotations/a1", strings.NewReader("not json")))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, n.events)
	assert.Contains(t, logs.String(), "annotation event payload unreadable")
}

func TestPreflightAppendsClientIDHeader(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		want     string
	}{
		{"no header yet", "", "X-Client-ID"},
		{"existing header", "Content-Type", "Content-Type, X-Client-ID"},
		{"already present", "Content-Type, X-Client-ID", "Content-Type, X-Client-ID"},
		{"present in lower case", "Content-Type, x-client-id", "Content-Type, x-client-id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &recordingNotifier{}
			h := newTestBinder(n, io.Discard).Wrap("store.preflight", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.existing != "" {
					w.Header().Set("Access-Control-Allow-Headers", tt.existing)
				}
				w.WriteHeader(http.StatusOK)
			}))

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/annotations", nil))

			assert.Equal(t, tt.want, rr.Header().Get("Access-Control-Allow-Headers"))
			assert.Empty(t, n.events)
		})
	}
}

func TestWrapLeavesRequestBodyReadable(t *testing.T) {
	h := newTestBinder(&recordingNotifier{}, io.Discard).Wrap("store.create_annotation", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		_, _ = w.Write(body)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/annotations", strings.NewReader(`{"id":"a1"}`)))
	assert.Equal(t, `{"id":"a1"}`, rr.Body.String())
}

func TestWrapRejectsOversizedBody(t *testing.T) {
	n := &recordingNotifier{}
	called := false
	h := newTestBinder(n, io.Discard).Wrap("store.create_annotation", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	body := `{"text":"` + strings.Repeat("x", maxBufferedBody) + `"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/annotations", strings.NewReader(body)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Contains(t, rr.Body.String(), "payload_too_large")
	assert.False(t, called, "handler must not see a truncated body")
	assert.Empty(t, n.events)
}
