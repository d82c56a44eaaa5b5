// Package binder attaches the application's annotation collaborators to each
// annotation-store request and turns successful store operations into
// lifecycle events.
package binder

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"annogate/internal/annotation"
	"annogate/internal/authz"
	"annogate/internal/consumer"
	"annogate/internal/events"
	dErrors "annogate/pkg/domain-errors"
	"annogate/pkg/platform/httputil"
	"annogate/pkg/platform/strings"
	"annogate/pkg/requestcontext"
)

// ClientIDHeader is advertised on every preflight response.
const ClientIDHeader = "X-Client-ID"

const maxBufferedBody = 1 << 20

var annotationRoute = regexp.MustCompile(`^store\.(\w+)_annotation$`)

// Binder runs the pre- and post-request hooks around store routes.
type Binder struct {
	factory      annotation.Factory
	auth         *consumer.Authenticator
	authorizer   *authz.Authorizer
	notifier     events.Notifier
	logger       *slog.Logger
	beforeUpdate func(annotation.Annotation)
}

// Option configures a Binder.
type Option func(*Binder)

// WithBeforeUpdate replaces the hook run on annotations before they are saved
// by an update. The default is annotation.Anonymize.
func WithBeforeUpdate(fn func(annotation.Annotation)) Option {
	return func(b *Binder) {
		if fn != nil {
			b.beforeUpdate = fn
		}
	}
}

// New builds a Binder. A nil factory means annotation.New.
func New(factory annotation.Factory, auth *consumer.Authenticator, authorizer *authz.Authorizer, notifier events.Notifier, logger *slog.Logger, opts ...Option) *Binder {
	if factory == nil {
		factory = annotation.New
	}
	b := &Binder{
		factory:      factory,
		auth:         auth,
		authorizer:   authorizer,
		notifier:     notifier,
		logger:       logger,
		beforeUpdate: annotation.Anonymize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Wrap serves next with bindings attached and runs the post-request hook on
// its buffered response before anything reaches the client.
func (b *Binder) Wrap(routeName string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqBody, err := bufferBody(w, r)
		if err != nil {
			b.logger.WarnContext(r.Context(), "failed to read request body",
				"route", routeName,
				"error", err,
				"request_id", requestcontext.RequestID(r.Context()),
			)
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httputil.WriteError(w, dErrors.New(dErrors.CodeTooLarge, "request body too large"))
			} else {
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unreadable request body"))
			}
			return
		}

		ctx := WithBindings(r.Context(), &Bindings{
			NewAnnotation: b.factory,
			Auth:          b.auth,
			Authorize:     b.authorizer.Bind(r.Context()),
			BeforeUpdate:  b.beforeUpdate,
		})
		r = r.WithContext(ctx)

		rec := newRecorder()
		next.ServeHTTP(rec, r)

		b.after(r, routeName, reqBody, rec)
		rec.flush(w)
	})
}

func (b *Binder) after(r *http.Request, routeName string, reqBody []byte, rec *recorder) {
	if r.Method == http.MethodOptions {
		h := rec.Header()
		h.Set("Access-Control-Allow-Headers", strings.MergeHeaderList(h.Get("Access-Control-Allow-Headers"), ClientIDHeader))
		return
	}
	if rec.status < 200 || rec.status >= 300 {
		return
	}
	m := annotationRoute.FindStringSubmatch(routeName)
	if m == nil {
		return
	}
	action := m[1]

	payload := rec.body.Bytes()
	if action == "delete" {
		payload = reqBody
	}
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil || doc == nil {
		b.logger.WarnContext(r.Context(), "annotation event payload unreadable",
			"route", routeName,
			"action", action,
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
		return
	}

	b.notifier.Notify(r.Context(), events.AnnotationEvent{
		Request:    r,
		Annotation: b.factory(doc),
		Action:     action,
	})
}

// bufferBody reads the request body into memory and replaces it with a
// rereadable copy. Bodies over maxBufferedBody fail with *http.MaxBytesError.
func bufferBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBufferedBody))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, err
}

// recorder holds a handler's response until the post-request hook is done.
type recorder struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newRecorder() *recorder {
	return &recorder{header: make(http.Header), status: http.StatusOK}
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
}

func (r *recorder) Write(p []byte) (int, error) {
	r.wroteHeader = true
	return r.body.Write(p)
}

func (r *recorder) flush(w http.ResponseWriter) {
	dst := w.Header()
	for k, v := range r.header {
		dst[k] = v
	}
	w.WriteHeader(r.status)
	if r.body.Len() > 0 {
		_, _ = w.Write(r.body.Bytes())
	}
}
