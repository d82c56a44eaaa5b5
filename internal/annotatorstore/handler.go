// Package annotatorstore is the annotation storage service mounted under the
// API endpoint: CRUD and search over annotation documents, each route named
// so request hooks can recognise it.
package annotatorstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"annogate/internal/annotation"
	"annogate/internal/binder"
	"annogate/internal/consumer"
	"annogate/internal/platform/metrics"
	dErrors "annogate/pkg/domain-errors"
	"annogate/pkg/platform/httputil"
	"annogate/pkg/platform/sentinel"
	"annogate/pkg/requestcontext"
)

// Route names. Hooks match the annotation routes by the
// store.<action>_annotation pattern.
const (
	RouteRoot      = "store.root"
	RouteIndex     = "store.index"
	RouteCreate    = "store.create_annotation"
	RouteRead      = "store.read_annotation"
	RouteUpdate    = "store.update_annotation"
	RouteDelete    = "store.delete_annotation"
	RouteSearch    = "store.search_annotations"
	RouteSearchRaw = "store.search_annotations_raw"
	RoutePreflight = "store.preflight"
)

const (
	defaultLimit = 20
	maxBodyBytes = 1 << 20

	allowHeaders = "Content-Type, Content-Length, Authorization, X-Requested-With, X-Annotator-Auth-Token"
	allowMethods = "GET, POST, PUT, DELETE, OPTIONS"
)

// Route is one entry of the store's route table.
type Route struct {
	Name    string
	Methods []string
	Pattern string
	Handler http.HandlerFunc
}

// Handler serves the store routes over a Backend.
type Handler struct {
	backend       Backend
	logger        *slog.Logger
	metrics       *metrics.Metrics
	baseURL       string
	compatibility string
	now           func() time.Time
	newID         func() string
}

// Option configures a Handler.
type Option func(*Handler)

// WithMetrics records route latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithBaseURL sets the public URL the root route advertises links under.
func WithBaseURL(u string) Option {
	return func(h *Handler) { h.baseURL = u }
}

// WithCompatibility reports the configured search compatibility mode on the
// root route.
func WithCompatibility(mode string) Option {
	return func(h *Handler) { h.compatibility = mode }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithIDGenerator overrides how new annotation ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(h *Handler) { h.newID = fn }
}

// New builds a Handler.
func New(backend Backend, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		backend: backend,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the route table.
func (h *Handler) Routes() []Route {
	return []Route{
		{Name: RouteRoot, Methods: []string{http.MethodGet}, Pattern: "/", Handler: h.handleRoot},
		{Name: RouteIndex, Methods: []string{http.MethodGet}, Pattern: "/annotations", Handler: h.handleIndex},
		{Name: RouteCreate, Methods: []string{http.MethodPost}, Pattern: "/annotations", Handler: h.handleCreate},
		{Name: RouteRead, Methods: []string{http.MethodGet}, Pattern: "/annotations/{id}", Handler: h.handleRead},
		{Name: RouteUpdate, Methods: []string{http.MethodPut}, Pattern: "/annotations/{id}", Handler: h.handleUpdate},
		{Name: RouteDelete, Methods: []string{http.MethodDelete}, Pattern: "/annotations/{id}", Handler: h.handleDelete},
		{Name: RouteSearch, Methods: []string{http.MethodGet}, Pattern: "/search", Handler: h.handleSearch},
		{Name: RouteSearchRaw, Methods: []string{http.MethodGet, http.MethodPost}, Pattern: "/search_raw", Handler: h.handleSearchRaw},
		{Name: RoutePreflight, Methods: []string{http.MethodOptions}, Pattern: "/*", Handler: h.handlePreflight},
	}
}

// Register mounts every route on r. wrap, when non-nil, decorates each route
// handler with its route name.
func (h *Handler) Register(r chi.Router, wrap func(name string, next http.Handler) http.Handler) {
	routes := h.Routes()
	patterns := make([]string, 0, len(routes))
	seen := map[string]struct{}{}
	for _, rt := range routes {
		if _, ok := seen[rt.Pattern]; !ok && rt.Name != RoutePreflight {
			seen[rt.Pattern] = struct{}{}
			patterns = append(patterns, rt.Pattern)
		}
	}

	for _, rt := range routes {
		var handler http.Handler = h.instrument(rt.Name, rt.Handler)
		if wrap != nil {
			handler = wrap(rt.Name, handler)
		}
		for _, method := range rt.Methods {
			r.Method(method, rt.Pattern, handler)
			// Preflight answers on every concrete path, not only unmatched ones.
			if rt.Name == RoutePreflight {
				for _, p := range patterns {
					r.Method(method, p, handler)
				}
			}
		}
	}
}

func (h *Handler) instrument(name string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Type, Location")

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next(ww, r)
		h.metrics.ObserveStoreRequest(name, strconv.Itoa(ww.Status()), time.Since(start).Seconds())
	})
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"name":    "Annotator Store API",
		"version": "2.0.0",
		"links": map[string]any{
			"annotation": map[string]any{
				"create": map[string]any{"method": http.MethodPost, "url": h.baseURL + "/annotations"},
				"read":   map[string]any{"method": http.MethodGet, "url": h.baseURL + "/annotations/:id"},
				"update": map[string]any{"method": http.MethodPut, "url": h.baseURL + "/annotations/:id"},
				"delete": map[string]any{"method": http.MethodDelete, "url": h.baseURL + "/annotations/:id"},
			},
			"search":     map[string]any{"method": http.MethodGet, "url": h.baseURL + "/search"},
			"search_raw": map[string]any{"method": http.MethodPost, "url": h.baseURL + "/search_raw"},
		},
	}
	if h.compatibility != "" {
		body["compatibility"] = h.compatibility
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	docs, err := h.backend.Search(r.Context(), MatchAll())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.readable(r, docs))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	b, bound := binder.FromContext(r.Context())
	var user *consumer.User
	if bound {
		user = requestUser(b, r)
		if user == nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "cannot create annotation without a user"))
			return
		}
	}

	fields, err := decodeBody(w, r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	delete(fields, annotation.FieldID)
	delete(fields, annotation.FieldCreated)
	delete(fields, annotation.FieldUpdated)

	ann := h.factory(b)(fields)
	if user != nil {
		ann.SetUser(user.ID)
		if user.Consumer != nil {
			ann[annotation.FieldConsumer] = user.Consumer.Key
		}
	}
	now := h.now().UTC().Format(time.RFC3339Nano)
	ann[annotation.FieldID] = h.newID()
	ann[annotation.FieldCreated] = now
	ann[annotation.FieldUpdated] = now

	if err := h.backend.Save(r.Context(), ann); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ann)
}

func (h *Handler) handleRead(w http.ResponseWriter, r *http.Request) {
	ann, ok := h.load(w, r)
	if !ok {
		return
	}
	if !h.check(w, r, ann, annotation.ActionRead) {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ann)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ann, ok := h.load(w, r)
	if !ok {
		return
	}
	if !h.check(w, r, ann, annotation.ActionUpdate) {
		return
	}

	fields, err := decodeBody(w, r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if perms, present := fields[annotation.FieldPermissions]; present {
		next := annotation.New(map[string]any{annotation.FieldPermissions: perms}).Permissions()
		if !reflect.DeepEqual(normalizePermissions(next), normalizePermissions(ann.Permissions())) &&
			!h.check(w, r, ann, annotation.ActionAdmin) {
			return
		}
	}
	for _, f := range []string{annotation.FieldID, annotation.FieldCreated, annotation.FieldUser, annotation.FieldConsumer} {
		delete(fields, f)
	}
	for k, v := range fields {
		ann[k] = v
	}
	ann[annotation.FieldUpdated] = h.now().UTC().Format(time.RFC3339Nano)

	if b, bound := binder.FromContext(r.Context()); bound && b.BeforeUpdate != nil {
		b.BeforeUpdate(ann)
	}
	if err := h.backend.Save(r.Context(), ann); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ann)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ann, ok := h.load(w, r)
	if !ok {
		return
	}
	if !h.check(w, r, ann, annotation.ActionDelete) {
		return
	}
	if err := h.backend.Delete(r.Context(), ann.ID()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	limit, err := intParam(params.Get("limit"), defaultLimit)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be an integer"))
		return
	}
	offset, err := intParam(params.Get("offset"), 0)
	if err != nil || offset < 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "offset must be a non-negative integer"))
		return
	}

	filters := map[string]string{}
	for key := range params {
		if key == "limit" || key == "offset" {
			continue
		}
		filters[key] = params.Get(key)
	}

	docs, err := h.backend.Search(r.Context(), TermsQuery(filters))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	visible := h.readable(r, docs)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"total": len(visible),
		"rows":  page(visible, offset, limit),
	})
}

type rawHit struct {
	ID     string                `json:"_id"`
	Source annotation.Annotation `json:"_source"`
}

func (h *Handler) handleSearchRaw(w http.ResponseWriter, r *http.Request) {
	q := MatchAll()
	q.Size = DefaultSize

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httputil.WriteError(w, bodyError(err))
		return
	}
	if len(body) > 0 {
		if q, err = ParseQuery(body); err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, err.Error()))
			return
		}
	}

	docs, err := h.backend.Search(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	visible := h.readable(r, docs)
	hits := make([]rawHit, 0, len(visible))
	for _, doc := range page(visible, q.From, q.Size) {
		hits = append(hits, rawHit{ID: doc.ID(), Source: doc})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"hits": map[string]any{
			"total": len(visible),
			"hits":  hits,
		},
	})
}

func (h *Handler) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", allowMethods)
	w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusOK)
}

// load fetches the annotation named by the route, answering 404 itself.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (annotation.Annotation, bool) {
	ann, err := h.backend.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	if b, bound := binder.FromContext(r.Context()); bound && b.NewAnnotation != nil {
		ann = b.NewAnnotation(ann)
	}
	return ann, true
}

// check answers 401 for anonymous actors and 403 for identified ones when
// action is not permitted.
func (h *Handler) check(w http.ResponseWriter, r *http.Request, ann annotation.Annotation, action string) bool {
	b, bound := binder.FromContext(r.Context())
	if !bound || b.Authorize == nil {
		return true
	}
	user := requestUser(b, r)
	if b.Authorize(ann, action, user) {
		return true
	}
	if user == nil && len(requestcontext.Personas(r.Context())) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, fmt.Sprintf("cannot %s annotation without a user", action)))
	} else {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("not permitted to %s this annotation", action)))
	}
	return false
}

func (h *Handler) readable(r *http.Request, docs []annotation.Annotation) []annotation.Annotation {
	b, bound := binder.FromContext(r.Context())
	if !bound || b.Authorize == nil {
		return docs
	}
	user := requestUser(b, r)
	out := make([]annotation.Annotation, 0, len(docs))
	for _, doc := range docs {
		if b.Authorize(doc, annotation.ActionRead, user) {
			out = append(out, doc)
		}
	}
	return out
}

func (h *Handler) factory(b *binder.Bindings) annotation.Factory {
	if b != nil && b.NewAnnotation != nil {
		return b.NewAnnotation
	}
	return annotation.New
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, sentinel.ErrNotFound) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "annotation not found"))
		return
	}
	h.logger.ErrorContext(r.Context(), "annotation store failure",
		"error", err,
		"request_id", requestcontext.RequestID(r.Context()),
	)
	httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "annotation store failure"))
}

func requestUser(b *binder.Bindings, r *http.Request) *consumer.User {
	if b.Auth == nil {
		return nil
	}
	return b.Auth.RequestUser(r.Context())
}

func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	var fields map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&fields); err != nil {
		return nil, bodyError(err)
	}
	if fields == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request body must be a JSON object")
	}
	return fields, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return dErrors.New(dErrors.CodeTooLarge, "request body too large")
	}
	return dErrors.New(dErrors.CodeBadRequest, "request body must be a JSON object")
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func normalizePermissions(p annotation.Permissions) annotation.Permissions {
	out := annotation.Permissions{}
	for action, principals := range p {
		if len(principals) > 0 {
			out[action] = principals
		}
	}
	return out
}
