// Package gateway reads annotations from the annotation store by issuing
// sub-requests that carry the caller's session.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"annogate/internal/annotation"
	"annogate/internal/platform/metrics"
	dErrors "annogate/pkg/domain-errors"
	"annogate/pkg/platform/middleware/auth"
	"annogate/pkg/requestcontext"
)

// Headers copied from the originating request onto every sub-request.
var forwardedHeaders = []string{"Cookie", auth.HeaderAuthToken, "Authorization"}

const maxResponseBytes = 10 << 20

// Gateway is the application's client for the annotation store.
type Gateway struct {
	endpoint string
	invoker  Invoker
	factory  annotation.Factory
	tracer   trace.Tracer
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithFactory sets the constructor applied to returned documents.
func WithFactory(f annotation.Factory) Option {
	return func(g *Gateway) {
		if f != nil {
			g.factory = f
		}
	}
}

// WithTracer overrides the tracer; the default comes from the global
// provider.
func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) { g.tracer = t }
}

// WithMetrics counts sub-requests.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithLogger sets the logger for failed sub-requests.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New builds a gateway for the store mounted at endpoint, either a path
// served by an in-process invoker or an absolute URL.
func New(endpoint string, invoker Invoker, opts ...Option) *Gateway {
	g := &Gateway{
		endpoint: strings.TrimRight(endpoint, "/"),
		invoker:  invoker,
		factory:  annotation.New,
		tracer:   otel.Tracer("annogate/gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// For returns a Store view bound to the session of r.
func (g *Gateway) For(r *http.Request) *Store {
	h := make(http.Header)
	for _, name := range forwardedHeaders {
		for _, v := range r.Header.Values(name) {
			h.Add(name, v)
		}
	}
	return &Store{gw: g, headers: h}
}

// Store is the annotation store as seen by one originating request.
type Store struct {
	gw      *Gateway
	headers http.Header
}

// Read fetches one annotation.
func (s *Store) Read(ctx context.Context, id string) (annotation.Annotation, error) {
	var doc map[string]any
	if err := s.call(ctx, "read", http.MethodGet, "/annotations/"+url.PathEscape(id), nil, &doc); err != nil {
		return nil, err
	}
	return s.gw.factory(doc), nil
}

// Search runs a field search; params are forwarded verbatim.
func (s *Store) Search(ctx context.Context, params url.Values) ([]annotation.Annotation, error) {
	path := "/search"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var out struct {
		Rows []map[string]any `json:"rows"`
	}
	if err := s.call(ctx, "search", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	result := make([]annotation.Annotation, 0, len(out.Rows))
	for _, row := range out.Rows {
		result = append(result, s.gw.factory(row))
	}
	return result, nil
}

// SearchRaw posts a structured query and returns each hit's document with
// its id copied in from the hit.
func (s *Store) SearchRaw(ctx context.Context, query any) ([]annotation.Annotation, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "encode raw query")
	}
	var out struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := s.call(ctx, "search_raw", http.MethodPost, "/search_raw", body, &out); err != nil {
		return nil, err
	}
	result := make([]annotation.Annotation, 0, len(out.Hits.Hits))
	for _, hit := range out.Hits.Hits {
		src := hit.Source
		if src == nil {
			src = map[string]any{}
		}
		src[annotation.FieldID] = hit.ID
		result = append(result, s.gw.factory(src))
	}
	return result, nil
}

// Create is not supported through the gateway.
func (s *Store) Create(context.Context, annotation.Annotation) (annotation.Annotation, error) {
	return nil, ErrNotImplemented
}

// Update is not supported through the gateway.
func (s *Store) Update(context.Context, annotation.Annotation) (annotation.Annotation, error) {
	return nil, ErrNotImplemented
}

// Delete is not supported through the gateway.
func (s *Store) Delete(context.Context, string) error {
	return ErrNotImplemented
}

func (s *Store) call(ctx context.Context, op, method, path string, body []byte, out any) (err error) {
	ctx, span := s.gw.tracer.Start(ctx, "gateway."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
	)
	status := "error"
	defer func() {
		s.gw.metrics.IncGatewayRequest(op, status)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.gw.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("build %s sub-request: %w", op, err)
	}
	for name, values := range s.headers {
		req.Header[name] = append([]string(nil), values...)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if reqID := requestcontext.RequestID(ctx); reqID != "" {
		req.Header.Set("X-Request-Id", reqID)
	}

	resp, err := s.gw.invoker.Do(req)
	if err != nil {
		s.logFailure(ctx, op, err)
		return dErrors.Wrap(err, dErrors.CodeUpstream, "annotation store unreachable")
	}
	defer resp.Body.Close()

	status = strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= http.StatusBadRequest:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return &UpstreamError{Op: op, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		s.logFailure(ctx, op, err)
		return dErrors.Wrap(err, dErrors.CodeUpstream, "annotation store returned an unreadable body")
	}
	return nil
}

func (s *Store) logFailure(ctx context.Context, op string, err error) {
	if s.gw.logger == nil {
		return
	}
	s.gw.logger.WarnContext(ctx, "annotation store sub-request failed",
		"op", op,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
