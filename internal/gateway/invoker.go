package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Invoker performs a sub-request against the annotation store.
type Invoker interface {
	Do(req *http.Request) (*http.Response, error)
}

// Remote sends sub-requests over the network. A nil client means
// http.DefaultClient.
func Remote(client *http.Client) Invoker {
	if client == nil {
		client = http.DefaultClient
	}
	return client
}

// InProcess dispatches sub-requests straight into h, normally the
// application's own router.
func InProcess(h http.Handler) Invoker {
	return inProcess{handler: h}
}

type inProcess struct {
	handler http.Handler
}

func (p inProcess) Do(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	// Drop the caller's routing state so the router matches the sub-request
	// path from the top.
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, nil)
	req = req.WithContext(ctx)
	if req.RequestURI == "" {
		req.RequestURI = req.URL.RequestURI()
	}
	if req.RemoteAddr == "" {
		req.RemoteAddr = "127.0.0.1:0"
	}

	w := &responseBuffer{header: make(http.Header)}
	p.handler.ServeHTTP(w, req)
	return w.response(req), nil
}

type responseBuffer struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (w *responseBuffer) Header() http.Header { return w.header }

func (w *responseBuffer) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *responseBuffer) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(p)
}

func (w *responseBuffer) response(req *http.Request) *http.Response {
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		Status:        http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        w.header,
		Body:          io.NopCloser(bytes.NewReader(w.body.Bytes())),
		ContentLength: int64(w.body.Len()),
		Request:       req,
	}
}
