package binder

import (
	"context"

	"annogate/internal/annotation"
	"annogate/internal/authz"
	"annogate/internal/consumer"
)

// Bindings are the request-scoped collaborators the annotation store reads
// while serving a route.
type Bindings struct {
	NewAnnotation annotation.Factory
	Auth          *consumer.Authenticator
	Authorize     authz.AuthorizeFunc
	BeforeUpdate  func(annotation.Annotation)
}

type bindingsKey struct{}

// WithBindings attaches b to ctx.
func WithBindings(ctx context.Context, b *Bindings) context.Context {
	return context.WithValue(ctx, bindingsKey{}, b)
}

// FromContext returns the bindings for the request, if the route was served
// through a Binder.
func FromContext(ctx context.Context) (*Bindings, bool) {
	b, ok := ctx.Value(bindingsKey{}).(*Bindings)
	return b, ok && b != nil
}
