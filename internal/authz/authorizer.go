// Package authz decides whether an actor may perform an action on an
// annotation by intersecting the annotation's grants with the actor's
// principals.
package authz

import (
	"context"

	"annogate/internal/annotation"
	"annogate/internal/consumer"
	"annogate/pkg/requestcontext"
)

// Synthetic principals appended to every computed principal set.
const (
	Everyone      = "system.Everyone"
	Authenticated = "system.Authenticated"
)

// AuthorizeFunc is Authorize with the request context already applied.
type AuthorizeFunc func(ann map[string]any, action string, user *consumer.User) bool

// Authorizer holds the authorization policy. It has no per-request state.
type Authorizer struct {
	factory     annotation.Factory
	defaultOpen bool
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithFactory sets the constructor used to wrap raw documents.
func WithFactory(f annotation.Factory) Option {
	return func(a *Authorizer) {
		if f != nil {
			a.factory = f
		}
	}
}

// WithDefaultOpen grants an action to Everyone when the annotation lists no
// principals for it. The default is closed: an absent or empty list allows
// nobody.
func WithDefaultOpen(open bool) Option {
	return func(a *Authorizer) {
		a.defaultOpen = open
	}
}

// New builds an Authorizer.
func New(opts ...Option) *Authorizer {
	a := &Authorizer{factory: annotation.New}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authorize reports whether the actor may perform action on ann. With a nil
// user the actor is whoever the request session claims to be.
func (a *Authorizer) Authorize(ctx context.Context, ann map[string]any, action string, user *consumer.User) bool {
	wrapped := a.factory(ann)
	allowed := a.allowed(wrapped, action)
	if len(allowed) == 0 {
		return false
	}

	var personas []string
	if user == nil {
		personas = requestcontext.Personas(ctx)
	}
	for _, p := range Principals(personas, user) {
		if _, ok := allowed[p]; ok {
			return true
		}
	}
	return false
}

// Bind partially applies Authorize to the request context.
func (a *Authorizer) Bind(ctx context.Context) AuthorizeFunc {
	return func(ann map[string]any, action string, user *consumer.User) bool {
		return a.Authorize(ctx, ann, action, user)
	}
}

func (a *Authorizer) allowed(ann annotation.Annotation, action string) map[string]struct{} {
	principals := ann.Permissions()[action]
	if len(principals) == 0 && a.defaultOpen {
		principals = []string{Everyone}
	}
	set := make(map[string]struct{}, len(principals))
	for _, p := range principals {
		set[p] = struct{}{}
	}
	return set
}

// Principals computes the principal set of an actor: the explicit user's id
// when given, the session personas otherwise, then Authenticated when any
// concrete identity is present, then Everyone. personas is not modified.
func Principals(personas []string, user *consumer.User) []string {
	var out []string
	if user != nil {
		out = []string{user.ID}
	} else {
		out = make([]string, 0, len(personas)+2)
		out = append(out, personas...)
	}
	if len(out) > 0 {
		out = append(out, Authenticated)
	}
	return append(out, Everyone)
}
