// Package events carries lifecycle notifications from the request path to
// listeners such as search-index updaters and auditors.
package events

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"annogate/internal/annotation"
	"annogate/pkg/requestcontext"
)

// Event names.
const (
	NameAnnotation            = "annotation"
	NameLogin                 = "login"
	NameLogout                = "logout"
	NameRegistrationActivated = "registration_activated"
)

// Event is anything dispatched on the Bus.
type Event interface {
	Name() string
}

// AnnotationEvent reports a successful annotation operation. Action is the
// store route verb: "create", "read", "update" or "delete".
type AnnotationEvent struct {
	Request    *http.Request
	Annotation annotation.Annotation
	Action     string
}

func (AnnotationEvent) Name() string { return NameAnnotation }

// LoginEvent reports a successful login; User is the persona now claimed.
type LoginEvent struct {
	Request *http.Request
	User    string
}

func (LoginEvent) Name() string { return NameLogin }

// LogoutEvent reports a logout.
type LogoutEvent struct {
	Request *http.Request
}

func (LogoutEvent) Name() string { return NameLogout }

// RegistrationActivatedEvent reports an account activated by code.
type RegistrationActivatedEvent struct {
	Request *http.Request
	UserID  string
	Code    string
}

func (RegistrationActivatedEvent) Name() string { return NameRegistrationActivated }

// Listener consumes events. Errors are logged by the Bus and never reach the
// HTTP caller.
type Listener interface {
	Handle(ctx context.Context, event Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, event Event) error

func (f ListenerFunc) Handle(ctx context.Context, event Event) error { return f(ctx, event) }

// Notifier is the producing side of the Bus.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Bus dispatches events synchronously to listeners in subscription order.
type Bus struct {
	mu        sync.RWMutex
	listeners []Listener
	logger    *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers a listener. Subscriptions normally happen at startup.
func (b *Bus) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Notify delivers event to every listener.
func (b *Bus) Notify(ctx context.Context, event Event) {
	b.mu.RLock()
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	for _, l := range listeners {
		if err := l.Handle(ctx, event); err != nil && b.logger != nil {
			b.logger.ErrorContext(ctx, "event listener failed",
				"event", event.Name(),
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}
}
