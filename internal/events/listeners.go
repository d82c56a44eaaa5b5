package events

import (
	"context"
	"log/slog"

	"annogate/internal/platform/metrics"
	"annogate/pkg/requestcontext"
)

// LogListener writes one structured line per event.
type LogListener struct {
	logger *slog.Logger
}

// NewLogListener creates a LogListener.
func NewLogListener(logger *slog.Logger) *LogListener {
	return &LogListener{logger: logger}
}

func (l *LogListener) Handle(ctx context.Context, event Event) error {
	attrs := []any{
		"event", event.Name(),
		"request_id", requestcontext.RequestID(ctx),
	}
	switch e := event.(type) {
	case AnnotationEvent:
		attrs = append(attrs, "action", e.Action, "annotation_id", e.Annotation.ID())
	case LoginEvent:
		attrs = append(attrs, "user", e.User)
	case RegistrationActivatedEvent:
		attrs = append(attrs, "user_id", e.UserID)
	}
	l.logger.InfoContext(ctx, "lifecycle event", attrs...)
	return nil
}

// MetricsListener counts events by name and action.
type MetricsListener struct {
	metrics *metrics.Metrics
}

// NewMetricsListener creates a MetricsListener.
func NewMetricsListener(m *metrics.Metrics) *MetricsListener {
	return &MetricsListener{metrics: m}
}

func (l *MetricsListener) Handle(_ context.Context, event Event) error {
	action := ""
	if e, ok := event.(AnnotationEvent); ok {
		action = e.Action
	}
	l.metrics.IncEvent(event.Name(), action)
	return nil
}
