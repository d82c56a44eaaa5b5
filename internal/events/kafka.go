package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/twmb/franz-go/pkg/kgo"

	"annogate/internal/annotation"
	"annogate/pkg/requestcontext"
)

// Producer is the subset of *kgo.Client the publisher needs.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// Envelope is the JSON value published for each event.
type Envelope struct {
	ID           string                `json:"id"`
	Event        string                `json:"event"`
	Action       string                `json:"action,omitempty"`
	AnnotationID string                `json:"annotation_id,omitempty"`
	User         string                `json:"user,omitempty"`
	RequestID    string                `json:"request_id,omitempty"`
	OccurredAt   time.Time             `json:"occurred_at"`
	Annotation   annotation.Annotation `json:"annotation,omitempty"`
}

// KafkaPublisher forwards events to a Kafka topic. Production is
// asynchronous; delivery failures are logged and not retried here beyond
// what the client does internally.
type KafkaPublisher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

// NewKafkaClient builds the franz-go client used by the publisher.
func NewKafkaClient(brokers []string, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(50*time.Millisecond),
		kgo.RecordDeliveryTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// NewKafkaPublisher creates a publisher writing to topic.
func NewKafkaPublisher(producer Producer, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Handle(ctx context.Context, event Event) error {
	env := NewEnvelope(ctx, event)
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Name(), err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(env.key()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event", Value: []byte(env.Event)},
		},
	}
	// The request context ends with the response; production must outlive it.
	p.producer.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil && p.logger != nil {
			p.logger.Error("kafka publish failed",
				"event", env.Event,
				"event_id", env.ID,
				"topic", r.Topic,
				"error", err,
			)
		}
	})
	return nil
}

// NewEnvelope flattens an event into its published form.
func NewEnvelope(ctx context.Context, event Event) Envelope {
	env := Envelope{
		ID:         ulid.Make().String(),
		Event:      event.Name(),
		RequestID:  requestcontext.RequestID(ctx),
		OccurredAt: requestcontext.Now(ctx).UTC(),
	}
	switch e := event.(type) {
	case AnnotationEvent:
		env.Action = e.Action
		env.AnnotationID = e.Annotation.ID()
		env.User = e.Annotation.User()
		env.Annotation = e.Annotation
	case LoginEvent:
		env.User = e.User
	case RegistrationActivatedEvent:
		env.User = e.UserID
	}
	return env
}

func (e Envelope) key() string {
	if e.AnnotationID != "" {
		return e.AnnotationID
	}
	return e.User
}
