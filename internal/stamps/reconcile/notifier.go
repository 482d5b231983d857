package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"visitproof/internal/platform/kafka/producer"
)

// Notifier hands off reconciliation work.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Producer is the publishing side of the Kafka producer.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// KafkaNotifier publishes events for the backfill worker.
type KafkaNotifier struct {
	producer Producer
	topic    string
}

func NewKafkaNotifier(p Producer, topic string) *KafkaNotifier {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaNotifier{producer: p, topic: topic}
}

func (n *KafkaNotifier) Notify(ctx context.Context, event Event) error {
	event = withDefaults(event)
	value, err := event.Encode()
	if err != nil {
		return fmt.Errorf("encode reconciliation event: %w", err)
	}
	return n.producer.Produce(ctx, &producer.Message{
		Topic: n.topic,
		Key:   []byte(event.Key()),
		Value: value,
		Headers: map[string]string{
			"event_id": event.ID.String(),
			"reason":   string(event.Reason),
		},
	})
}

// LogNotifier is used when no broker is configured; an operator works the log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	event = withDefaults(event)
	n.logger.ErrorContext(ctx, "reconciliation required",
		"event_id", event.ID.String(),
		"reason", string(event.Reason),
		"holder_id", event.HolderID,
		"location_id", event.LocationID,
		"token_id", event.TokenID,
		"tx_hash", event.TxHash,
		"reconciliation_pending", true,
	)
	return nil
}

func withDefaults(e Event) Event {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return e
}
