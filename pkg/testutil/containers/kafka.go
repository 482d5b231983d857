//go:build integration

package containers

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"

	"visitproof/internal/platform/kafka"
)

// KafkaContainer is a Redpanda broker, which speaks the Kafka protocol and starts fast.
type KafkaContainer struct {
	Container *redpanda.Container
	Brokers   string
}

func startKafka(ctx context.Context) (*KafkaContainer, error) {
	container, err := redpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v24.2.4")
	if err != nil {
		return nil, fmt.Errorf("run redpanda: %w", err)
	}

	broker, err := container.KafkaSeedBroker(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("redpanda seed broker: %w", err)
	}

	return &KafkaContainer{
		Container: container,
		Brokers:   broker,
	}, nil
}

// Topic creates a single-partition topic unique to the calling test so
// suites sharing the broker never read each other's records.
func (k *KafkaContainer) Topic(ctx context.Context, t *testing.T, prefix string) string {
	t.Helper()
	topic := prefix + "." + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if err := kafka.EnsureTopic(ctx, k.Brokers, topic, 1, 1); err != nil {
		t.Fatalf("create topic %s: %v", topic, err)
	}
	return topic
}
