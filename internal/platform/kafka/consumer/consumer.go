package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message represents a received Kafka message.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Handler processes consumed messages.
type Handler interface {
	// Handle processes a message. Returning an error leaves the offset
	// uncommitted so the record is redelivered after a restart or rebalance.
	Handle(ctx context.Context, msg *Message) error
}

// Consumer is a franz-go group consumer with manual commits for at-least-once delivery.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
}

func New(cfg Config, handler Handler, logger *slog.Logger) (*Consumer, error) {
	if cfg.Brokers == "" {
		return nil, errors.New("kafka brokers not configured")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("kafka consumer group ID not configured")
	}
	if len(cfg.Topics) == 0 {
		return nil, errors.New("kafka consumer topics not configured")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(cfg.Brokers, ",")...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	return &Consumer{
		client:  client,
		handler: handler,
		logger:  logger,
	}, nil
}

// Run polls until ctx is cancelled. Records of a partition are handled in
// order; the first failing record stops commits for that partition in the
// current fetch so later offsets are not committed past it.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.ErrorContext(ctx, "kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		var commit []*kgo.Record
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			for _, record := range p.Records {
				if err := c.handler.Handle(ctx, toMessage(record)); err != nil {
					c.logger.ErrorContext(ctx, "failed to handle message",
						"topic", record.Topic,
						"partition", record.Partition,
						"offset", record.Offset,
						"error", err,
					)
					return
				}
				commit = append(commit, record)
			}
		})

		if len(commit) > 0 {
			if err := c.client.CommitRecords(ctx, commit...); err != nil {
				c.logger.ErrorContext(ctx, "failed to commit offsets", "error", err)
			}
		}
	}
}

func toMessage(r *kgo.Record) *Message {
	headers := make(map[string]string, len(r.Headers))
	for _, h := range r.Headers {
		headers[h.Key] = string(h.Value)
	}
	return &Message{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Key:       r.Key,
		Value:     r.Value,
		Headers:   headers,
		Timestamp: r.Timestamp,
	}
}

// Close leaves the group and closes the client.
func (c *Consumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.client.Close()
}
