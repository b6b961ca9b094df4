// Package consumer wraps franz-go consumption for downstream projections
// (search indexer, notification dispatcher). Handlers receive one Message at
// a time; returning nil commits, returning an error stops the loop.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is one consumed record, decoupled from the Kafka client type so
// handlers stay testable.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Handler processes a single message.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// Consumer polls topics within a consumer group and dispatches to a Handler.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	logger  *slog.Logger
}

func New(brokers []string, group string, topics []string, handler Handler, logger *slog.Logger) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.AutoCommitMarks(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &Consumer{client: client, handler: handler, logger: logger}, nil
}

// Run polls until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return ctx.Err()
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("fetch error", "topic", topic, "partition", partition, "error", err)
		})

		var failed error
		fetches.EachRecord(func(record *kgo.Record) {
			if failed != nil {
				return
			}
			msg := &Message{
				Topic:     record.Topic,
				Key:       record.Key,
				Value:     record.Value,
				Timestamp: record.Timestamp,
			}
			if err := c.handler.Handle(ctx, msg); err != nil {
				failed = err
				return
			}
			c.client.MarkCommitRecords(record)
		})
		if failed != nil {
			return fmt.Errorf("handle record: %w", failed)
		}
	}
}

// Close leaves the group and shuts the client down.
func (c *Consumer) Close() {
	c.client.Close()
}
