// Package kafka is the Kafka transport for ledger events.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"famledger/internal/core"
	"famledger/internal/events"
)

var (
	_ events.Publisher = (*Publisher)(nil)
	_ events.Consumer  = (*Consumer)(nil)
)

// Publisher writes one message per event, keyed by aggregate id so every
// change to the same record lands on the same partition in order.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: 5 * time.Second,
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, e core.LedgerEvent) error {
	msg, err := newMessage(e)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	slog.DebugContext(ctx, "Published ledger event",
		"event_id", e.ID,
		"event_type", e.Type,
		"topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func newMessage(e core.LedgerEvent) (kafka.Message, error) {
	body, err := events.NewMessage(e).ToJSON()
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal message: %w", err)
	}
	return kafka.Message{
		Key:   []byte(e.AggregateID),
		Value: body,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(e.ID)},
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}, nil
}

// Consumer reads the topic as part of a consumer group. Offsets are
// committed only after the handler succeeds.
type Consumer struct {
	reader  *kafka.Reader
	backoff time.Duration
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		backoff: time.Second,
	}
}

func (c *Consumer) Consume(ctx context.Context, h events.Handler) error {
	slog.InfoContext(ctx, "Started consuming ledger events", "topic", c.reader.Config().Topic)
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("fetch kafka message: %w", err)
		}

		msg, err := events.MessageFromJSON(m.Value)
		if err != nil {
			slog.ErrorContext(ctx, "Skipping undecodable message",
				"error", err,
				"partition", m.Partition,
				"offset", m.Offset)
			if err := c.reader.CommitMessages(ctx, m); err != nil {
				return fmt.Errorf("commit kafka offset: %w", err)
			}
			continue
		}

		// Kafka has no per-message requeue, so retry in place until the
		// handler succeeds or ctx ends.
		for {
			err := h(ctx, msg)
			if err == nil {
				break
			}
			slog.ErrorContext(ctx, "Failed to handle message",
				"error", err,
				"event_id", msg.Event.ID,
				"event_type", msg.Event.Type)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff):
			}
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			return fmt.Errorf("commit kafka offset: %w", err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
