// Package events carries ledger events from the outbox to the worker over
// a message broker.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"famledger/internal/core"
)

// Message is the broker envelope around a ledger event.
type Message struct {
	Event       core.LedgerEvent `json:"event"`
	PublishedAt time.Time        `json:"publishedAt"`
}

func NewMessage(e core.LedgerEvent) *Message {
	return &Message{Event: e, PublishedAt: time.Now().UTC()}
}

// ToJSON converts the message to JSON bytes
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MessageFromJSON decodes a message and rejects envelopes without an event.
func MessageFromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Event.ID == "" || msg.Event.Type == "" {
		return nil, fmt.Errorf("message carries no event")
	}
	return &msg, nil
}

// Handler processes one delivered message. A returned error asks the
// transport to redeliver.
type Handler func(ctx context.Context, msg *Message) error

type Publisher interface {
	Publish(ctx context.Context, e core.LedgerEvent) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, h Handler) error
	Close() error
}

// LogPublisher stands in for a broker when no transport is configured. The
// relay still drains the outbox; events are only logged.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, e core.LedgerEvent) error {
	slog.DebugContext(ctx, "Event not forwarded, no transport configured",
		"event_id", e.ID,
		"event_type", e.Type,
		"aggregate_id", e.AggregateID)
	return nil
}

func (LogPublisher) Close() error { return nil }
