package kafka

import (
	"testing"
	"time"

	"famledger/internal/core"
	"famledger/internal/events"
)

func TestNewMessage(t *testing.T) {
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	ev := core.LedgerEvent{ID: "evt-9", Type: core.EventTransactionDeleted, AggregateID: "tx-9", OccurredAt: at}

	m, err := newMessage(ev)
	if err != nil {
		t.Fatalf("newMessage() error = %v", err)
	}
	if string(m.Key) != "tx-9" {
		t.Errorf("Key = %q, want aggregate id", m.Key)
	}
	if !m.Time.Equal(at) {
		t.Errorf("Time = %v, want %v", m.Time, at)
	}
	headers := map[string]string{}
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["event_id"] != "evt-9" || headers["event_type"] != string(core.EventTransactionDeleted) {
		t.Errorf("headers = %v", headers)
	}

	decoded, err := events.MessageFromJSON(m.Value)
	if err != nil {
		t.Fatalf("MessageFromJSON() error = %v", err)
	}
	if decoded.Event.ID != "evt-9" {
		t.Errorf("decoded event id = %q", decoded.Event.ID)
	}
}

func TestNewPublisherConfig(t *testing.T) {
	p := NewPublisher([]string{"localhost:9092"}, "ledger-events")
	defer p.Close()
	if p.writer.Topic != "ledger-events" {
		t.Errorf("Topic = %q", p.writer.Topic)
	}
}
