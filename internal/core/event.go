package core

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	EventTransactionCreated EventType = "transaction.created"
	EventTransactionUpdated EventType = "transaction.updated"
	EventTransactionDeleted EventType = "transaction.deleted"
	EventDebtCreated        EventType = "debt.created"
	EventDebtPaymentAdded   EventType = "debt.payment_added"
	EventDebtUpdated        EventType = "debt.updated"
	EventDebtDeleted        EventType = "debt.deleted"
)

type EventType string

// LedgerEvent is written to the outbox in the same unit of work as the change
// it describes, then relayed to the broker.
type LedgerEvent struct {
	ID          string          `json:"id"`
	Type        EventType       `json:"type"`
	AggregateID string          `json:"aggregateId"`
	UserID      string          `json:"user"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Payload     json.RawMessage `json:"payload"`
}

// EventPayload is the body of every ledger event. Only the fields relevant to
// the event type are set.
type EventPayload struct {
	Transaction *Transaction `json:"transaction,omitempty"`
	Previous    *Transaction `json:"previous,omitempty"`
	Debt        *Debt        `json:"debt,omitempty"`
}

// NewLedgerEvent builds an event with a fresh id.
func NewLedgerEvent(typ EventType, aggregateID, userID string, payload EventPayload, now time.Time) (LedgerEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return LedgerEvent{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return LedgerEvent{
		ID:          uuid.NewString(),
		Type:        typ,
		AggregateID: aggregateID,
		UserID:      userID,
		OccurredAt:  now.UTC(),
		Payload:     body,
	}, nil
}

// DecodePayload unmarshals the event body.
func (e LedgerEvent) DecodePayload() (EventPayload, error) {
	var p EventPayload
	if len(e.Payload) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return p, nil
}
