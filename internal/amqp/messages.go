package amqp

import (
	"time"

	"github.com/rabbitmq/amqp091-go"

	"famledger/internal/core"
)

// newPublishing wraps an encoded event message. The event id doubles as the
// message id so consumers can drop duplicates.
func newPublishing(e core.LedgerEvent, body []byte) amqp091.Publishing {
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent, // make message persistent
		MessageId:    e.ID,
		Type:         string(e.Type),
		Timestamp:    time.Now(),
		Headers: amqp091.Table{
			"aggregate_id": e.AggregateID,
			"user_id":      e.UserID,
		},
		Body: body,
	}
}
