package ledger

import (
	"context"
	"time"

	"famledger/internal/core"
)

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxPublished  OutboxStatus = "published"
	OutboxFailed     OutboxStatus = "failed"
)

type OutboxStatus string

// OutboxEntry is a queued ledger event with its delivery state.
type OutboxEntry struct {
	Event     core.LedgerEvent
	Status    OutboxStatus
	Attempts  int
	LastError string
	UpdatedAt time.Time
}

type OutboxStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Published  int64 `json:"published"`
	Failed     int64 `json:"failed"`
}

// Outbox is the relay side of the event queue filled by Tx.Enqueue.
type Outbox interface {
	// DequeueEvents returns up to limit pending events, oldest first.
	DequeueEvents(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkPublished(ctx context.Context, id string) error
	// IncrementAttempt puts the event back to pending with one more attempt.
	IncrementAttempt(ctx context.Context, id, lastErr string) error
	MarkFailed(ctx context.Context, id, lastErr string) error
	// ResetStaleProcessing returns events left processing by a crashed relay
	// to pending.
	ResetStaleProcessing(ctx context.Context) error
	CleanupPublished(ctx context.Context, before time.Time) error
	RetryFailed(ctx context.Context) error
	OutboxStats(ctx context.Context) (OutboxStats, error)
}
