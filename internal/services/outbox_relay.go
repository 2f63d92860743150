package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"famledger/internal/events"
	"famledger/internal/ledger"
)

// OutboxRelayConfig holds configuration for the outbox relay
type OutboxRelayConfig struct {
	// PollInterval is how often to check for pending events (default: 5s)
	PollInterval time.Duration

	// BatchSize is the max number of events to publish per poll cycle (default: 50)
	BatchSize int

	// MaxRetries is the maximum publish attempts before marking as failed (default: 5)
	MaxRetries int

	// CleanupInterval is how often to clean up published events (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old published events must be before cleanup (default: 72h)
	CleanupAge time.Duration
}

// DefaultOutboxRelayConfig returns sensible defaults
func DefaultOutboxRelayConfig() OutboxRelayConfig {
	return OutboxRelayConfig{
		PollInterval:    5 * time.Second,
		BatchSize:       50,
		MaxRetries:      5,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      72 * time.Hour,
	}
}

// OutboxRelay moves events written by ledger units of work to the broker.
// Each event is published at least once; consumers dedupe on event id.
type OutboxRelay struct {
	outbox    ledger.Outbox
	publisher events.Publisher
	config    OutboxRelayConfig
	now       func() time.Time

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewOutboxRelay creates a new outbox relay
func NewOutboxRelay(outbox ledger.Outbox, publisher events.Publisher, config OutboxRelayConfig) *OutboxRelay {
	return &OutboxRelay{
		outbox:    outbox,
		publisher: publisher,
		config:    config,
		now:       time.Now,
	}
}

// Start begins the relay loop. Returns an error if already running.
func (r *OutboxRelay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("outbox relay is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	// Events a crashed relay left in processing go back to pending
	if err := r.outbox.ResetStaleProcessing(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to reset stale processing events", "error", err)
	}

	go r.runLoop(ctx)

	slog.InfoContext(ctx, "Outbox relay started",
		"poll_interval", r.config.PollInterval,
		"batch_size", r.config.BatchSize)

	return nil
}

// Stop gracefully stops the relay and waits for the current batch.
func (r *OutboxRelay) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	close(r.stopCh)

	select {
	case <-r.doneCh:
		slog.InfoContext(ctx, "Outbox relay stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Outbox relay stop timed out")
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	return nil
}

// IsRunning returns whether the relay is currently running
func (r *OutboxRelay) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *OutboxRelay) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	pollTicker := time.NewTicker(r.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(r.config.CleanupInterval)
	defer cleanupTicker.Stop()

	// Drain whatever accumulated while we were down
	r.ProcessBatch(ctx)

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			r.ProcessBatch(ctx)
		case <-cleanupTicker.C:
			r.cleanupPublished(ctx)
		}
	}
}

// ProcessBatch publishes one batch of pending events and returns how many
// were published.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) int {
	entries, err := r.outbox.DequeueEvents(ctx, r.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to dequeue outbox batch", "error", err)
		return 0
	}

	if len(entries) == 0 {
		return 0
	}

	slog.DebugContext(ctx, "Publishing outbox batch", "count", len(entries))

	published := 0
	for _, entry := range entries {
		if r.stopping(ctx) {
			return published
		}

		id := entry.Event.ID
		if err := r.outbox.MarkProcessing(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to mark event as processing",
				"event_id", id, "error", err)
			continue
		}

		if err := r.publisher.Publish(ctx, entry.Event); err != nil {
			r.handleFailure(ctx, entry, err)
			continue
		}

		if err := r.outbox.MarkPublished(ctx, id); err != nil {
			// The event went out; a later relay run will send it again.
			slog.ErrorContext(ctx, "Failed to mark event as published",
				"event_id", id, "error", err)
			continue
		}
		published++
	}
	return published
}

func (r *OutboxRelay) stopping(ctx context.Context) bool {
	r.mu.Lock()
	stopCh := r.stopCh
	r.mu.Unlock()

	if ctx.Err() != nil {
		return true
	}
	if stopCh == nil {
		return false
	}
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}

// handleFailure puts the event back for another attempt, or parks it once
// MaxRetries is reached.
func (r *OutboxRelay) handleFailure(ctx context.Context, entry ledger.OutboxEntry, publishErr error) {
	id := entry.Event.ID
	slog.WarnContext(ctx, "Event publish failed",
		"event_id", id,
		"event_type", entry.Event.Type,
		"attempt", entry.Attempts+1,
		"error", publishErr)

	if entry.Attempts+1 >= r.config.MaxRetries {
		if err := r.outbox.MarkFailed(ctx, id, publishErr.Error()); err != nil {
			slog.ErrorContext(ctx, "Failed to mark event as failed",
				"event_id", id, "error", err)
		}
		slog.ErrorContext(ctx, "Event failed permanently after max retries",
			"event_id", id,
			"aggregate_id", entry.Event.AggregateID,
			"attempts", entry.Attempts+1)
		return
	}

	if err := r.outbox.IncrementAttempt(ctx, id, publishErr.Error()); err != nil {
		slog.ErrorContext(ctx, "Failed to increment event attempt",
			"event_id", id, "error", err)
	}
}

func (r *OutboxRelay) cleanupPublished(ctx context.Context) {
	cutoff := r.now().Add(-r.config.CleanupAge)
	if err := r.outbox.CleanupPublished(ctx, cutoff); err != nil {
		slog.ErrorContext(ctx, "Failed to cleanup published events", "error", err)
	}
}

// Stats returns current outbox statistics
func (r *OutboxRelay) Stats(ctx context.Context) (ledger.OutboxStats, error) {
	return r.outbox.OutboxStats(ctx)
}

// RetryFailed resets all failed events for another round of attempts
func (r *OutboxRelay) RetryFailed(ctx context.Context) error {
	return r.outbox.RetryFailed(ctx)
}
