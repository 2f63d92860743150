// Package worker holds the background jobs of famledger-worker: mirroring
// ledger events into the spreadsheet journal and scheduled reconciliation.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"famledger/internal/events"
	"famledger/internal/log"
	"famledger/internal/sheets"
)

// SyncWorker mirrors ledger events into a journal, one row per event.
type SyncWorker struct {
	rows   sheets.RowAppender
	logger *log.Logger

	mirrored atomic.Int64
	skipped  atomic.Int64
	failed   atomic.Int64
}

// SyncStats counts handled messages since start.
type SyncStats struct {
	Mirrored int64 `json:"mirrored"`
	Skipped  int64 `json:"skipped"`
	Failed   int64 `json:"failed"`
}

func NewSyncWorker(rows sheets.RowAppender, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &SyncWorker{rows: rows, logger: logger.WithComponent(log.ComponentSheets)}
}

// Run consumes events until ctx is cancelled or the consumer gives up.
func (w *SyncWorker) Run(ctx context.Context, consumer events.Consumer) error {
	w.logger.InfoContext(ctx, "Ledger mirror started")
	err := consumer.Consume(ctx, w.HandleMessage)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consume ledger events: %w", err)
	}
	w.logger.InfoContext(ctx, "Ledger mirror stopped",
		"mirrored", w.mirrored.Load(),
		"skipped", w.skipped.Load(),
		"failed", w.failed.Load())
	return nil
}

// HandleMessage appends the journal row for one delivered event. Events that
// cannot be turned into a row are acknowledged and skipped, since redelivery
// would never succeed. Write failures are returned so the broker redelivers.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg *events.Message) error {
	e := msg.Event
	fields := log.NewFields().
		WithOperation(log.OpMirror).
		WithEvent(e)

	row, err := sheets.RowFromEvent(e)
	if err != nil {
		w.skipped.Add(1)
		w.logger.WarnContext(ctx, "Skipping event that cannot be mirrored",
			append(fields.WithError(err).ToSlice(), log.FieldErrorType, log.ErrorTypeValidation)...)
		return nil
	}

	ref, err := w.rows.AppendRow(ctx, row)
	if err != nil {
		w.failed.Add(1)
		w.logger.ErrorContext(ctx, "Failed to mirror ledger event",
			append(fields.WithError(err).ToSlice(), log.FieldErrorType, log.ErrorTypeExternal)...)
		return fmt.Errorf("append row for event %s: %w", e.ID, err)
	}

	w.mirrored.Add(1)
	w.logger.InfoContext(ctx, "Ledger event mirrored",
		append(fields.ToSlice(), log.FieldSheetsRef, ref)...)
	return nil
}

func (w *SyncWorker) Stats() SyncStats {
	return SyncStats{
		Mirrored: w.mirrored.Load(),
		Skipped:  w.skipped.Load(),
		Failed:   w.failed.Load(),
	}
}
