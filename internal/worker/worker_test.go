package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"famledger/internal/core"
	"famledger/internal/events"
	"famledger/internal/ledger"
	"famledger/internal/log"
	"famledger/internal/sheets"
	"famledger/internal/sheets/memory"
)

func quietLogger() *log.Logger {
	return log.New(log.Config{Level: slog.LevelError, Output: io.Discard})
}

// sliceConsumer delivers a fixed list of messages once each.
type sliceConsumer struct {
	msgs     []*events.Message
	handled  int
	lastErr  error
	closeErr error
}

func (c *sliceConsumer) Consume(ctx context.Context, h events.Handler) error {
	for _, m := range c.msgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h(ctx, m); err != nil {
			c.lastErr = err
			continue
		}
		c.handled++
	}
	return nil
}

func (c *sliceConsumer) Close() error { return c.closeErr }

type failingAppender struct{ err error }

func (f failingAppender) AppendRow(context.Context, sheets.LedgerRow) (string, error) {
	return "", f.err
}

func transactionEvent(t *testing.T, typ core.EventType) *events.Message {
	t.Helper()
	tx := core.Transaction{
		ID:         "t1",
		UserID:     "alice",
		Title:      "Groceries",
		Amount:     core.NewMoney(12, 50),
		Type:       core.TxExpense,
		AccountID:  "a1",
		CategoryID: "c1",
		Date:       core.NewDate(2024, 3, 9),
	}
	e, err := core.NewLedgerEvent(typ, tx.ID, tx.UserID, core.EventPayload{Transaction: &tx}, time.Now())
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	return events.NewMessage(e)
}

func TestSyncWorkerMirrorsEvents(t *testing.T) {
	journal := memory.New()
	w := NewSyncWorker(journal, quietLogger())

	created := transactionEvent(t, core.EventTransactionCreated)
	consumer := &sliceConsumer{msgs: []*events.Message{
		created,
		transactionEvent(t, core.EventTransactionDeleted),
		created, // redelivery
	}}
	if err := w.Run(context.Background(), consumer); err != nil {
		t.Fatalf("run: %v", err)
	}

	rows := journal.Rows()
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 (redelivery must not duplicate)", len(rows))
	}
	if rows[0].Title != "Groceries" || rows[0].Amount.Cents != 1250 || rows[0].Event != core.EventTransactionCreated {
		t.Fatalf("unexpected row %+v", rows[0])
	}
	if got := w.Stats(); got.Mirrored != 3 || got.Failed != 0 {
		t.Fatalf("stats = %+v", got)
	}
}

func TestSyncWorkerSkipsUnmirrorableEvents(t *testing.T) {
	journal := memory.New()
	w := NewSyncWorker(journal, quietLogger())

	bogus := &events.Message{Event: core.LedgerEvent{ID: "e1", Type: "budget.created"}}
	if err := w.HandleMessage(context.Background(), bogus); err != nil {
		t.Fatalf("unknown events should be acknowledged, got %v", err)
	}
	empty := &events.Message{Event: core.LedgerEvent{ID: "e2", Type: core.EventDebtCreated}}
	if err := w.HandleMessage(context.Background(), empty); err != nil {
		t.Fatalf("events without payload should be acknowledged, got %v", err)
	}
	if len(journal.Rows()) != 0 || w.Stats().Skipped != 2 {
		t.Fatalf("rows=%d stats=%+v", len(journal.Rows()), w.Stats())
	}
}

func TestSyncWorkerReturnsWriteErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	w := NewSyncWorker(failingAppender{err: boom}, quietLogger())

	err := w.HandleMessage(context.Background(), transactionEvent(t, core.EventTransactionCreated))
	if !errors.Is(err, boom) {
		t.Fatalf("expected write error to propagate, got %v", err)
	}
	if w.Stats().Failed != 1 {
		t.Fatalf("stats = %+v", w.Stats())
	}
}

func TestSyncWorkerRunIgnoresCancellation(t *testing.T) {
	w := NewSyncWorker(memory.New(), quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	consumer := &sliceConsumer{msgs: []*events.Message{transactionEvent(t, core.EventTransactionCreated)}}
	if err := w.Run(ctx, consumer); err != nil {
		t.Fatalf("cancelled run should stop cleanly, got %v", err)
	}
}

type fakeAuditor struct {
	report ledger.Report
	err    error
	calls  int
}

func (f *fakeAuditor) Run(context.Context) (ledger.Report, error) {
	f.calls++
	return f.report, f.err
}

func TestReconcileSchedulerRunOnce(t *testing.T) {
	auditor := &fakeAuditor{report: ledger.Report{Accounts: 2, Transactions: 5}}
	s, err := NewReconcileScheduler(auditor, "@every 1h", quietLogger())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	if _, ok := s.LastReport(); ok {
		t.Fatalf("no report expected before the first run")
	}
	report, err := s.RunOnce(context.Background())
	if err != nil || !report.Clean() {
		t.Fatalf("report=%+v err=%v", report, err)
	}
	last, ok := s.LastReport()
	if !ok || last.Transactions != 5 || s.Runs() != 1 {
		t.Fatalf("last=%+v ok=%v runs=%d", last, ok, s.Runs())
	}
}

func TestReconcileSchedulerRecordsDrift(t *testing.T) {
	auditor := &fakeAuditor{
		report: ledger.Report{Drifts: []ledger.Drift{{AccountID: "a1", Expected: core.NewMoney(10, 0), Actual: core.NewMoney(9, 0)}}},
		err:    core.NewConsistencyError("reconcile", errors.New("1 account drifted")),
	}
	s, err := NewReconcileScheduler(auditor, "0 3 * * *", quietLogger())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	_, err = s.RunOnce(context.Background())
	if !errors.Is(err, core.ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
	last, ok := s.LastReport()
	if !ok || last.Clean() {
		t.Fatalf("drift report should be kept, got %+v", last)
	}
}

func TestReconcileSchedulerFailureKeepsPreviousReport(t *testing.T) {
	auditor := &fakeAuditor{err: errors.New("database is locked")}
	s, err := NewReconcileScheduler(auditor, "@hourly", quietLogger())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	if _, err := s.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if _, ok := s.LastReport(); ok || s.Runs() != 0 {
		t.Fatalf("failed runs must not be recorded")
	}
}

func TestReconcileSchedulerRejectsBadSchedule(t *testing.T) {
	if _, err := NewReconcileScheduler(&fakeAuditor{}, "every now and then", quietLogger()); err == nil {
		t.Fatalf("expected schedule error")
	}
}

func TestReconcileSchedulerStartStop(t *testing.T) {
	s, err := NewReconcileScheduler(&fakeAuditor{}, "@every 1h", quietLogger())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.Start()
	if s.nextRun().IsZero() {
		t.Fatalf("next run should be scheduled")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
