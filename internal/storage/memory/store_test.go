package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"famledger/internal/core"
	"famledger/internal/ledger"
)

func seeded() *Store {
	s := New()
	s.Seed([]core.Account{
		{ID: "a", Name: "Alpha", Type: core.AccountBank, Balance: core.NewMoney(10, 0), IsActive: true},
		{ID: "z", Name: "Zulu", Type: core.AccountCash, IsActive: false},
	}, []core.Category{{ID: "c", Name: "Food", Kind: core.CategoryExpense, IsActive: true}})
	return s
}

func TestWithinTxRestoresSnapshotOnError(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.AdjustBalance(ctx, "a", core.NewMoney(5, 0), time.Now()); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, core.Transaction{ID: "t1", AccountID: "a"}); err != nil {
			return err
		}
		if err := tx.Enqueue(ctx, core.LedgerEvent{ID: "e1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}

	a, _ := s.GetAccount(ctx, "a")
	if a.Balance != core.NewMoney(10, 0) {
		t.Fatalf("balance = %s after rollback", a.Balance)
	}
	if _, err := s.GetTransaction(ctx, "t1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("transaction survived rollback: %v", err)
	}
	st, _ := s.OutboxStats(ctx)
	if st.Pending != 0 {
		t.Fatalf("event survived rollback: %+v", st)
	}
}

func TestAdjustBalanceUnknownAccount(t *testing.T) {
	s := seeded()
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return tx.AdjustBalance(ctx, "missing", core.NewMoney(1, 0), time.Now())
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestListAccountsHidesInactive(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	active, _ := s.ListAccounts(ctx, false)
	all, _ := s.ListAccounts(ctx, true)
	if len(active) != 1 || len(all) != 2 {
		t.Fatalf("active %d all %d", len(active), len(all))
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	_ = s.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.InsertTransaction(ctx, core.Transaction{ID: "t", AccountID: "a", Tags: []string{"x"}})
	})
	got, _ := s.GetTransaction(ctx, "t")
	got.Tags[0] = "mutated"
	again, _ := s.GetTransaction(ctx, "t")
	if again.Tags[0] != "x" {
		t.Fatalf("stored tags changed through a returned copy: %v", again.Tags)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_ = s.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		for _, id := range []string{"e1", "e2", "e3"} {
			if err := tx.Enqueue(ctx, core.LedgerEvent{ID: id, OccurredAt: now}); err != nil {
				return err
			}
		}
		return nil
	})

	batch, _ := s.DequeueEvents(ctx, 2)
	if len(batch) != 2 || batch[0].Event.ID != "e1" {
		t.Fatalf("batch = %+v", batch)
	}
	_ = s.MarkProcessing(ctx, "e1")
	_ = s.MarkPublished(ctx, "e1")
	_ = s.MarkProcessing(ctx, "e2")
	_ = s.IncrementAttempt(ctx, "e2", "broker down")
	_ = s.MarkProcessing(ctx, "e3")
	_ = s.MarkFailed(ctx, "e3", "poison")

	st, _ := s.OutboxStats(ctx)
	if st != (ledger.OutboxStats{Pending: 1, Published: 1, Failed: 1}) {
		t.Fatalf("stats = %+v", st)
	}

	_ = s.RetryFailed(ctx)
	_ = s.CleanupPublished(ctx, now.Add(time.Minute))
	st, _ = s.OutboxStats(ctx)
	if st != (ledger.OutboxStats{Pending: 2}) {
		t.Fatalf("stats after retry and cleanup = %+v", st)
	}

	if err := s.MarkPublished(ctx, "unknown"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("mark unknown: %v", err)
	}
}
