package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"famledger/internal/core"
	"famledger/internal/ledger"

	_ "modernc.org/sqlite"
)

var (
	_ ledger.Store  = (*SQLiteRepository)(nil)
	_ ledger.Outbox = (*SQLiteRepository)(nil)
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

// DSN returns the connection string for dbPath. Write transactions take the
// database lock on BEGIN, so two units of work never interleave their
// balance updates.
func DSN(dbPath string) string {
	return "file:" + dbPath +
		"?_txlock=immediate" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// WithinTx runs fn in one database transaction. Any error from fn rolls
// back every write made through tx.
func (r *SQLiteRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, &unitOfWork{reader: reader{q: r.queries.WithTx(sqlTx)}}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr, "cause", err)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return core.NewConsistencyError("commit", err)
	}
	return nil
}

func (r *SQLiteRepository) read() reader { return reader{q: r.queries} }

func (r *SQLiteRepository) GetAccount(ctx context.Context, id string) (core.Account, error) {
	return r.read().GetAccount(ctx, id)
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context, includeInactive bool) ([]core.Account, error) {
	return r.read().ListAccounts(ctx, includeInactive)
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id string) (core.Category, error) {
	return r.read().GetCategory(ctx, id)
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	return r.read().ListCategories(ctx)
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return r.read().GetTransaction(ctx, id)
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	return r.read().ListTransactions(ctx, f)
}

func (r *SQLiteRepository) GetDebt(ctx context.Context, id string) (core.Debt, error) {
	return r.read().GetDebt(ctx, id)
}

func (r *SQLiteRepository) ListDebts(ctx context.Context, f ledger.DebtFilter) ([]core.Debt, error) {
	return r.read().ListDebts(ctx, f)
}

// reader serves the read side from either the pool or an open transaction.
type reader struct {
	q *Queries
}

func (r reader) GetAccount(ctx context.Context, id string) (core.Account, error) {
	return r.q.GetAccount(ctx, id)
}

func (r reader) ListAccounts(ctx context.Context, includeInactive bool) ([]core.Account, error) {
	return r.q.ListAccounts(ctx, includeInactive)
}

func (r reader) GetCategory(ctx context.Context, id string) (core.Category, error) {
	return r.q.GetCategory(ctx, id)
}

func (r reader) ListCategories(ctx context.Context) ([]core.Category, error) {
	return r.q.ListCategories(ctx)
}

func (r reader) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return r.q.GetTransaction(ctx, id)
}

func (r reader) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	return r.q.ListTransactions(ctx, f)
}

func (r reader) GetDebt(ctx context.Context, id string) (core.Debt, error) {
	d, err := r.q.GetDebt(ctx, id)
	if err != nil {
		return core.Debt{}, err
	}
	if d.Entries, err = r.q.ListDebtEntries(ctx, d.ID); err != nil {
		return core.Debt{}, err
	}
	return d, nil
}

func (r reader) ListDebts(ctx context.Context, f ledger.DebtFilter) ([]core.Debt, error) {
	debts, err := r.q.ListDebts(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range debts {
		if debts[i].Entries, err = r.q.ListDebtEntries(ctx, debts[i].ID); err != nil {
			return nil, err
		}
	}
	return debts, nil
}

type unitOfWork struct {
	reader
}

func affected(n int64, err error, what, id string) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return core.NotFoundf("%s %s", what, id)
	}
	return nil
}

func (u *unitOfWork) InsertAccount(ctx context.Context, a core.Account) error {
	if err := u.q.InsertAccount(ctx, a); err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (u *unitOfWork) DeactivateAccount(ctx context.Context, id string, at time.Time) error {
	n, err := u.q.DeactivateAccount(ctx, id, at)
	return affected(n, err, "account", id)
}

func (u *unitOfWork) InsertCategory(ctx context.Context, c core.Category) error {
	if err := u.q.InsertCategory(ctx, c); err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (u *unitOfWork) AdjustBalance(ctx context.Context, accountID string, delta core.Money, at time.Time) error {
	if !delta.InRange() {
		return fmt.Errorf("%w: delta %s for account %s", core.ErrBalanceOutOfRange, delta, accountID)
	}
	n, err := u.q.AdjustBalance(ctx, accountID, delta.Cents, core.MaxBalance.Cents, at)
	if err != nil || n > 0 {
		return affected(n, err, "account", accountID)
	}
	if _, err := u.q.GetAccount(ctx, accountID); err != nil {
		return err
	}
	return fmt.Errorf("%w: account %s", core.ErrBalanceOutOfRange, accountID)
}

func (u *unitOfWork) InsertTransaction(ctx context.Context, t core.Transaction) error {
	if err := u.q.InsertTransaction(ctx, t); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (u *unitOfWork) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	n, err := u.q.UpdateTransaction(ctx, t)
	return affected(n, err, "transaction", t.ID)
}

func (u *unitOfWork) DeleteTransaction(ctx context.Context, id string) error {
	n, err := u.q.DeleteTransaction(ctx, id)
	return affected(n, err, "transaction", id)
}

func (u *unitOfWork) InsertDebt(ctx context.Context, d core.Debt) error {
	if err := u.q.InsertDebt(ctx, d); err != nil {
		return fmt.Errorf("insert debt: %w", err)
	}
	return u.writeEntries(ctx, d)
}

func (u *unitOfWork) UpdateDebt(ctx context.Context, d core.Debt) error {
	n, err := u.q.UpdateDebt(ctx, d)
	if err := affected(n, err, "debt", d.ID); err != nil {
		return err
	}
	if err := u.q.DeleteDebtEntries(ctx, d.ID); err != nil {
		return fmt.Errorf("clear debt entries: %w", err)
	}
	return u.writeEntries(ctx, d)
}

func (u *unitOfWork) writeEntries(ctx context.Context, d core.Debt) error {
	for i, e := range d.Entries {
		if err := u.q.InsertDebtEntry(ctx, d.ID, i, e); err != nil {
			return fmt.Errorf("insert debt entry %d: %w", i, err)
		}
	}
	return nil
}

func (u *unitOfWork) Enqueue(ctx context.Context, e core.LedgerEvent) error {
	if err := u.q.InsertEvent(ctx, e); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Outbox, used by the relay outside any unit of work.

func (r *SQLiteRepository) DequeueEvents(ctx context.Context, limit int) ([]ledger.OutboxEntry, error) {
	return r.queries.DequeueEvents(ctx, int64(limit))
}

func (r *SQLiteRepository) MarkProcessing(ctx context.Context, id string) error {
	n, err := r.queries.SetEventStatus(ctx, id, ledger.OutboxProcessing, r.now())
	return affected(n, err, "event", id)
}

func (r *SQLiteRepository) MarkPublished(ctx context.Context, id string) error {
	n, err := r.queries.SetEventStatus(ctx, id, ledger.OutboxPublished, r.now())
	return affected(n, err, "event", id)
}

func (r *SQLiteRepository) IncrementAttempt(ctx context.Context, id, lastErr string) error {
	n, err := r.queries.RecordEventAttempt(ctx, id, ledger.OutboxPending, lastErr, r.now())
	return affected(n, err, "event", id)
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id, lastErr string) error {
	n, err := r.queries.RecordEventAttempt(ctx, id, ledger.OutboxFailed, lastErr, r.now())
	if err := affected(n, err, "event", id); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Event marked as failed", "event_id", id, "error", lastErr)
	return nil
}

func (r *SQLiteRepository) ResetStaleProcessing(ctx context.Context) error {
	n, err := r.queries.ResetStaleEvents(ctx)
	if err != nil {
		return fmt.Errorf("reset stale events: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Reset stale processing events", "count", n)
	}
	return nil
}

func (r *SQLiteRepository) CleanupPublished(ctx context.Context, before time.Time) error {
	n, err := r.queries.CleanupPublishedEvents(ctx, before)
	if err != nil {
		return fmt.Errorf("cleanup published events: %w", err)
	}
	slog.DebugContext(ctx, "Cleaned up published events", "count", n)
	return nil
}

func (r *SQLiteRepository) RetryFailed(ctx context.Context) error {
	n, err := r.queries.RetryFailedEvents(ctx)
	if err != nil {
		return fmt.Errorf("retry failed events: %w", err)
	}
	slog.InfoContext(ctx, "Failed events requeued", "count", n)
	return nil
}

func (r *SQLiteRepository) OutboxStats(ctx context.Context) (ledger.OutboxStats, error) {
	st, err := r.queries.EventStats(ctx)
	if err != nil {
		return ledger.OutboxStats{}, fmt.Errorf("event stats: %w", err)
	}
	return st, nil
}
