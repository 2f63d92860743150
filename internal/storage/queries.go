package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"famledger/internal/core"
	"famledger/internal/ledger"
)

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.NotFoundf("%s %s", what, id)
	}
	return fmt.Errorf("get %s %s: %w", what, id, err)
}

// Accounts

const accountColumns = `id, name, type, balance_cents, opening_balance_cents, currency, icon, color, description, is_active, created_by, created_at, updated_at`

func scanAccount(row rowScanner) (core.Account, error) {
	var (
		a                  core.Account
		balance, opening   int64
		active             int64
		createdAt, updated string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Type, &balance, &opening, &a.Currency, &a.Icon, &a.Color,
		&a.Description, &active, &a.CreatedBy, &createdAt, &updated); err != nil {
		return core.Account{}, err
	}
	a.Balance, a.OpeningBalance, a.IsActive = core.Money{Cents: balance}, core.Money{Cents: opening}, active == 1
	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Account{}, err
	}
	if a.UpdatedAt, err = parseTime(updated); err != nil {
		return core.Account{}, err
	}
	return a, nil
}

const getAccount = `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`

func (q *Queries) GetAccount(ctx context.Context, id string) (core.Account, error) {
	a, err := scanAccount(q.db.QueryRowContext(ctx, getAccount, id))
	if err != nil {
		return core.Account{}, notFound(err, "account", id)
	}
	return a, nil
}

const listAccounts = `SELECT ` + accountColumns + ` FROM accounts WHERE (? = 1 OR is_active = 1) ORDER BY name`

func (q *Queries) ListAccounts(ctx context.Context, includeInactive bool) ([]core.Account, error) {
	rows, err := q.db.QueryContext(ctx, listAccounts, boolInt(includeInactive))
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()
	var items []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

const insertAccount = `INSERT INTO accounts (` + accountColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertAccount(ctx context.Context, a core.Account) error {
	_, err := q.db.ExecContext(ctx, insertAccount, a.ID, a.Name, string(a.Type), a.Balance.Cents, a.OpeningBalance.Cents,
		a.Currency, a.Icon, a.Color, a.Description, boolInt(a.IsActive), a.CreatedBy, formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	return err
}

const deactivateAccount = `UPDATE accounts SET is_active = 0, updated_at = ? WHERE id = ?`

func (q *Queries) DeactivateAccount(ctx context.Context, id string, at time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, deactivateAccount, formatTime(at), id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// adjustBalance is a single atomic increment; the balance is never read back.
// Rows whose new balance would leave [-limit, limit] are not touched.
const adjustBalance = `UPDATE accounts SET balance_cents = balance_cents + ?, updated_at = ?
WHERE id = ? AND balance_cents + ? BETWEEN ? AND ?`

func (q *Queries) AdjustBalance(ctx context.Context, id string, delta, limit int64, at time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, adjustBalance, delta, formatTime(at), id, delta, -limit, limit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Categories

const categoryColumns = `id, name, type, monthly_budget_cents, icon, color, description, is_active, created_by, created_at`

func scanCategory(row rowScanner) (core.Category, error) {
	var (
		c         core.Category
		budget    int64
		active    int64
		createdAt string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Kind, &budget, &c.Icon, &c.Color, &c.Description, &active, &c.CreatedBy, &createdAt); err != nil {
		return core.Category{}, err
	}
	c.MonthlyBudget, c.IsActive = core.Money{Cents: budget}, active == 1
	var err error
	c.CreatedAt, err = parseTime(createdAt)
	return c, err
}

const getCategory = `SELECT ` + categoryColumns + ` FROM categories WHERE id = ?`

func (q *Queries) GetCategory(ctx context.Context, id string) (core.Category, error) {
	c, err := scanCategory(q.db.QueryRowContext(ctx, getCategory, id))
	if err != nil {
		return core.Category{}, notFound(err, "category", id)
	}
	return c, nil
}

const listCategories = `SELECT ` + categoryColumns + ` FROM categories WHERE is_active = 1 ORDER BY name`

func (q *Queries) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	var items []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const insertCategory = `INSERT INTO categories (` + categoryColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertCategory(ctx context.Context, c core.Category) error {
	_, err := q.db.ExecContext(ctx, insertCategory, c.ID, c.Name, string(c.Kind), c.MonthlyBudget.Cents, c.Icon, c.Color,
		c.Description, boolInt(c.IsActive), c.CreatedBy, formatTime(c.CreatedAt))
	return err
}

// Transactions

const transactionColumns = `id, user_id, title, amount_cents, type, account_id, to_account_id, category_id, debt_id, date, description, payment_method, tags, created_at, updated_at`

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t                         core.Transaction
		amount                    int64
		toAccount, category, debt sql.NullString
		date, tags                string
		createdAt, updated        string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &amount, &t.Type, &t.AccountID, &toAccount, &category, &debt,
		&date, &t.Description, &t.PaymentMethod, &tags, &createdAt, &updated); err != nil {
		return core.Transaction{}, err
	}
	t.Amount = core.Money{Cents: amount}
	t.ToAccountID, t.CategoryID, t.DebtID = toAccount.String, category.String, debt.String
	if tags != "" && tags != "[]" {
		if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
			return core.Transaction{}, fmt.Errorf("decode tags of %s: %w", t.ID, err)
		}
	}
	var err error
	if t.Date.Time, err = parseTime(date); err != nil {
		return core.Transaction{}, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Transaction{}, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

func transactionArgs(t core.Transaction) ([]interface{}, error) {
	tags := []byte("[]")
	if len(t.Tags) > 0 {
		var err error
		if tags, err = json.Marshal(t.Tags); err != nil {
			return nil, fmt.Errorf("encode tags: %w", err)
		}
	}
	return []interface{}{t.UserID, t.Title, t.Amount.Cents, string(t.Type), t.AccountID, nullString(t.ToAccountID),
		nullString(t.CategoryID), nullString(t.DebtID), formatTime(t.Date.Time), t.Description, string(t.PaymentMethod),
		string(tags), formatTime(t.CreatedAt), formatTime(t.UpdatedAt)}, nil
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id))
	if err != nil {
		return core.Transaction{}, notFound(err, "transaction", id)
	}
	return t, nil
}

const listTransactions = `SELECT ` + transactionColumns + ` FROM transactions
WHERE (?1 = '' OR user_id = ?1)
  AND (?2 = '' OR account_id = ?2 OR to_account_id = ?2)
  AND (?3 = '' OR category_id = ?3)
  AND (?4 = '' OR date >= ?4)
  AND (?5 = '' OR date <= ?5)
ORDER BY date DESC, created_at DESC`

func (q *Queries) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions, f.UserID, f.AccountID, f.CategoryID, formatTime(f.From), formatTime(f.To))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	var items []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const insertTransaction = `INSERT INTO transactions (user_id, title, amount_cents, type, account_id, to_account_id, category_id, debt_id, date, description, payment_method, tags, created_at, updated_at, id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertTransaction(ctx context.Context, t core.Transaction) error {
	args, err := transactionArgs(t)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, insertTransaction, append(args, t.ID)...)
	return err
}

const updateTransaction = `UPDATE transactions SET user_id = ?, title = ?, amount_cents = ?, type = ?, account_id = ?, to_account_id = ?,
category_id = ?, debt_id = ?, date = ?, description = ?, payment_method = ?, tags = ?, created_at = ?, updated_at = ?
WHERE id = ?`

func (q *Queries) UpdateTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	args, err := transactionArgs(t)
	if err != nil {
		return 0, err
	}
	res, err := q.db.ExecContext(ctx, updateTransaction, append(args, t.ID)...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Debts

const debtColumns = `id, user_id, person, type, amount_cents, original_principal_cents, remaining_amount_cents, interest_rate, interest_type, status, date, due_date, description, is_active, created_at, updated_at`

func scanDebt(row rowScanner) (core.Debt, error) {
	var (
		d                          core.Debt
		amount, principal, remains int64
		rate                       string
		date, due                  string
		active                     int64
		createdAt, updated         string
	)
	if err := row.Scan(&d.ID, &d.UserID, &d.Person, &d.Type, &amount, &principal, &remains, &rate, &d.InterestType,
		&d.Status, &date, &due, &d.Description, &active, &createdAt, &updated); err != nil {
		return core.Debt{}, err
	}
	d.Amount, d.OriginalPrincipal, d.RemainingAmount = core.Money{Cents: amount}, core.Money{Cents: principal}, core.Money{Cents: remains}
	d.IsActive = active == 1
	var err error
	if d.InterestRate, err = decimal.NewFromString(rate); err != nil {
		return core.Debt{}, fmt.Errorf("decode interest rate of %s: %w", d.ID, err)
	}
	if d.Date.Time, err = parseTime(date); err != nil {
		return core.Debt{}, err
	}
	if d.DueDate.Time, err = parseTime(due); err != nil {
		return core.Debt{}, err
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Debt{}, err
	}
	if d.UpdatedAt, err = parseTime(updated); err != nil {
		return core.Debt{}, err
	}
	return d, nil
}

func debtArgs(d core.Debt) []interface{} {
	return []interface{}{d.UserID, d.Person, string(d.Type), d.Amount.Cents, d.OriginalPrincipal.Cents, d.RemainingAmount.Cents,
		d.InterestRate.String(), string(d.InterestType), string(d.Status), formatTime(d.Date.Time), formatTime(d.DueDate.Time),
		d.Description, boolInt(d.IsActive), formatTime(d.CreatedAt), formatTime(d.UpdatedAt)}
}

const getDebt = `SELECT ` + debtColumns + ` FROM debts WHERE id = ?`

func (q *Queries) GetDebt(ctx context.Context, id string) (core.Debt, error) {
	d, err := scanDebt(q.db.QueryRowContext(ctx, getDebt, id))
	if err != nil {
		return core.Debt{}, notFound(err, "debt", id)
	}
	return d, nil
}

const listDebts = `SELECT ` + debtColumns + ` FROM debts
WHERE (?1 = '' OR user_id = ?1) AND (?2 = 1 OR is_active = 1)
ORDER BY created_at DESC`

func (q *Queries) ListDebts(ctx context.Context, f ledger.DebtFilter) ([]core.Debt, error) {
	rows, err := q.db.QueryContext(ctx, listDebts, f.UserID, boolInt(f.IncludeInactive))
	if err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}
	defer rows.Close()
	var items []core.Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debt: %w", err)
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

const insertDebt = `INSERT INTO debts (user_id, person, type, amount_cents, original_principal_cents, remaining_amount_cents, interest_rate, interest_type, status, date, due_date, description, is_active, created_at, updated_at, id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertDebt(ctx context.Context, d core.Debt) error {
	_, err := q.db.ExecContext(ctx, insertDebt, append(debtArgs(d), d.ID)...)
	return err
}

const updateDebt = `UPDATE debts SET user_id = ?, person = ?, type = ?, amount_cents = ?, original_principal_cents = ?, remaining_amount_cents = ?,
interest_rate = ?, interest_type = ?, status = ?, date = ?, due_date = ?, description = ?, is_active = ?, created_at = ?, updated_at = ?
WHERE id = ?`

func (q *Queries) UpdateDebt(ctx context.Context, d core.Debt) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateDebt, append(debtArgs(d), d.ID)...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listDebtEntries = `SELECT amount_cents, date, transaction_id, type FROM debt_entries WHERE debt_id = ? ORDER BY seq`

func (q *Queries) ListDebtEntries(ctx context.Context, debtID string) ([]core.DebtEntry, error) {
	rows, err := q.db.QueryContext(ctx, listDebtEntries, debtID)
	if err != nil {
		return nil, fmt.Errorf("list debt entries: %w", err)
	}
	defer rows.Close()
	var items []core.DebtEntry
	for rows.Next() {
		var (
			e      core.DebtEntry
			amount int64
			date   string
		)
		if err := rows.Scan(&amount, &date, &e.TransactionID, &e.Kind); err != nil {
			return nil, fmt.Errorf("scan debt entry: %w", err)
		}
		e.Amount = core.Money{Cents: amount}
		if e.Date.Time, err = parseTime(date); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

const deleteDebtEntries = `DELETE FROM debt_entries WHERE debt_id = ?`

func (q *Queries) DeleteDebtEntries(ctx context.Context, debtID string) error {
	_, err := q.db.ExecContext(ctx, deleteDebtEntries, debtID)
	return err
}

const insertDebtEntry = `INSERT INTO debt_entries (debt_id, seq, amount_cents, date, transaction_id, type) VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertDebtEntry(ctx context.Context, debtID string, seq int, e core.DebtEntry) error {
	_, err := q.db.ExecContext(ctx, insertDebtEntry, debtID, seq, e.Amount.Cents, formatTime(e.Date.Time), e.TransactionID, string(e.Kind))
	return err
}

// Outbox

const insertEvent = `INSERT INTO ledger_events (id, type, aggregate_id, user_id, occurred_at, payload, status, updated_at)
VALUES (?, ?, ?, ?, ?, ?, 'pending', ?)`

func (q *Queries) InsertEvent(ctx context.Context, e core.LedgerEvent) error {
	_, err := q.db.ExecContext(ctx, insertEvent, e.ID, string(e.Type), e.AggregateID, e.UserID,
		formatTime(e.OccurredAt), string(e.Payload), formatTime(e.OccurredAt))
	return err
}

const dequeueEvents = `SELECT id, type, aggregate_id, user_id, occurred_at, payload, status, attempts, last_error, updated_at
FROM ledger_events WHERE status = 'pending' ORDER BY seq LIMIT ?`

func (q *Queries) DequeueEvents(ctx context.Context, limit int64) ([]ledger.OutboxEntry, error) {
	rows, err := q.db.QueryContext(ctx, dequeueEvents, limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue events: %w", err)
	}
	defer rows.Close()
	var items []ledger.OutboxEntry
	for rows.Next() {
		var (
			o                 ledger.OutboxEntry
			occurred, updated string
			payload           string
			attempts          int64
		)
		if err := rows.Scan(&o.Event.ID, &o.Event.Type, &o.Event.AggregateID, &o.Event.UserID, &occurred, &payload,
			&o.Status, &attempts, &o.LastError, &updated); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		o.Event.Payload = json.RawMessage(payload)
		o.Attempts = int(attempts)
		if o.Event.OccurredAt, err = parseTime(occurred); err != nil {
			return nil, err
		}
		if o.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

const setEventStatus = `UPDATE ledger_events SET status = ?, updated_at = ? WHERE id = ?`

func (q *Queries) SetEventStatus(ctx context.Context, id string, status ledger.OutboxStatus, at time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, setEventStatus, string(status), formatTime(at), id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const recordEventAttempt = `UPDATE ledger_events SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ? WHERE id = ?`

func (q *Queries) RecordEventAttempt(ctx context.Context, id string, status ledger.OutboxStatus, lastErr string, at time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, recordEventAttempt, string(status), lastErr, formatTime(at), id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const resetStaleEvents = `UPDATE ledger_events SET status = 'pending' WHERE status = 'processing'`

func (q *Queries) ResetStaleEvents(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, resetStaleEvents)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const cleanupPublishedEvents = `DELETE FROM ledger_events WHERE status = 'published' AND updated_at < ?`

func (q *Queries) CleanupPublishedEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, cleanupPublishedEvents, formatTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const retryFailedEvents = `UPDATE ledger_events SET status = 'pending', attempts = 0 WHERE status = 'failed'`

func (q *Queries) RetryFailedEvents(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, retryFailedEvents)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const eventStats = `SELECT
    COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'published' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
FROM ledger_events`

func (q *Queries) EventStats(ctx context.Context) (ledger.OutboxStats, error) {
	var st ledger.OutboxStats
	err := q.db.QueryRowContext(ctx, eventStats).Scan(&st.Pending, &st.Processing, &st.Published, &st.Failed)
	return st, err
}
