// Package ledger keeps account balances, ledger entries and debts consistent
// with each other. Every operation that moves money runs inside a single unit
// of work supplied by the Store.
package ledger

import (
	"context"
	"time"

	"famledger/internal/core"
)

// Ports for the persistence layer.
type (
	// Reader is the read side shared by the store and an open unit of work.
	// Lookups of unknown ids return an error wrapping core.ErrNotFound.
	Reader interface {
		GetAccount(ctx context.Context, id string) (core.Account, error)
		ListAccounts(ctx context.Context, includeInactive bool) ([]core.Account, error)
		GetCategory(ctx context.Context, id string) (core.Category, error)
		ListCategories(ctx context.Context) ([]core.Category, error)
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error)
		GetDebt(ctx context.Context, id string) (core.Debt, error)
		ListDebts(ctx context.Context, f DebtFilter) ([]core.Debt, error)
	}

	// Tx is an open unit of work. Nothing it writes is visible to others
	// until the surrounding WithinTx returns nil.
	Tx interface {
		Reader

		InsertAccount(ctx context.Context, a core.Account) error
		DeactivateAccount(ctx context.Context, id string, at time.Time) error
		InsertCategory(ctx context.Context, c core.Category) error

		// AdjustBalance adds delta to the account balance without reading it
		// first. An unknown account returns core.ErrNotFound.
		AdjustBalance(ctx context.Context, accountID string, delta core.Money, at time.Time) error

		InsertTransaction(ctx context.Context, t core.Transaction) error
		UpdateTransaction(ctx context.Context, t core.Transaction) error
		DeleteTransaction(ctx context.Context, id string) error

		InsertDebt(ctx context.Context, d core.Debt) error
		// UpdateDebt replaces the debt row and its entry history.
		UpdateDebt(ctx context.Context, d core.Debt) error

		// Enqueue appends an event to the outbox.
		Enqueue(ctx context.Context, e core.LedgerEvent) error
	}

	// Store opens units of work. fn's error aborts and rolls back every
	// write made through tx.
	Store interface {
		Reader
		WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	}
)

// TransactionFilter narrows ListTransactions. Zero fields match everything.
// AccountID matches either side of a transfer.
type TransactionFilter struct {
	UserID     string
	AccountID  string
	CategoryID string
	From       time.Time
	To         time.Time
}

// Match reports whether t passes the filter.
func (f TransactionFilter) Match(t core.Transaction) bool {
	if f.UserID != "" && t.UserID != f.UserID {
		return false
	}
	if f.AccountID != "" && t.AccountID != f.AccountID && t.ToAccountID != f.AccountID {
		return false
	}
	if f.CategoryID != "" && t.CategoryID != f.CategoryID {
		return false
	}
	if !f.From.IsZero() && t.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && t.Date.After(f.To) {
		return false
	}
	return true
}

// DebtFilter narrows ListDebts. Soft-deleted debts are skipped unless
// IncludeInactive is set.
type DebtFilter struct {
	UserID          string
	IncludeInactive bool
}

func (f DebtFilter) Match(d core.Debt) bool {
	if !f.IncludeInactive && !d.IsActive {
		return false
	}
	return f.UserID == "" || d.UserID == f.UserID
}
