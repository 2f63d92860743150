// Package sheets mirrors ledger events into a spreadsheet journal.
package sheets

import (
	"context"
	"fmt"
	"time"

	"famledger/internal/core"
)

// RowAppender writes one journal row. Appending a row whose EventID was
// already written returns the existing reference and no error.
type RowAppender interface {
	AppendRow(ctx context.Context, row LedgerRow) (rowRef string, err error)
}

// LedgerRow is the human-readable journal line for one ledger event.
type LedgerRow struct {
	EventID    string
	OccurredAt time.Time
	Event      core.EventType
	Kind       string
	Date       core.Date
	Title      string
	Amount     core.Money
	AccountID  string
	ToAccount  string
	Category   string
	Person     string
	Remaining  string
	UserID     string
}

// Header is the first row of every journal sheet.
var Header = []any{"Event ID", "Recorded", "Event", "Kind", "Date", "Title", "Amount", "Account", "To account", "Category", "Person", "Remaining", "User"}

// Values returns the cells in Header order.
func (r LedgerRow) Values() []any {
	date := ""
	if !r.Date.IsZero() {
		date = r.Date.Format("2006-01-02")
	}
	return []any{
		r.EventID,
		r.OccurredAt.UTC().Format(time.RFC3339),
		string(r.Event),
		r.Kind,
		date,
		r.Title,
		r.Amount.String(),
		r.AccountID,
		r.ToAccount,
		r.Category,
		r.Person,
		r.Remaining,
		r.UserID,
	}
}

// RowFromEvent flattens a ledger event into a journal row. Deletions are
// recorded with the deleted record's values so the journal stays readable.
func RowFromEvent(e core.LedgerEvent) (LedgerRow, error) {
	p, err := e.DecodePayload()
	if err != nil {
		return LedgerRow{}, err
	}

	row := LedgerRow{
		EventID:    e.ID,
		OccurredAt: e.OccurredAt,
		Event:      e.Type,
		UserID:     e.UserID,
	}

	switch e.Type {
	case core.EventTransactionCreated, core.EventTransactionUpdated, core.EventTransactionDeleted:
		if p.Transaction == nil {
			return LedgerRow{}, fmt.Errorf("%s event %s has no transaction", e.Type, e.ID)
		}
		fillTransaction(&row, *p.Transaction)

	case core.EventDebtCreated, core.EventDebtPaymentAdded, core.EventDebtUpdated, core.EventDebtDeleted:
		if p.Debt == nil {
			return LedgerRow{}, fmt.Errorf("%s event %s has no debt", e.Type, e.ID)
		}
		d := *p.Debt
		row.Kind = string(d.Type)
		row.Date = d.Date
		row.Title = d.Description
		row.Amount = d.Amount
		row.Person = d.Person
		row.Remaining = d.RemainingAmount.String()
		// A linked transaction carries the money movement of this event.
		if p.Transaction != nil {
			fillTransaction(&row, *p.Transaction)
		}

	default:
		return LedgerRow{}, fmt.Errorf("unknown event type %q", e.Type)
	}

	return row, nil
}

func fillTransaction(row *LedgerRow, t core.Transaction) {
	row.Kind = string(t.Type)
	row.Date = t.Date
	row.Title = t.Title
	row.Amount = t.Amount
	row.AccountID = t.AccountID
	row.ToAccount = t.ToAccountID
	row.Category = t.CategoryID
}
