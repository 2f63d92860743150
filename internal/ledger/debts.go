package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"famledger/internal/core"
)

// DebtInput opens a new debt. AccountID is optional; when set, the principal
// leaves (lent) or enters (borrowed) that account.
type DebtInput struct {
	Person       string
	Type         core.DebtType
	Principal    core.Money
	InterestRate decimal.Decimal
	InterestType core.InterestType
	AccountID    string
	CategoryID   string
	Date         core.Date
	DueDate      core.Date
	Description  string
}

// PaymentInput records a repayment against a debt.
type PaymentInput struct {
	Amount      core.Money
	AccountID   string
	CategoryID  string
	Date        core.Date
	Description string
}

// DebtPatch updates a debt. Terms trigger re-amortization; the other fields
// are copied as given. RemainingAmount is a direct override that only applies
// when no terms are present.
type DebtPatch struct {
	Person          *string
	Description     *string
	DueDate         *core.Date
	RemainingAmount *core.Money
	Terms           core.DebtTerms
}

// Debts is the debt tracker. Cash movements go through the transaction
// ledger so they obey the same balance rules.
type Debts struct {
	store  Store
	ledger *Transactions
	now    func() time.Time
}

func NewDebts(store Store, ledger *Transactions) *Debts {
	return &Debts{store: store, ledger: ledger, now: time.Now}
}

// Create opens a debt. With an account, a linked entry for the original
// principal is recorded; one-time interest is owed but never moved as cash here.
func (s *Debts) Create(ctx context.Context, caller core.Caller, in DebtInput) (core.Debt, error) {
	now := s.now().UTC()
	if in.InterestType == "" {
		in.InterestType = core.InterestNone
	}
	if in.Principal.IsNegative() {
		return core.Debt{}, core.ErrNegativeAmount
	}

	total, err := core.TotalWithInterest(in.Principal, in.InterestRate, in.InterestType)
	if err != nil {
		return core.Debt{}, err
	}
	d := core.Debt{
		ID:                uuid.NewString(),
		UserID:            caller.UserID,
		Person:            strings.TrimSpace(in.Person),
		Type:              in.Type,
		Amount:            total,
		OriginalPrincipal: in.Principal,
		RemainingAmount:   total,
		InterestRate:      in.InterestRate,
		InterestType:      in.InterestType,
		Date:              in.Date.OrNow(now),
		DueDate:           in.DueDate,
		Description:       strings.TrimSpace(in.Description),
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	d.Refresh()
	if err := d.Validate(); err != nil {
		return core.Debt{}, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var linked *core.Transaction
		if in.AccountID != "" {
			desc := d.Description
			if desc == "" {
				desc = fmt.Sprintf("Initial debt transaction for %s", d.Person)
			}
			t := TransactionInput{
				Title:       d.InitialTitle(),
				Amount:      in.Principal,
				Type:        d.Type.InitialTransactionType(),
				AccountID:   in.AccountID,
				CategoryID:  in.CategoryID,
				Date:        d.Date,
				Description: desc,
			}.build(caller.UserID, now)
			t.DebtID = d.ID
			if err := s.checkLinked(ctx, tx, t); err != nil {
				return err
			}
			d.Entries = append(d.Entries, core.DebtEntry{
				Amount:        in.Principal,
				Date:          d.Date,
				TransactionID: t.ID,
				Kind:          core.EntryInitial,
			})
			linked = &t
		}

		if err := tx.InsertDebt(ctx, d); err != nil {
			return core.NewConsistencyError("create debt", err)
		}
		if linked != nil {
			if err := s.ledger.record(ctx, tx, *linked, now); err != nil {
				return err
			}
		}
		return enqueue(ctx, tx, core.EventDebtCreated, d.ID, d.UserID, core.EventPayload{Debt: &d, Transaction: linked}, now)
	})
	if err != nil {
		return core.Debt{}, err
	}

	slog.InfoContext(ctx, "Debt created",
		"debt_id", d.ID,
		"type", d.Type,
		"amount_cents", d.Amount.Cents,
		"interest_type", d.InterestType,
		"account_linked", in.AccountID != "")
	return d, nil
}

// AddPayment records a repayment as a ledger entry of the opposite type and
// reduces the remaining amount. Overpayment is not clamped.
func (s *Debts) AddPayment(ctx context.Context, caller core.Caller, debtID string, in PaymentInput) (core.Debt, core.Transaction, error) {
	if in.AccountID == "" {
		return core.Debt{}, core.Transaction{}, core.ErrMissingAccount
	}
	if in.Amount.IsNegative() {
		return core.Debt{}, core.Transaction{}, core.ErrNegativeAmount
	}

	now := s.now().UTC()
	var (
		d core.Debt
		t core.Transaction
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		d, err = tx.GetDebt(ctx, debtID)
		if err != nil {
			return err
		}
		if !caller.CanModify(d.UserID) {
			return fmt.Errorf("%w: not authorized", core.ErrForbidden)
		}
		if !d.IsActive {
			return core.InvalidRequestf("debt %s has been deleted", d.ID)
		}

		desc := strings.TrimSpace(in.Description)
		if desc == "" {
			desc = fmt.Sprintf("Payment for debt to/from %s", d.Person)
		}
		t = TransactionInput{
			Title:       d.PaymentTitle(),
			Amount:      in.Amount,
			Type:        d.Type.PaymentTransactionType(),
			AccountID:   in.AccountID,
			CategoryID:  in.CategoryID,
			Date:        in.Date,
			Description: desc,
		}.build(caller.UserID, now)
		t.DebtID = d.ID
		if err := s.checkLinked(ctx, tx, t); err != nil {
			return err
		}

		d.ApplyPayment(t.Amount, t.Date, t.ID)
		d.UpdatedAt = now

		if err := s.ledger.record(ctx, tx, t, now); err != nil {
			return err
		}
		if err := tx.UpdateDebt(ctx, d); err != nil {
			return core.NewConsistencyError("add debt payment", err)
		}
		return enqueue(ctx, tx, core.EventDebtPaymentAdded, d.ID, caller.UserID, core.EventPayload{Debt: &d, Transaction: &t}, now)
	})
	if err != nil {
		return core.Debt{}, core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Debt payment recorded",
		"debt_id", d.ID,
		"transaction_id", t.ID,
		"amount_cents", t.Amount.Cents,
		"remaining_cents", d.RemainingAmount.Cents,
		"status", d.Status)
	return d, t, nil
}

// checkLinked validates a debt-linked entry. Category is optional on these
// entries, so the category rule of Transaction.Validate is not applied.
func (s *Debts) checkLinked(ctx context.Context, tx Tx, t core.Transaction) error {
	if t.Amount.IsNegative() {
		return core.ErrNegativeAmount
	}
	return s.ledger.resolve(ctx, tx, t, nil)
}

// Update patches a debt. A change to amount, rate or interest type
// re-amortizes; status is recomputed on every save.
func (s *Debts) Update(ctx context.Context, caller core.Caller, id string, patch DebtPatch) (core.Debt, error) {
	if patch.Terms.Principal != nil && patch.Terms.Principal.IsNegative() {
		return core.Debt{}, core.ErrNegativeAmount
	}
	if patch.Terms.InterestRate != nil && patch.Terms.InterestRate.IsNegative() {
		return core.Debt{}, core.ErrNegativeRate
	}
	if patch.Terms.InterestType != nil && !patch.Terms.InterestType.IsValid() {
		return core.Debt{}, fmt.Errorf("%w: interest type %q", core.ErrInvalidType, *patch.Terms.InterestType)
	}

	now := s.now().UTC()
	var d core.Debt
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		d, err = tx.GetDebt(ctx, id)
		if err != nil {
			return err
		}
		if !caller.CanModify(d.UserID) {
			return fmt.Errorf("%w: not authorized", core.ErrForbidden)
		}

		if patch.Person != nil {
			d.Person = strings.TrimSpace(*patch.Person)
		}
		if patch.Description != nil {
			d.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.DueDate != nil {
			d.DueDate = *patch.DueDate
		}
		// Re-amortization derives the amount paid from the stored scalars and
		// then owns the remainder, so a remainingAmount sent with new terms is
		// ignored.
		reamortized, err := d.Reamortize(patch.Terms)
		if err != nil {
			return err
		}
		if patch.RemainingAmount != nil && !reamortized {
			d.RemainingAmount = *patch.RemainingAmount
		}
		d.Refresh()
		d.UpdatedAt = now
		if err := d.Validate(); err != nil {
			return err
		}

		if err := tx.UpdateDebt(ctx, d); err != nil {
			return core.NewConsistencyError("update debt", err)
		}
		return enqueue(ctx, tx, core.EventDebtUpdated, d.ID, caller.UserID, core.EventPayload{Debt: &d}, now)
	})
	if err != nil {
		return core.Debt{}, err
	}

	if checkErr := d.CheckPayments(); checkErr != nil {
		slog.WarnContext(ctx, "Debt payment history disagrees with scalar fields",
			"debt_id", d.ID,
			"paid_from_scalars_cents", d.PaidFromScalars().Cents,
			"paid_from_entries_cents", d.PaidFromEntries().Cents)
	}
	slog.InfoContext(ctx, "Debt updated",
		"debt_id", d.ID,
		"amount_cents", d.Amount.Cents,
		"remaining_cents", d.RemainingAmount.Cents,
		"status", d.Status)
	return d, nil
}

// Delete soft-deletes a debt. Balance effects of its linked entries stay:
// removing a debt does not undo cash that already moved.
func (s *Debts) Delete(ctx context.Context, caller core.Caller, id string) error {
	now := s.now().UTC()
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		d, err := tx.GetDebt(ctx, id)
		if err != nil {
			return err
		}
		if !caller.CanModify(d.UserID) {
			return fmt.Errorf("%w: not authorized", core.ErrForbidden)
		}
		d.IsActive = false
		d.UpdatedAt = now
		d.Refresh()
		if err := tx.UpdateDebt(ctx, d); err != nil {
			return core.NewConsistencyError("delete debt", err)
		}
		return enqueue(ctx, tx, core.EventDebtDeleted, d.ID, caller.UserID, core.EventPayload{Debt: &d}, now)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Debt deleted", "debt_id", id)
	return nil
}

// Get returns a debt visible to caller.
func (s *Debts) Get(ctx context.Context, caller core.Caller, id string) (core.Debt, error) {
	d, err := s.store.GetDebt(ctx, id)
	if err != nil {
		return core.Debt{}, err
	}
	if !caller.CanModify(d.UserID) {
		return core.Debt{}, fmt.Errorf("%w: not authorized", core.ErrForbidden)
	}
	return d, nil
}

// List returns debts matching f, newest first.
func (s *Debts) List(ctx context.Context, f DebtFilter) ([]core.Debt, error) {
	return s.store.ListDebts(ctx, f)
}
