package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"famledger/internal/core"
)

// Drift is an account whose stored balance differs from the one implied by
// its opening balance and the current ledger entries.
type Drift struct {
	AccountID string     `json:"accountId"`
	Name      string     `json:"name"`
	Expected  core.Money `json:"expected"`
	Actual    core.Money `json:"actual"`
}

// DebtMismatch is a debt whose scalar amounts disagree with its payment history.
type DebtMismatch struct {
	DebtID      string     `json:"debtId"`
	Person      string     `json:"person"`
	FromScalars core.Money `json:"paidFromScalars"`
	FromEntries core.Money `json:"paidFromEntries"`
}

type Report struct {
	CheckedAt      time.Time      `json:"checkedAt"`
	Accounts       int            `json:"accounts"`
	Transactions   int            `json:"transactions"`
	Debts          int            `json:"debts"`
	Drifts         []Drift        `json:"drifts"`
	DebtMismatches []DebtMismatch `json:"debtMismatches"`
}

// Clean reports whether nothing was found.
func (r Report) Clean() bool {
	return len(r.Drifts) == 0 && len(r.DebtMismatches) == 0
}

// Reconciler audits balances against the ledger. It only reads.
type Reconciler struct {
	store Store
	now   func() time.Time
}

func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store, now: time.Now}
}

// Run checks every account and every debt from one consistent snapshot. The
// report is always returned; the error wraps core.ErrConsistency when the
// report is not clean.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	report := Report{CheckedAt: r.now().UTC()}

	err := r.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		accounts, err := tx.ListAccounts(ctx, true)
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}
		txs, err := tx.ListTransactions(ctx, TransactionFilter{})
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		debts, err := tx.ListDebts(ctx, DebtFilter{IncludeInactive: true})
		if err != nil {
			return fmt.Errorf("list debts: %w", err)
		}

		report.Accounts, report.Transactions, report.Debts = len(accounts), len(txs), len(debts)
		expected := ExpectedBalances(accounts, txs)
		for _, a := range accounts {
			if want := expected[a.ID]; want != a.Balance {
				report.Drifts = append(report.Drifts, Drift{
					AccountID: a.ID,
					Name:      a.Name,
					Expected:  want,
					Actual:    a.Balance,
				})
			}
		}
		for _, d := range debts {
			if d.CheckPayments() != nil {
				report.DebtMismatches = append(report.DebtMismatches, DebtMismatch{
					DebtID:      d.ID,
					Person:      d.Person,
					FromScalars: d.PaidFromScalars(),
					FromEntries: d.PaidFromEntries(),
				})
			}
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("reconcile: %w", err)
	}

	if report.Clean() {
		slog.InfoContext(ctx, "Ledger reconciled",
			"accounts", report.Accounts,
			"transactions", report.Transactions,
			"debts", report.Debts)
		return report, nil
	}

	for _, d := range report.Drifts {
		slog.ErrorContext(ctx, "Account balance drift",
			"account_id", d.AccountID,
			"expected_cents", d.Expected.Cents,
			"actual_cents", d.Actual.Cents)
	}
	for _, m := range report.DebtMismatches {
		slog.WarnContext(ctx, "Debt payment history mismatch",
			"debt_id", m.DebtID,
			"paid_from_scalars_cents", m.FromScalars.Cents,
			"paid_from_entries_cents", m.FromEntries.Cents)
	}
	return report, core.NewConsistencyError("reconcile",
		fmt.Errorf("%d account drift(s), %d debt mismatch(es)", len(report.Drifts), len(report.DebtMismatches)))
}
