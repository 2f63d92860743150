package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"famledger/internal/core"
)

// Delta is a signed amount applied to one account balance.
type Delta struct {
	AccountID string
	Amount    core.Money
}

// CreateDeltas returns the balance effect of recording t:
//
//	income    account +amount
//	expense   account -amount
//	transfer  account -amount, toAccount +amount
func CreateDeltas(t core.Transaction) []Delta {
	switch t.Type {
	case core.TxIncome:
		return []Delta{{AccountID: t.AccountID, Amount: t.Amount}}
	case core.TxTransfer:
		return []Delta{
			{AccountID: t.AccountID, Amount: t.Amount.Neg()},
			{AccountID: t.ToAccountID, Amount: t.Amount},
		}
	default:
		return []Delta{{AccountID: t.AccountID, Amount: t.Amount.Neg()}}
	}
}

// ReverseDeltas returns the exact inverse of CreateDeltas(t).
func ReverseDeltas(t core.Transaction) []Delta {
	deltas := CreateDeltas(t)
	for i := range deltas {
		deltas[i].Amount = deltas[i].Amount.Neg()
	}
	return deltas
}

// UpdateDeltas reverts old and then applies updated. Both phases are kept
// even when only the amount changed, so a change of account or type moves
// money off the old account.
func UpdateDeltas(old, updated core.Transaction) []Delta {
	return append(ReverseDeltas(old), CreateDeltas(updated)...)
}

// Engine applies balance deltas inside a unit of work.
type Engine struct {
	now func() time.Time
}

func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// Apply adds every delta to its account. Accounts are expected to have been
// resolved already, so any failure here is a broken multi-step mutation and
// is reported as a consistency failure, except a balance leaving its limit,
// which is a validation error. Either way the caller's unit of work rolls back.
func (e *Engine) Apply(ctx context.Context, tx Tx, op string, deltas []Delta) error {
	at := e.now().UTC()
	for _, d := range deltas {
		if d.Amount.IsZero() {
			continue
		}
		if err := tx.AdjustBalance(ctx, d.AccountID, d.Amount, at); err != nil {
			slog.ErrorContext(ctx, "Balance delta failed",
				"operation", op,
				"account_id", d.AccountID,
				"delta_cents", d.Amount.Cents,
				"error", err)
			if errors.Is(err, core.ErrBalanceOutOfRange) {
				return err
			}
			return core.NewConsistencyError(op, fmt.Errorf("apply %s to account %s: %w", d.Amount, d.AccountID, err))
		}
		slog.DebugContext(ctx, "Balance delta applied",
			"operation", op,
			"account_id", d.AccountID,
			"delta_cents", d.Amount.Cents)
	}
	return nil
}

// ExpectedBalances folds the create deltas of txs onto the opening balances.
func ExpectedBalances(accounts []core.Account, txs []core.Transaction) map[string]core.Money {
	out := make(map[string]core.Money, len(accounts))
	for _, a := range accounts {
		out[a.ID] = a.OpeningBalance
	}
	for _, t := range txs {
		for _, d := range CreateDeltas(t) {
			out[d.AccountID] = out[d.AccountID].Add(d.Amount)
		}
	}
	return out
}
