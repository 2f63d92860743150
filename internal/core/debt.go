package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DebtLent     DebtType = "lent"
	DebtBorrowed DebtType = "borrowed"

	InterestNone    InterestType = "none"
	InterestOneTime InterestType = "one-time"
	InterestMonthly InterestType = "monthly"

	DebtActive  DebtStatus = "active"
	DebtSettled DebtStatus = "settled"

	EntryInitial  EntryKind = "initial"
	EntryPayment  EntryKind = "payment"
	EntryInterest EntryKind = "interest"
	EntryOther    EntryKind = "other"
)

type (
	DebtType     string
	InterestType string
	DebtStatus   string
	EntryKind    string

	// DebtEntry links a debt to a ledger transaction. The reference is weak:
	// deleting the transaction leaves the entry in place.
	DebtEntry struct {
		Amount        Money     `json:"amount"`
		Date          Date      `json:"date"`
		TransactionID string    `json:"transactionId,omitempty"`
		Kind          EntryKind `json:"type"`
	}

	Debt struct {
		ID                string          `json:"id"`
		UserID            string          `json:"user"`
		Person            string          `json:"person"`
		Type              DebtType        `json:"type"`
		Amount            Money           `json:"amount"`
		OriginalPrincipal Money           `json:"originalPrincipal"`
		RemainingAmount   Money           `json:"remainingAmount"`
		InterestRate      decimal.Decimal `json:"interestRate"`
		InterestType      InterestType    `json:"interestType"`
		Status            DebtStatus      `json:"status"`
		Date              Date            `json:"date"`
		DueDate           Date            `json:"dueDate"`
		Description       string          `json:"description,omitempty"`
		IsActive          bool            `json:"isActive"`
		Entries           []DebtEntry     `json:"transactions"`
		CreatedAt         time.Time       `json:"createdAt"`
		UpdatedAt         time.Time       `json:"updatedAt"`
	}

	// DebtTerms is the amortization-relevant part of a debt update. Nil fields
	// keep the current value.
	DebtTerms struct {
		Principal    *Money
		InterestRate *decimal.Decimal
		InterestType *InterestType
	}
)

// Empty reports whether the update leaves all terms unchanged.
func (t DebtTerms) Empty() bool {
	return t.Principal == nil && t.InterestRate == nil && t.InterestType == nil
}

func (t DebtType) IsValid() bool { return t == DebtLent || t == DebtBorrowed }

func (t InterestType) IsValid() bool {
	switch t {
	case InterestNone, InterestOneTime, InterestMonthly:
		return true
	}
	return false
}

// InitialTransactionType is the ledger type of the cash movement that opens a
// debt: lending money out is an expense, borrowing it is income.
func (t DebtType) InitialTransactionType() TransactionType {
	if t == DebtLent {
		return TxExpense
	}
	return TxIncome
}

// PaymentTransactionType is the ledger type of a repayment, the opposite of
// the opening movement.
func (t DebtType) PaymentTransactionType() TransactionType {
	if t == DebtLent {
		return TxIncome
	}
	return TxExpense
}

// TotalWithInterest returns the amount owed for principal under the given terms.
// Only one-time interest is folded in; monthly interest is never posted here.
func TotalWithInterest(principal Money, rate decimal.Decimal, it InterestType) (Money, error) {
	if !principal.InRange() {
		return Money{}, ErrAmountOutOfRange
	}
	if it != InterestOneTime {
		return principal, nil
	}
	interest, err := principal.Percent(rate)
	if err != nil {
		return Money{}, err
	}
	total := principal.Add(interest)
	if !total.InRange() {
		return Money{}, ErrAmountOutOfRange
	}
	return total, nil
}

// StatusFor derives the settlement status from a remaining amount.
func StatusFor(remaining Money) DebtStatus {
	if remaining.Cents <= 0 {
		return DebtSettled
	}
	return DebtActive
}

// Refresh recomputes derived fields. It runs before every save.
func (d *Debt) Refresh() {
	d.Status = StatusFor(d.RemainingAmount)
}

func (d Debt) Validate() error {
	if strings.TrimSpace(d.Person) == "" {
		return ErrMissingPerson
	}
	if !d.Type.IsValid() {
		return fmt.Errorf("%w: debt type %q", ErrInvalidType, d.Type)
	}
	if !d.InterestType.IsValid() {
		return fmt.Errorf("%w: interest type %q", ErrInvalidType, d.InterestType)
	}
	if d.InterestRate.IsNegative() {
		return ErrNegativeRate
	}
	if d.OriginalPrincipal.IsNegative() || d.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if !d.OriginalPrincipal.InRange() || !d.Amount.InRange() || !d.RemainingAmount.InRange() {
		return ErrAmountOutOfRange
	}
	return nil
}

// ApplyPayment subtracts amount from the remaining balance and records the
// entry. The remainder is not clamped, so an overpayment leaves it negative.
func (d *Debt) ApplyPayment(amount Money, date Date, transactionID string) {
	d.RemainingAmount = d.RemainingAmount.Sub(amount)
	d.Entries = append(d.Entries, DebtEntry{
		Amount:        amount,
		Date:          date,
		TransactionID: transactionID,
		Kind:          EntryPayment,
	})
	d.Refresh()
}

// Reamortize recomputes amount, remaining amount and principal after a change
// to any of the terms. The amount already paid is derived from the scalar
// fields as they were before the change, and the new remainder is clamped at
// zero. It reports whether any term was present.
func (d *Debt) Reamortize(terms DebtTerms) (bool, error) {
	if terms.Empty() {
		return false, nil
	}
	principal := d.OriginalPrincipal
	if terms.Principal != nil {
		principal = *terms.Principal
	}
	rate := d.InterestRate
	if terms.InterestRate != nil {
		rate = *terms.InterestRate
	}
	it := d.InterestType
	if terms.InterestType != nil {
		it = *terms.InterestType
	}

	newAmount, err := TotalWithInterest(principal, rate, it)
	if err != nil {
		return false, err
	}
	var paid Money
	if it == InterestOneTime {
		paid = d.Amount.Sub(d.RemainingAmount)
	} else {
		paid = d.OriginalPrincipal.Sub(d.RemainingAmount)
	}

	d.Amount = newAmount
	d.RemainingAmount = newAmount.Sub(paid).Max(Money{})
	d.OriginalPrincipal = principal
	d.InterestRate = rate
	d.InterestType = it
	d.Refresh()
	return true, nil
}

// PaidFromScalars is the amount paid so far as implied by amount - remaining.
func (d Debt) PaidFromScalars() Money {
	return d.Amount.Sub(d.RemainingAmount)
}

// PaidFromEntries sums the payment entries in the history.
func (d Debt) PaidFromEntries() Money {
	var total Money
	for _, e := range d.Entries {
		if e.Kind == EntryPayment {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// CheckPayments reports a ConsistencyError when the two derivations of the
// amount paid disagree.
func (d Debt) CheckPayments() error {
	scalar, entries := d.PaidFromScalars(), d.PaidFromEntries()
	if scalar == entries {
		return nil
	}
	return NewConsistencyError("debt payment check",
		fmt.Errorf("debt %s: amount-remaining gives %s paid, payment entries sum to %s", d.ID, scalar, entries))
}

// InitialTitle is the title of the transaction that opens a debt.
func (d Debt) InitialTitle() string {
	verb := "Borrowed"
	if d.Type == DebtLent {
		verb = "Lent"
	}
	return fmt.Sprintf("%s to/from %s", verb, d.Person)
}

// PaymentTitle is the title of a repayment transaction.
func (d Debt) PaymentTitle() string {
	label := "Repayment"
	if d.Type == DebtLent {
		label = "Return"
	}
	return fmt.Sprintf("Payment from %s (%s)", d.Person, label)
}
