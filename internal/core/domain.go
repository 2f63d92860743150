package core

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	AccountCash       AccountType = "cash"
	AccountBank       AccountType = "bank"
	AccountInvestment AccountType = "investment"
	AccountOther      AccountType = "other"

	CategoryIncome  CategoryKind = "income"
	CategoryExpense CategoryKind = "expense"

	TxExpense  TransactionType = "expense"
	TxIncome   TransactionType = "income"
	TxTransfer TransactionType = "transfer"

	PaymentCash       PaymentMethod = "Cash"
	PaymentUPI        PaymentMethod = "UPI"
	PaymentCard       PaymentMethod = "Card"
	PaymentNetBanking PaymentMethod = "Net Banking"

	RoleMember Role = "member"
	RoleAdmin  Role = "admin"

	DefaultCurrency = "INR"
)

type (
	AccountType     string
	CategoryKind    string
	TransactionType string
	PaymentMethod   string
	Role            string

	// Date is a calendar timestamp that accepts both "2006-01-02" and RFC 3339 input.
	Date struct {
		time.Time
	}

	Account struct {
		ID             string      `json:"id"`
		Name           string      `json:"name"`
		Type           AccountType `json:"type"`
		Balance        Money       `json:"balance"`
		OpeningBalance Money       `json:"openingBalance"`
		Currency       string      `json:"currency"`
		Icon           string      `json:"icon,omitempty"`
		Color          string      `json:"color,omitempty"`
		Description    string      `json:"description,omitempty"`
		IsActive       bool        `json:"isActive"`
		CreatedBy      string      `json:"createdBy"`
		CreatedAt      time.Time   `json:"createdAt"`
		UpdatedAt      time.Time   `json:"updatedAt"`
	}

	Category struct {
		ID            string       `json:"id"`
		Name          string       `json:"name"`
		Kind          CategoryKind `json:"type"`
		MonthlyBudget Money        `json:"monthlyBudget"`
		Icon          string       `json:"icon,omitempty"`
		Color         string       `json:"color,omitempty"`
		Description   string       `json:"description,omitempty"`
		IsActive      bool         `json:"isActive"`
		CreatedBy     string       `json:"createdBy"`
		CreatedAt     time.Time    `json:"createdAt"`
	}

	// Transaction is a ledger entry. Amount is always a non-negative magnitude;
	// direction comes from Type.
	Transaction struct {
		ID            string          `json:"id"`
		UserID        string          `json:"user"`
		Title         string          `json:"title"`
		Amount        Money           `json:"amount"`
		Type          TransactionType `json:"type"`
		AccountID     string          `json:"account"`
		ToAccountID   string          `json:"toAccount,omitempty"`
		CategoryID    string          `json:"category,omitempty"`
		DebtID        string          `json:"debt,omitempty"`
		Date          Date            `json:"date"`
		Description   string          `json:"description,omitempty"`
		PaymentMethod PaymentMethod   `json:"paymentMethod"`
		Tags          []string        `json:"tags,omitempty"`
		CreatedAt     time.Time       `json:"createdAt"`
		UpdatedAt     time.Time       `json:"updatedAt"`
	}

	// Caller is the authenticated identity on whose behalf an operation runs.
	Caller struct {
		UserID string
		Role   Role
	}
)

var ErrInvalidDate = fmt.Errorf("%w: invalid date", ErrValidation)

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"}

// NewDate returns midnight UTC of the given day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses s with any of the accepted layouts.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{Time: t.UTC()}, nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.UTC().Format(time.RFC3339) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte(`""`)) {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// OrNow returns d, or the current time when d is zero.
func (d Date) OrNow(now time.Time) Date {
	if d.IsZero() {
		return Date{Time: now.UTC()}
	}
	return d
}

func (t AccountType) IsValid() bool {
	switch t {
	case AccountCash, AccountBank, AccountInvestment, AccountOther:
		return true
	}
	return false
}

func (k CategoryKind) IsValid() bool {
	return k == CategoryIncome || k == CategoryExpense
}

func (t TransactionType) IsValid() bool {
	switch t {
	case TxExpense, TxIncome, TxTransfer:
		return true
	}
	return false
}

func (p PaymentMethod) IsValid() bool {
	switch p {
	case PaymentCash, PaymentUPI, PaymentCard, PaymentNetBanking:
		return true
	}
	return false
}

// IsAdmin reports whether the caller holds the administrator role.
func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

// CanModify reports whether the caller may change a record owned by ownerID.
func (c Caller) CanModify(ownerID string) bool {
	return c.IsAdmin() || (c.UserID != "" && c.UserID == ownerID)
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: account name is required", ErrValidation)
	}
	if !a.Type.IsValid() {
		return fmt.Errorf("%w: account type %q", ErrInvalidType, a.Type)
	}
	if !a.OpeningBalance.WithinBalanceLimit() || !a.Balance.WithinBalanceLimit() {
		return ErrBalanceOutOfRange
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: category name is required", ErrValidation)
	}
	if !c.Kind.IsValid() {
		return fmt.Errorf("%w: category type %q", ErrInvalidType, c.Kind)
	}
	if c.MonthlyBudget.IsNegative() {
		return ErrNegativeAmount
	}
	if !c.MonthlyBudget.InRange() {
		return ErrAmountOutOfRange
	}
	return nil
}

// Validate checks the field rules of a ledger entry. It does not resolve
// references; that is the ledger's job.
func (t Transaction) Validate() error {
	if !t.Type.IsValid() {
		return fmt.Errorf("%w: transaction type %q", ErrInvalidType, t.Type)
	}
	if strings.TrimSpace(t.Title) == "" {
		return ErrMissingTitle
	}
	if t.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if !t.Amount.InRange() {
		return ErrAmountOutOfRange
	}
	if t.AccountID == "" {
		return ErrMissingAccount
	}
	if t.Type == TxTransfer {
		if t.ToAccountID == "" {
			return ErrMissingToAccount
		}
		if t.ToAccountID == t.AccountID {
			return InvalidRequestf("source and destination accounts must be different")
		}
	} else if t.CategoryID == "" {
		return ErrMissingCategory
	}
	if t.PaymentMethod != "" && !t.PaymentMethod.IsValid() {
		return fmt.Errorf("%w: payment method %q", ErrValidation, t.PaymentMethod)
	}
	return nil
}

// AccountIDs lists the accounts whose balance this entry moves.
func (t Transaction) AccountIDs() []string {
	if t.Type == TxTransfer && t.ToAccountID != "" {
		return []string{t.AccountID, t.ToAccountID}
	}
	return []string{t.AccountID}
}
