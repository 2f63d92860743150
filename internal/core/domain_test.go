package core

import (
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDateJSON(t *testing.T) {
	for _, in := range []string{`"2025-03-04"`, `"2025-03-04T00:00:00Z"`} {
		var d Date
		if err := json.Unmarshal([]byte(in), &d); err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if !d.Equal(NewDate(2025, 3, 4).Time) {
			t.Fatalf("%s: got %v", in, d)
		}
	}
	var d Date
	if err := json.Unmarshal([]byte(`"yesterday"`), &d); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Title:      "Groceries",
		Amount:     Money{Cents: 500},
		Type:       TxExpense,
		AccountID:  "acc-a",
		CategoryID: "cat-food",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	transfer := Transaction{Title: "Move", Amount: Money{Cents: 1}, Type: TxTransfer, AccountID: "a", ToAccountID: "b"}
	if err := transfer.Validate(); err != nil {
		t.Fatalf("transfer without category should be ok, got %v", err)
	}

	zero := good
	zero.Amount = Money{}
	if err := zero.Validate(); err != nil {
		t.Fatalf("zero amount should be accepted, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Transaction)
		want   error
	}{
		{"negative amount", func(tx *Transaction) { tx.Amount = Money{Cents: -1} }, ErrNegativeAmount},
		{"missing account", func(tx *Transaction) { tx.AccountID = "" }, ErrMissingAccount},
		{"missing category", func(tx *Transaction) { tx.CategoryID = "" }, ErrMissingCategory},
		{"missing title", func(tx *Transaction) { tx.Title = " " }, ErrMissingTitle},
		{"bad type", func(tx *Transaction) { tx.Type = "refund" }, ErrValidation},
		{"bad payment method", func(tx *Transaction) { tx.PaymentMethod = "Cheque" }, ErrValidation},
		{"transfer without destination", func(tx *Transaction) { tx.Type = TxTransfer }, ErrMissingToAccount},
		{"transfer to self", func(tx *Transaction) { tx.Type = TxTransfer; tx.ToAccountID = tx.AccountID }, ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := good
			tc.mutate(&tx)
			if err := tx.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCallerCanModify(t *testing.T) {
	owner := Caller{UserID: "u1", Role: RoleMember}
	other := Caller{UserID: "u2", Role: RoleMember}
	admin := Caller{UserID: "u3", Role: RoleAdmin}

	if !owner.CanModify("u1") {
		t.Fatalf("owner should be allowed")
	}
	if other.CanModify("u1") {
		t.Fatalf("other member should be refused")
	}
	if !admin.CanModify("u1") {
		t.Fatalf("admin should be allowed")
	}
	if (Caller{}).CanModify("") {
		t.Fatalf("anonymous caller should never match an empty owner")
	}
}

func TestErrorKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrMissingAccount, "validation_error"},
		{NotFoundf("account %s", "x"), "not_found"},
		{ErrForbidden, "forbidden"},
		{InvalidRequestf("same account"), "invalid_request"},
		{NewConsistencyError("apply delta", NotFoundf("account x")), "consistency_failure"},
		{errors.New("boom"), "internal_error"},
	}
	for _, tc := range cases {
		if got := Kind(tc.err); got != tc.want {
			t.Fatalf("Kind(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestConsistencyErrorUnwrapsCause(t *testing.T) {
	cause := NotFoundf("account a")
	err := NewConsistencyError("update", cause)
	if !errors.Is(err, ErrConsistency) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected both kinds to match, got %v", err)
	}
	if again := NewConsistencyError("outer", err); again != err {
		t.Fatalf("expected consistency errors not to be double wrapped")
	}
}
