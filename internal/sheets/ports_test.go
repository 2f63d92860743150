package sheets

import (
	"strings"
	"testing"
	"time"

	"famledger/internal/core"
)

func mustEvent(t *testing.T, typ core.EventType, p core.EventPayload) core.LedgerEvent {
	t.Helper()
	e, err := core.NewLedgerEvent(typ, "agg-1", "u1", p, time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewLedgerEvent() error = %v", err)
	}
	return e
}

func TestRowFromEvent(t *testing.T) {
	tr := core.Transaction{
		ID: "t1", Title: "Groceries", Amount: core.NewMoney(42, 50), Type: core.TxExpense,
		AccountID: "acc-1", CategoryID: "cat-food", Date: core.NewDate(2024, 4, 30),
	}
	debt := core.Debt{
		ID: "d1", Person: "Sam", Type: core.DebtLent, Amount: core.NewMoney(200, 0),
		RemainingAmount: core.NewMoney(150, 0), Date: core.NewDate(2024, 4, 1),
	}
	payment := core.Transaction{ID: "t2", Title: "Payment from Sam (Return)", Amount: core.NewMoney(50, 0), Type: core.TxIncome, AccountID: "acc-2"}

	tests := []struct {
		name      string
		event     core.LedgerEvent
		wantKind  string
		wantTitle string
		wantCells map[int]string
	}{
		{
			name:      "expense created",
			event:     mustEvent(t, core.EventTransactionCreated, core.EventPayload{Transaction: &tr}),
			wantKind:  "expense",
			wantTitle: "Groceries",
			wantCells: map[int]string{4: "2024-04-30", 6: "42.50", 7: "acc-1", 9: "cat-food"},
		},
		{
			name:      "debt payment uses the linked transaction",
			event:     mustEvent(t, core.EventDebtPaymentAdded, core.EventPayload{Debt: &debt, Transaction: &payment}),
			wantKind:  "income",
			wantTitle: "Payment from Sam (Return)",
			wantCells: map[int]string{6: "50.00", 7: "acc-2", 10: "Sam", 11: "150.00"},
		},
		{
			name:      "debt deleted",
			event:     mustEvent(t, core.EventDebtDeleted, core.EventPayload{Debt: &debt}),
			wantKind:  "lent",
			wantCells: map[int]string{6: "200.00", 10: "Sam"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := RowFromEvent(tt.event)
			if err != nil {
				t.Fatalf("RowFromEvent() error = %v", err)
			}
			if row.Kind != tt.wantKind || row.Title != tt.wantTitle {
				t.Errorf("row = %+v", row)
			}
			cells := row.Values()
			if len(cells) != len(Header) {
				t.Fatalf("got %d cells, header has %d", len(cells), len(Header))
			}
			if cells[0] != tt.event.ID || cells[1] != "2024-05-01T09:30:00Z" {
				t.Errorf("leading cells = %v", cells[:2])
			}
			for i, want := range tt.wantCells {
				if cells[i] != want {
					t.Errorf("cell %d (%v) = %v, want %q", i, Header[i], cells[i], want)
				}
			}
		})
	}
}

func TestRowFromEventRejectsIncompletePayload(t *testing.T) {
	e := mustEvent(t, core.EventTransactionDeleted, core.EventPayload{})
	if _, err := RowFromEvent(e); err == nil || !strings.Contains(err.Error(), "has no transaction") {
		t.Fatalf("err = %v", err)
	}

	e.Type = "account.renamed"
	if _, err := RowFromEvent(e); err == nil {
		t.Fatal("unknown event type should fail")
	}
}
