package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"famledger/internal/core"
	"famledger/internal/ledger"
	"famledger/internal/storage/memory"
)

var (
	admin = core.Caller{UserID: "u-admin", Role: core.RoleAdmin}
	alice = core.Caller{UserID: "u-alice", Role: core.RoleMember}
	bob   = core.Caller{UserID: "u-bob", Role: core.RoleMember}
)

func rupees(n int64) core.Money { return core.NewMoney(n, 0) }

type fixture struct {
	ctx     context.Context
	store   ledger.Store
	mem     *memory.Store
	txs     *ledger.Transactions
	debts   *ledger.Debts
	dir     *ledger.Directory
	checker *ledger.Reconciler

	accountA string
	accountB string
	food     string
	salary   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := memory.New()
	return newFixtureWith(t, mem, mem)
}

// newFixtureWith builds services over store while seeding through mem, so a
// wrapping store can inject faults.
func newFixtureWith(t *testing.T, mem *memory.Store, store ledger.Store) *fixture {
	t.Helper()
	ctx := context.Background()
	cats := ledger.NewCategoryLookup(0, 0)
	txs := ledger.NewTransactions(store, ledger.NewEngine(), cats)
	f := &fixture{
		ctx:     ctx,
		store:   store,
		mem:     mem,
		txs:     txs,
		debts:   ledger.NewDebts(store, txs),
		dir:     ledger.NewDirectory(mem, cats),
		checker: ledger.NewReconciler(store),
	}

	a, err := f.dir.CreateAccount(ctx, admin, ledger.AccountInput{Name: "A", Type: core.AccountBank, OpeningBalance: rupees(1000)})
	if err != nil {
		t.Fatalf("create account A: %v", err)
	}
	b, err := f.dir.CreateAccount(ctx, admin, ledger.AccountInput{Name: "B", Type: core.AccountCash})
	if err != nil {
		t.Fatalf("create account B: %v", err)
	}
	food, err := f.dir.CreateCategory(ctx, admin, ledger.CategoryInput{Name: "Food", Kind: core.CategoryExpense})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	salary, err := f.dir.CreateCategory(ctx, admin, ledger.CategoryInput{Name: "Salary", Kind: core.CategoryIncome})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	f.accountA, f.accountB, f.food, f.salary = a.ID, b.ID, food.ID, salary.ID
	return f
}

func (f *fixture) balance(t *testing.T, id string) core.Money {
	t.Helper()
	a, err := f.mem.GetAccount(f.ctx, id)
	if err != nil {
		t.Fatalf("get account %s: %v", id, err)
	}
	return a.Balance
}

func (f *fixture) wantBalance(t *testing.T, id string, want core.Money) {
	t.Helper()
	if got := f.balance(t, id); got != want {
		t.Fatalf("balance of %s = %s, want %s", id, got, want)
	}
}

func (f *fixture) pending(t *testing.T) int64 {
	t.Helper()
	st, err := f.mem.OutboxStats(f.ctx)
	if err != nil {
		t.Fatalf("outbox stats: %v", err)
	}
	return st.Pending
}

func (f *fixture) expense(t *testing.T, caller core.Caller, amount core.Money) core.Transaction {
	t.Helper()
	tr, err := f.txs.Create(f.ctx, caller, ledger.TransactionInput{
		Title:      "Groceries",
		Amount:     amount,
		Type:       core.TxExpense,
		AccountID:  f.accountA,
		CategoryID: f.food,
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}
	return tr
}

func wantKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("error = %v, want %v", err, kind)
	}
}

// faultyStore fails selected writes inside an otherwise working unit of work.
type faultyStore struct {
	*memory.Store
	failAdjustAt int
	failEnqueue  bool
}

func (s *faultyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return fn(ctx, &faultyTx{Tx: tx, s: s})
	})
}

type faultyTx struct {
	ledger.Tx
	s       *faultyStore
	adjusts int
}

func (t *faultyTx) AdjustBalance(ctx context.Context, id string, delta core.Money, at time.Time) error {
	t.adjusts++
	if t.s.failAdjustAt > 0 && t.adjusts == t.s.failAdjustAt {
		return errors.New("disk I/O error")
	}
	return t.Tx.AdjustBalance(ctx, id, delta, at)
}

func (t *faultyTx) Enqueue(ctx context.Context, e core.LedgerEvent) error {
	if t.s.failEnqueue {
		return errors.New("outbox unavailable")
	}
	return t.Tx.Enqueue(ctx, e)
}
