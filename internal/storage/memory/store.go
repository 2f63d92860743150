// Package memory is an in-process ledger store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"famledger/internal/core"
	"famledger/internal/ledger"
)

type data struct {
	accounts     map[string]core.Account
	categories   map[string]core.Category
	transactions map[string]core.Transaction
	debts        map[string]core.Debt
	outbox       []ledger.OutboxEntry
}

func newData() *data {
	return &data{
		accounts:     map[string]core.Account{},
		categories:   map[string]core.Category{},
		transactions: map[string]core.Transaction{},
		debts:        map[string]core.Debt{},
	}
}

func (d *data) clone() *data {
	c := &data{
		accounts:     make(map[string]core.Account, len(d.accounts)),
		categories:   make(map[string]core.Category, len(d.categories)),
		transactions: make(map[string]core.Transaction, len(d.transactions)),
		debts:        make(map[string]core.Debt, len(d.debts)),
		outbox:       append([]ledger.OutboxEntry(nil), d.outbox...),
	}
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	for k, v := range d.categories {
		c.categories[k] = v
	}
	for k, v := range d.transactions {
		c.transactions[k] = cloneTransaction(v)
	}
	for k, v := range d.debts {
		c.debts[k] = cloneDebt(v)
	}
	return c
}

func cloneTransaction(t core.Transaction) core.Transaction {
	if t.Tags != nil {
		t.Tags = append([]string(nil), t.Tags...)
	}
	return t
}

func cloneDebt(d core.Debt) core.Debt {
	if d.Entries != nil {
		d.Entries = append([]core.DebtEntry(nil), d.Entries...)
	}
	return d
}

// Store keeps all state behind one mutex. A unit of work holds the lock for
// its whole duration and restores a snapshot if fn fails.
type Store struct {
	mu   sync.Mutex
	data *data
	now  func() time.Time
}

func New() *Store {
	return &Store{data: newData(), now: time.Now}
}

// Seed inserts accounts and categories as-is. Balances are taken verbatim.
func (s *Store) Seed(accounts []core.Account, categories []core.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range accounts {
		s.data.accounts[a.ID] = a
	}
	for _, c := range categories {
		s.data.categories[c.ID] = c
	}
}

// WithinTx implements ledger.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(ctx, &tx{d: s.data}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *Store) read() reader {
	return reader{d: s.data}
}

func (s *Store) GetAccount(ctx context.Context, id string) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().GetAccount(ctx, id)
}

func (s *Store) ListAccounts(ctx context.Context, includeInactive bool) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListAccounts(ctx, includeInactive)
}

func (s *Store) GetCategory(ctx context.Context, id string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().GetCategory(ctx, id)
}

func (s *Store) ListCategories(ctx context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListCategories(ctx)
}

func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().GetTransaction(ctx, id)
}

func (s *Store) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListTransactions(ctx, f)
}

func (s *Store) GetDebt(ctx context.Context, id string) (core.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().GetDebt(ctx, id)
}

func (s *Store) ListDebts(ctx context.Context, f ledger.DebtFilter) ([]core.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListDebts(ctx, f)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// reader works on data without locking; callers hold the store mutex.
type reader struct {
	d *data
}

func (r reader) GetAccount(_ context.Context, id string) (core.Account, error) {
	a, ok := r.d.accounts[id]
	if !ok {
		return core.Account{}, core.NotFoundf("account %s", id)
	}
	return a, nil
}

func (r reader) ListAccounts(_ context.Context, includeInactive bool) ([]core.Account, error) {
	out := make([]core.Account, 0, len(r.d.accounts))
	for _, a := range r.d.accounts {
		if a.IsActive || includeInactive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r reader) GetCategory(_ context.Context, id string) (core.Category, error) {
	c, ok := r.d.categories[id]
	if !ok {
		return core.Category{}, core.NotFoundf("category %s", id)
	}
	return c, nil
}

func (r reader) ListCategories(context.Context) ([]core.Category, error) {
	out := make([]core.Category, 0, len(r.d.categories))
	for _, c := range r.d.categories {
		if c.IsActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r reader) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	t, ok := r.d.transactions[id]
	if !ok {
		return core.Transaction{}, core.NotFoundf("transaction %s", id)
	}
	return cloneTransaction(t), nil
}

func (r reader) ListTransactions(_ context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, t := range r.d.transactions {
		if f.Match(t) {
			out = append(out, cloneTransaction(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r reader) GetDebt(_ context.Context, id string) (core.Debt, error) {
	d, ok := r.d.debts[id]
	if !ok {
		return core.Debt{}, core.NotFoundf("debt %s", id)
	}
	return cloneDebt(d), nil
}

func (r reader) ListDebts(_ context.Context, f ledger.DebtFilter) ([]core.Debt, error) {
	var out []core.Debt
	for _, d := range r.d.debts {
		if f.Match(d) {
			out = append(out, cloneDebt(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type tx struct {
	d *data
}

var _ ledger.Tx = (*tx)(nil)

func (t *tx) r() reader { return reader{d: t.d} }

func (t *tx) GetAccount(ctx context.Context, id string) (core.Account, error) {
	return t.r().GetAccount(ctx, id)
}

func (t *tx) ListAccounts(ctx context.Context, includeInactive bool) ([]core.Account, error) {
	return t.r().ListAccounts(ctx, includeInactive)
}

func (t *tx) GetCategory(ctx context.Context, id string) (core.Category, error) {
	return t.r().GetCategory(ctx, id)
}

func (t *tx) ListCategories(ctx context.Context) ([]core.Category, error) {
	return t.r().ListCategories(ctx)
}

func (t *tx) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return t.r().GetTransaction(ctx, id)
}

func (t *tx) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	return t.r().ListTransactions(ctx, f)
}

func (t *tx) GetDebt(ctx context.Context, id string) (core.Debt, error) {
	return t.r().GetDebt(ctx, id)
}

func (t *tx) ListDebts(ctx context.Context, f ledger.DebtFilter) ([]core.Debt, error) {
	return t.r().ListDebts(ctx, f)
}

func (t *tx) InsertAccount(_ context.Context, a core.Account) error {
	if _, dup := t.d.accounts[a.ID]; dup {
		return fmt.Errorf("account %s already exists", a.ID)
	}
	t.d.accounts[a.ID] = a
	return nil
}

func (t *tx) DeactivateAccount(_ context.Context, id string, at time.Time) error {
	a, ok := t.d.accounts[id]
	if !ok {
		return core.NotFoundf("account %s", id)
	}
	a.IsActive = false
	a.UpdatedAt = at
	t.d.accounts[id] = a
	return nil
}

func (t *tx) InsertCategory(_ context.Context, c core.Category) error {
	if _, dup := t.d.categories[c.ID]; dup {
		return fmt.Errorf("category %s already exists", c.ID)
	}
	t.d.categories[c.ID] = c
	return nil
}

func (t *tx) AdjustBalance(_ context.Context, accountID string, delta core.Money, at time.Time) error {
	a, ok := t.d.accounts[accountID]
	if !ok {
		return core.NotFoundf("account %s", accountID)
	}
	next := a.Balance.Add(delta)
	if !delta.InRange() || !next.WithinBalanceLimit() {
		return fmt.Errorf("%w: account %s", core.ErrBalanceOutOfRange, accountID)
	}
	a.Balance = next
	a.UpdatedAt = at
	t.d.accounts[accountID] = a
	return nil
}

func (t *tx) InsertTransaction(_ context.Context, tr core.Transaction) error {
	if _, dup := t.d.transactions[tr.ID]; dup {
		return fmt.Errorf("transaction %s already exists", tr.ID)
	}
	t.d.transactions[tr.ID] = cloneTransaction(tr)
	return nil
}

func (t *tx) UpdateTransaction(_ context.Context, tr core.Transaction) error {
	if _, ok := t.d.transactions[tr.ID]; !ok {
		return core.NotFoundf("transaction %s", tr.ID)
	}
	t.d.transactions[tr.ID] = cloneTransaction(tr)
	return nil
}

func (t *tx) DeleteTransaction(_ context.Context, id string) error {
	if _, ok := t.d.transactions[id]; !ok {
		return core.NotFoundf("transaction %s", id)
	}
	delete(t.d.transactions, id)
	return nil
}

func (t *tx) InsertDebt(_ context.Context, d core.Debt) error {
	if _, dup := t.d.debts[d.ID]; dup {
		return fmt.Errorf("debt %s already exists", d.ID)
	}
	t.d.debts[d.ID] = cloneDebt(d)
	return nil
}

func (t *tx) UpdateDebt(_ context.Context, d core.Debt) error {
	if _, ok := t.d.debts[d.ID]; !ok {
		return core.NotFoundf("debt %s", d.ID)
	}
	t.d.debts[d.ID] = cloneDebt(d)
	return nil
}

func (t *tx) Enqueue(_ context.Context, e core.LedgerEvent) error {
	t.d.outbox = append(t.d.outbox, ledger.OutboxEntry{
		Event:     e,
		Status:    ledger.OutboxPending,
		UpdatedAt: e.OccurredAt,
	})
	return nil
}
