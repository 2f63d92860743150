package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"famledger/internal/core"
)

// TransactionInput carries the fields of a new ledger entry. References are
// already normalized to ids.
type TransactionInput struct {
	Title         string
	Amount        core.Money
	Type          core.TransactionType
	AccountID     string
	ToAccountID   string
	CategoryID    string
	Date          core.Date
	Description   string
	PaymentMethod core.PaymentMethod
	Tags          []string
}

// TransactionPatch is a partial update. Nil fields are left unchanged.
type TransactionPatch struct {
	Title         *string
	Amount        *core.Money
	Type          *core.TransactionType
	AccountID     *string
	ToAccountID   *string
	CategoryID    *string
	Date          *core.Date
	Description   *string
	PaymentMethod *core.PaymentMethod
	Tags          *[]string
}

// TransferInput moves money between two accounts.
type TransferInput struct {
	FromAccountID string
	ToAccountID   string
	Amount        core.Money
	CategoryID    string
	Title         string
	Description   string
	Date          core.Date
}

// Transactions is the transaction ledger.
type Transactions struct {
	store      Store
	engine     *Engine
	categories *CategoryLookup
	now        func() time.Time
}

func NewTransactions(store Store, engine *Engine, categories *CategoryLookup) *Transactions {
	if engine == nil {
		engine = NewEngine()
	}
	if categories == nil {
		categories = NewCategoryLookup(0, 0)
	}
	return &Transactions{
		store:      store,
		engine:     engine,
		categories: categories,
		now:        time.Now,
	}
}

func (in TransactionInput) build(userID string, now time.Time) core.Transaction {
	t := core.Transaction{
		ID:            uuid.NewString(),
		UserID:        userID,
		Title:         strings.TrimSpace(in.Title),
		Amount:        in.Amount,
		Type:          in.Type,
		AccountID:     in.AccountID,
		ToAccountID:   in.ToAccountID,
		CategoryID:    in.CategoryID,
		Date:          in.Date.OrNow(now),
		Description:   strings.TrimSpace(in.Description),
		PaymentMethod: in.PaymentMethod,
		Tags:          in.Tags,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if t.Type == "" {
		t.Type = core.TxExpense
	}
	if t.PaymentMethod == "" {
		t.PaymentMethod = core.PaymentCash
	}
	if t.Type != core.TxTransfer {
		t.ToAccountID = ""
	}
	return t
}

func (p TransactionPatch) apply(t core.Transaction) core.Transaction {
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.AccountID != nil {
		t.AccountID = *p.AccountID
	}
	if p.ToAccountID != nil {
		t.ToAccountID = *p.ToAccountID
	}
	if p.CategoryID != nil {
		t.CategoryID = *p.CategoryID
	}
	if p.Date != nil && !p.Date.IsZero() {
		t.Date = *p.Date
	}
	if p.Description != nil {
		t.Description = strings.TrimSpace(*p.Description)
	}
	if p.PaymentMethod != nil {
		t.PaymentMethod = *p.PaymentMethod
	}
	if p.Tags != nil {
		t.Tags = *p.Tags
	}
	if t.Type != core.TxTransfer {
		t.ToAccountID = ""
	}
	return t
}

// Create records a new entry and applies its balance deltas.
func (s *Transactions) Create(ctx context.Context, caller core.Caller, in TransactionInput) (core.Transaction, error) {
	now := s.now().UTC()
	t := in.build(caller.UserID, now)
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := s.resolve(ctx, tx, t, nil); err != nil {
			return err
		}
		return s.record(ctx, tx, t, now)
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction created",
		"transaction_id", t.ID,
		"type", t.Type,
		"amount_cents", t.Amount.Cents,
		"account_id", t.AccountID,
		"user_id", t.UserID)
	return t, nil
}

// record inserts t, applies its create deltas and enqueues the event. It is
// shared with the debt tracker, whose linked entries follow the same rules.
func (s *Transactions) record(ctx context.Context, tx Tx, t core.Transaction, now time.Time) error {
	if err := tx.InsertTransaction(ctx, t); err != nil {
		return core.NewConsistencyError("create transaction", err)
	}
	if err := s.engine.Apply(ctx, tx, "create transaction", CreateDeltas(t)); err != nil {
		return err
	}
	return enqueue(ctx, tx, core.EventTransactionCreated, t.ID, t.UserID, core.EventPayload{Transaction: &t}, now)
}

// Transfer moves amount from one account to another as a single transfer entry.
func (s *Transactions) Transfer(ctx context.Context, caller core.Caller, in TransferInput) (core.Transaction, error) {
	if in.FromAccountID == "" || in.ToAccountID == "" || in.Amount.Cents <= 0 {
		return core.Transaction{}, core.InvalidRequestf("source, destination and amount are required")
	}
	if in.FromAccountID == in.ToAccountID {
		return core.Transaction{}, core.InvalidRequestf("source and destination accounts must be different")
	}

	now := s.now().UTC()
	var t core.Transaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		src, err := tx.GetAccount(ctx, in.FromAccountID)
		if err != nil {
			return transferLookupError(err)
		}
		dst, err := tx.GetAccount(ctx, in.ToAccountID)
		if err != nil {
			return transferLookupError(err)
		}

		title := strings.TrimSpace(in.Title)
		if title == "" {
			title = fmt.Sprintf("Transfer to %s", dst.Name)
		}
		desc := strings.TrimSpace(in.Description)
		if desc == "" {
			desc = fmt.Sprintf("Transfer from %s to %s", src.Name, dst.Name)
		}
		t = TransactionInput{
			Title:       title,
			Amount:      in.Amount,
			Type:        core.TxTransfer,
			AccountID:   src.ID,
			ToAccountID: dst.ID,
			CategoryID:  in.CategoryID,
			Date:        in.Date,
			Description: desc,
		}.build(caller.UserID, now)
		if err := t.Validate(); err != nil {
			return err
		}
		if err := s.resolve(ctx, tx, t, nil); err != nil {
			return err
		}
		return s.record(ctx, tx, t, now)
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Funds transferred",
		"transaction_id", t.ID,
		"from_account_id", t.AccountID,
		"to_account_id", t.ToAccountID,
		"amount_cents", t.Amount.Cents)
	return t, nil
}

func transferLookupError(err error) error {
	if core.Kind(err) == "not_found" {
		return fmt.Errorf("%w: one or both accounts not found (%v)", core.ErrInvalidRequest, err)
	}
	return err
}

// Get returns a single entry visible to caller.
func (s *Transactions) Get(ctx context.Context, caller core.Caller, id string) (core.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if !caller.CanModify(t.UserID) {
		return core.Transaction{}, fmt.Errorf("%w: not authorized", core.ErrForbidden)
	}
	return t, nil
}

// List returns entries matching f, newest first. The ledger is family-wide.
func (s *Transactions) List(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx, f)
}

// Update merges patch into the entry, then reverts the old balance effect and
// applies the new one.
func (s *Transactions) Update(ctx context.Context, caller core.Caller, id string, patch TransactionPatch) (core.Transaction, error) {
	now := s.now().UTC()
	var updated core.Transaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		old, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if !caller.CanModify(old.UserID) {
			return fmt.Errorf("%w: not authorized", core.ErrForbidden)
		}

		updated = patch.apply(old)
		updated.UpdatedAt = now
		if err := updated.Validate(); err != nil {
			return err
		}
		if err := s.resolve(ctx, tx, updated, &old); err != nil {
			return err
		}

		if err := tx.UpdateTransaction(ctx, updated); err != nil {
			return core.NewConsistencyError("update transaction", err)
		}
		if err := s.engine.Apply(ctx, tx, "update transaction", UpdateDeltas(old, updated)); err != nil {
			return err
		}
		return enqueue(ctx, tx, core.EventTransactionUpdated, updated.ID, caller.UserID,
			core.EventPayload{Transaction: &updated, Previous: &old}, now)
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction updated",
		"transaction_id", updated.ID,
		"type", updated.Type,
		"amount_cents", updated.Amount.Cents,
		"account_id", updated.AccountID)
	return updated, nil
}

// Delete reverses the entry's balance effect and removes it.
func (s *Transactions) Delete(ctx context.Context, caller core.Caller, id string) error {
	now := s.now().UTC()
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if !caller.CanModify(t.UserID) {
			return fmt.Errorf("%w: not authorized", core.ErrForbidden)
		}
		if err := s.engine.Apply(ctx, tx, "delete transaction", ReverseDeltas(t)); err != nil {
			return err
		}
		if err := tx.DeleteTransaction(ctx, t.ID); err != nil {
			return core.NewConsistencyError("delete transaction", err)
		}
		return enqueue(ctx, tx, core.EventTransactionDeleted, t.ID, caller.UserID, core.EventPayload{Transaction: &t}, now)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Transaction deleted", "transaction_id", id)
	return nil
}

// resolve checks every reference of t before anything is written. Accounts
// that receive a new delta must be active, unless old already referenced
// them; reverting onto a deactivated account is always allowed.
func (s *Transactions) resolve(ctx context.Context, tx Tx, t core.Transaction, old *core.Transaction) error {
	for _, id := range t.AccountIDs() {
		acc, err := tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if !acc.IsActive && !referencedBy(old, id) {
			return core.InvalidRequestf("account %s is inactive", acc.Name)
		}
	}
	if t.CategoryID != "" {
		if _, err := s.categories.Get(ctx, tx, t.CategoryID); err != nil {
			return err
		}
	}
	return nil
}

func referencedBy(t *core.Transaction, accountID string) bool {
	if t == nil {
		return false
	}
	for _, id := range t.AccountIDs() {
		if id == accountID {
			return true
		}
	}
	return false
}

func enqueue(ctx context.Context, tx Tx, typ core.EventType, aggregateID, userID string, payload core.EventPayload, now time.Time) error {
	ev, err := core.NewLedgerEvent(typ, aggregateID, userID, payload, now)
	if err != nil {
		return core.NewConsistencyError(string(typ), err)
	}
	if err := tx.Enqueue(ctx, ev); err != nil {
		return core.NewConsistencyError(string(typ), fmt.Errorf("enqueue event: %w", err))
	}
	return nil
}
