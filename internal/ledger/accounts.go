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

// AccountInput creates an account. OpeningBalance seeds both the running
// balance and the reconciliation baseline.
type AccountInput struct {
	Name           string
	Type           core.AccountType
	OpeningBalance core.Money
	Currency       string
	Icon           string
	Color          string
	Description    string
}

// CategoryInput creates a category.
type CategoryInput struct {
	Name          string
	Kind          core.CategoryKind
	MonthlyBudget core.Money
	Icon          string
	Color         string
	Description   string
}

// Directory administers accounts and categories. Balances are never written
// here; only the engine moves them.
type Directory struct {
	store      Store
	categories *CategoryLookup
	now        func() time.Time
}

func NewDirectory(store Store, categories *CategoryLookup) *Directory {
	if categories == nil {
		categories = NewCategoryLookup(0, 0)
	}
	return &Directory{store: store, categories: categories, now: time.Now}
}

func requireAdmin(caller core.Caller) error {
	if !caller.IsAdmin() {
		return fmt.Errorf("%w: administrator role required", core.ErrForbidden)
	}
	return nil
}

// CreateAccount adds an account. Administrators only.
func (d *Directory) CreateAccount(ctx context.Context, caller core.Caller, in AccountInput) (core.Account, error) {
	if err := requireAdmin(caller); err != nil {
		return core.Account{}, err
	}
	now := d.now().UTC()
	a := core.Account{
		ID:             uuid.NewString(),
		Name:           strings.TrimSpace(in.Name),
		Type:           in.Type,
		Balance:        in.OpeningBalance,
		OpeningBalance: in.OpeningBalance,
		Currency:       strings.ToUpper(strings.TrimSpace(in.Currency)),
		Icon:           in.Icon,
		Color:          in.Color,
		Description:    strings.TrimSpace(in.Description),
		IsActive:       true,
		CreatedBy:      caller.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if a.Type == "" {
		a.Type = core.AccountBank
	}
	if a.Currency == "" {
		a.Currency = core.DefaultCurrency
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	err := d.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertAccount(ctx, a)
	})
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	slog.InfoContext(ctx, "Account created", "account_id", a.ID, "name", a.Name, "type", a.Type)
	return a, nil
}

// DeactivateAccount soft-deletes an account. Its balance and history stay.
func (d *Directory) DeactivateAccount(ctx context.Context, caller core.Caller, id string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	err := d.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.DeactivateAccount(ctx, id, d.now().UTC())
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Account deactivated", "account_id", id)
	return nil
}

func (d *Directory) Account(ctx context.Context, id string) (core.Account, error) {
	return d.store.GetAccount(ctx, id)
}

func (d *Directory) Accounts(ctx context.Context, includeInactive bool) ([]core.Account, error) {
	return d.store.ListAccounts(ctx, includeInactive)
}

// CreateCategory adds a category. Administrators only.
func (d *Directory) CreateCategory(ctx context.Context, caller core.Caller, in CategoryInput) (core.Category, error) {
	if err := requireAdmin(caller); err != nil {
		return core.Category{}, err
	}
	c := core.Category{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(in.Name),
		Kind:          in.Kind,
		MonthlyBudget: in.MonthlyBudget,
		Icon:          in.Icon,
		Color:         in.Color,
		Description:   strings.TrimSpace(in.Description),
		IsActive:      true,
		CreatedBy:     caller.UserID,
		CreatedAt:     d.now().UTC(),
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	err := d.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertCategory(ctx, c)
	})
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	d.categories.Forget(c.ID)
	return c, nil
}

func (d *Directory) Categories(ctx context.Context) ([]core.Category, error) {
	return d.store.ListCategories(ctx)
}

// Category resolves a single category through the shared lookup cache.
func (d *Directory) Category(ctx context.Context, id string) (core.Category, error) {
	return d.categories.Get(ctx, d.store, id)
}
