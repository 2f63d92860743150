package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"famledger/internal/cache"
	"famledger/internal/ledger"
)

// LedgerServiceConfig tunes the shared category cache.
type LedgerServiceConfig struct {
	CategoryCacheSize int
	CategoryCacheTTL  time.Duration
	// SweepInterval is how often expired cache entries are dropped (default: TTL)
	SweepInterval time.Duration
}

// LedgerService wires the ledger components over one store so the HTTP
// layer and the worker share the same category cache and engine.
type LedgerService struct {
	Store        ledger.Store
	Directory    *ledger.Directory
	Transactions *ledger.Transactions
	Debts        *ledger.Debts
	Reconciler   *ledger.Reconciler

	categories *ledger.CategoryLookup
	caches     *cache.Manager
}

func NewLedgerService(store ledger.Store, cfg LedgerServiceConfig) *LedgerService {
	categories := ledger.NewCategoryLookup(cfg.CategoryCacheSize, cfg.CategoryCacheTTL)
	transactions := ledger.NewTransactions(store, ledger.NewEngine(), categories)

	caches := cache.NewManager()
	caches.Register("categories", categories.Cache())
	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = cfg.CategoryCacheTTL
	}
	if sweep <= 0 {
		sweep = 5 * time.Minute
	}
	caches.StartCleanup(sweep)

	return &LedgerService{
		Store:        store,
		Directory:    ledger.NewDirectory(store, categories),
		Transactions: transactions,
		Debts:        ledger.NewDebts(store, transactions),
		Reconciler:   ledger.NewReconciler(store),
		categories:   categories,
		caches:       caches,
	}
}

// CacheStats reports category cache usage.
func (s *LedgerService) CacheStats() cache.Stats {
	return s.categories.Cache().Stats()
}

// Ping checks the store when it supports it.
func (s *LedgerService) Ping(ctx context.Context) error {
	if p, ok := s.Store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close stops the cache sweeper and closes the store.
func (s *LedgerService) Close() error {
	s.caches.Stop()

	if c, ok := s.Store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close ledger store: %w", err)
		}
	}
	slog.Info("Ledger service closed")
	return nil
}
