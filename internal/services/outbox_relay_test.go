package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"famledger/internal/core"
	"famledger/internal/ledger"
	"famledger/internal/storage/memory"
)

type recordingPublisher struct {
	mu        sync.Mutex
	published []core.LedgerEvent
	fail      error
}

func (p *recordingPublisher) Publish(_ context.Context, e core.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.published = append(p.published, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

var admin = core.Caller{UserID: "root", Role: core.RoleAdmin}

// seedEvents creates n expenses so the outbox holds n pending events.
func seedEvents(t *testing.T, store *memory.Store, n int) *LedgerService {
	t.Helper()
	ctx := context.Background()
	svc := NewLedgerService(store, LedgerServiceConfig{})
	t.Cleanup(func() { svc.caches.Stop() })

	acc, err := svc.Directory.CreateAccount(ctx, admin, ledger.AccountInput{Name: "Cash", Type: core.AccountCash, OpeningBalance: core.NewMoney(100, 0)})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	cat, err := svc.Directory.CreateCategory(ctx, admin, ledger.CategoryInput{Name: "Food", Kind: core.CategoryExpense})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	for i := 0; i < n; i++ {
		if _, err := svc.Transactions.Create(ctx, admin, ledger.TransactionInput{
			Title: "Snack", Amount: core.NewMoney(1, 0), AccountID: acc.ID, CategoryID: cat.ID,
		}); err != nil {
			t.Fatalf("create transaction: %v", err)
		}
	}
	return svc
}

func TestDefaultOutboxRelayConfig(t *testing.T) {
	config := DefaultOutboxRelayConfig()

	if config.PollInterval != 5*time.Second {
		t.Errorf("expected PollInterval 5s, got %v", config.PollInterval)
	}
	if config.BatchSize != 50 {
		t.Errorf("expected BatchSize 50, got %d", config.BatchSize)
	}
	if config.MaxRetries != 5 {
		t.Errorf("expected MaxRetries 5, got %d", config.MaxRetries)
	}
	if config.CleanupInterval != 1*time.Hour {
		t.Errorf("expected CleanupInterval 1h, got %v", config.CleanupInterval)
	}
	if config.CleanupAge != 72*time.Hour {
		t.Errorf("expected CleanupAge 72h, got %v", config.CleanupAge)
	}
}

func TestOutboxRelay_PublishesInOrder(t *testing.T) {
	store := memory.New()
	seedEvents(t, store, 3)
	pub := &recordingPublisher{}
	relay := NewOutboxRelay(store, pub, DefaultOutboxRelayConfig())
	ctx := context.Background()

	if n := relay.ProcessBatch(ctx); n != 3 {
		t.Fatalf("ProcessBatch() = %d, want 3", n)
	}
	for i := 1; i < len(pub.published); i++ {
		if pub.published[i].OccurredAt.Before(pub.published[i-1].OccurredAt) {
			t.Fatalf("events out of order at %d", i)
		}
	}

	stats, err := relay.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Published != 3 || stats.Pending != 0 {
		t.Errorf("Stats() = %+v", stats)
	}

	// Nothing left to send
	if n := relay.ProcessBatch(ctx); n != 0 {
		t.Errorf("second ProcessBatch() = %d, want 0", n)
	}
}

func TestOutboxRelay_RetriesThenFails(t *testing.T) {
	store := memory.New()
	seedEvents(t, store, 1)
	pub := &recordingPublisher{fail: errors.New("broker unavailable")}
	config := DefaultOutboxRelayConfig()
	config.MaxRetries = 2
	relay := NewOutboxRelay(store, pub, config)
	ctx := context.Background()

	relay.ProcessBatch(ctx)
	stats, _ := relay.Stats(ctx)
	if stats.Pending != 1 || stats.Failed != 0 {
		t.Fatalf("after first failure stats = %+v", stats)
	}

	relay.ProcessBatch(ctx)
	stats, _ = relay.Stats(ctx)
	if stats.Failed != 1 || stats.Pending != 0 {
		t.Fatalf("after max retries stats = %+v", stats)
	}

	// Failed events are parked until RetryFailed
	pub.fail = nil
	if n := relay.ProcessBatch(ctx); n != 0 {
		t.Fatalf("failed event was published without RetryFailed")
	}
	if err := relay.RetryFailed(ctx); err != nil {
		t.Fatalf("RetryFailed() error = %v", err)
	}
	if n := relay.ProcessBatch(ctx); n != 1 {
		t.Fatalf("ProcessBatch() after retry = %d, want 1", n)
	}
}

func TestOutboxRelay_StartStop(t *testing.T) {
	store := memory.New()
	seedEvents(t, store, 2)
	pub := &recordingPublisher{}
	config := DefaultOutboxRelayConfig()
	config.PollInterval = 10 * time.Millisecond
	relay := NewOutboxRelay(store, pub, config)
	ctx := context.Background()

	if relay.IsRunning() {
		t.Fatal("relay should not be running initially")
	}
	if err := relay.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := relay.Start(ctx); err == nil {
		t.Error("expected error when starting an already running relay")
	}

	deadline := time.Now().Add(2 * time.Second)
	for pub.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if pub.count() != 2 {
		t.Fatalf("published %d events, want 2", pub.count())
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := relay.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if relay.IsRunning() {
		t.Error("relay should not be running after Stop")
	}
}

func TestOutboxRelay_StopNotRunning(t *testing.T) {
	relay := NewOutboxRelay(memory.New(), &recordingPublisher{}, DefaultOutboxRelayConfig())

	if err := relay.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func TestLedgerService_Close(t *testing.T) {
	svc := NewLedgerService(memory.New(), LedgerServiceConfig{CategoryCacheSize: 8, CategoryCacheTTL: time.Minute})

	if err := svc.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
