package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"famledger/internal/ledger"
	"famledger/internal/log"
)

const defaultReconcileTimeout = 2 * time.Minute

// Auditor runs one reconciliation pass.
type Auditor interface {
	Run(ctx context.Context) (ledger.Report, error)
}

// ReconcileScheduler runs the balance audit on a cron schedule. Overlapping
// runs are skipped.
type ReconcileScheduler struct {
	cron    *cron.Cron
	auditor Auditor
	logger  *log.Logger
	timeout time.Duration

	mu   sync.Mutex
	last *ledger.Report
	runs int
}

// NewReconcileScheduler parses schedule (standard cron syntax or descriptors
// such as "@every 1h") and registers the audit job.
func NewReconcileScheduler(auditor Auditor, schedule string, logger *log.Logger) (*ReconcileScheduler, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	s := &ReconcileScheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger))),
		auditor: auditor,
		logger:  logger.WithComponent(log.ComponentWorker),
		timeout: defaultReconcileTimeout,
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_, _ = s.RunOnce(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *ReconcileScheduler) Start() {
	s.cron.Start()
	s.logger.Info("Reconcile scheduler started", "next_run", s.nextRun())
}

// Stop halts the schedule and waits for a running audit, bounded by ctx.
func (s *ReconcileScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Reconcile scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce audits the ledger now and records the report.
func (s *ReconcileScheduler) RunOnce(ctx context.Context) (ledger.Report, error) {
	start := time.Now()
	report, err := s.auditor.Run(ctx)
	fields := log.NewFields().
		WithOperation(log.OpReconcile).
		WithError(err).
		ToSlice()
	fields = append(fields,
		"accounts", report.Accounts,
		"transactions", report.Transactions,
		"debts", report.Debts,
		log.FieldDuration, time.Since(start).Milliseconds())

	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "Ledger reconciled", fields...)
	case !report.Clean():
		fields = append(fields, "drifts", len(report.Drifts), "debt_mismatches", len(report.DebtMismatches))
		s.logger.ErrorContext(ctx, "Ledger reconciliation found inconsistencies", fields...)
		for _, d := range report.Drifts {
			s.logger.ErrorContext(ctx, "Account balance drift",
				log.FieldAccountID, d.AccountID,
				"expected_cents", d.Expected.Cents,
				"actual_cents", d.Actual.Cents)
		}
	default:
		s.logger.ErrorContext(ctx, "Ledger reconciliation failed", fields...)
		return report, err
	}

	s.mu.Lock()
	s.last = &report
	s.runs++
	s.mu.Unlock()
	return report, err
}

// LastReport returns the most recent completed report, if any.
func (s *ReconcileScheduler) LastReport() (ledger.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return ledger.Report{}, false
	}
	return *s.last, true
}

func (s *ReconcileScheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *ReconcileScheduler) nextRun() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
