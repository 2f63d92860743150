package main

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"famledger/internal/cli"
	"famledger/internal/config"
	"famledger/internal/ledger"
	"famledger/internal/log"
	"famledger/internal/services"
	"famledger/internal/sheets"
	gsheet "famledger/internal/sheets/google"
	mem "famledger/internal/sheets/memory"
	"famledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentWorker)
	logger.Info("Starting famledger-worker", log.FieldOperation, log.OpStartup)

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	store := cli.InitBackend(runCtx, logger, cfg)
	transport := cli.InitTransport(runCtx, logger, cfg)

	relayCfg := services.DefaultOutboxRelayConfig()
	relayCfg.PollInterval = cfg.OutboxInterval
	relayCfg.BatchSize = cfg.OutboxBatchSize
	relayCfg.MaxRetries = cfg.OutboxMaxRetries
	relay := services.NewOutboxRelay(store.Backend, transport.Publisher, relayCfg)

	var scheduler *worker.ReconcileScheduler
	if cfg.ReconcileSchedule != "" {
		var err error
		scheduler, err = worker.NewReconcileScheduler(ledger.NewReconciler(store.Backend), cfg.ReconcileSchedule, logger)
		if err != nil {
			logger.Error("Failed to create reconcile scheduler", log.FieldError, err)
			os.Exit(1)
		}
	} else {
		logger.Info("Scheduled reconciliation disabled")
	}

	var mirror *worker.SyncWorker
	switch {
	case !cfg.MirrorEnabled:
		logger.Info("Ledger mirror disabled")
	case transport.Consumer == nil:
		logger.Warn("Ledger mirror needs an event transport, skipping", "transport", cfg.EventTransport)
	default:
		rows, err := mirrorTarget(runCtx, cfg, logger)
		if err != nil {
			logger.Error("Failed to initialize ledger mirror", log.FieldError, err, log.FieldErrorType, log.ErrorTypeExternal)
			os.Exit(1)
		}
		mirror = worker.NewSyncWorker(rows, logger)
	}

	ctx, done := cli.GracefulShutdown(runCtx, logger, 30*time.Second, func(ctx context.Context) {
		if err := relay.Stop(ctx); err != nil {
			logger.Error("Outbox relay stop error", log.FieldError, err)
		}
		if scheduler != nil {
			if err := scheduler.Stop(ctx); err != nil {
				logger.Error("Reconcile scheduler stop error", log.FieldError, err)
			}
		}
		if transport.Cleanup != nil {
			if err := transport.Cleanup(); err != nil {
				logger.Error("Transport cleanup error", log.FieldError, err)
			}
		}
		if store.Cleanup != nil {
			if err := store.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", log.FieldError, err)
			}
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relay.Start(gctx)
	})
	if scheduler != nil {
		g.Go(func() error {
			// Audit once at startup so drift left by a crash is reported early.
			_, _ = scheduler.RunOnce(gctx)
			scheduler.Start()
			return nil
		})
	}
	if mirror != nil {
		g.Go(func() error {
			return mirror.Run(gctx, transport.Consumer)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Worker job failed", log.FieldError, err)
		stopRun()
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}

// mirrorTarget returns the Google spreadsheet journal when one is configured
// and the in-memory journal otherwise.
func mirrorTarget(ctx context.Context, cfg *config.Config, logger *log.Logger) (sheets.RowAppender, error) {
	if !cfg.SheetsConfigured() {
		logger.Info("Google Sheets not configured, mirroring to memory")
		return mem.New(), nil
	}
	client, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		OAuthClientFile: cfg.GoogleOAuthClientFile,
		OAuthTokenFile:  cfg.GoogleOAuthTokenFile,
		OAuthClientJSON: cfg.GoogleOAuthClientJSON,
		OAuthTokenJSON:  cfg.GoogleOAuthTokenJSON,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}
