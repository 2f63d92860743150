package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"famledger/internal/auth"
	"famledger/internal/cli"
	apphttp "famledger/internal/http"
	"famledger/internal/log"
	"famledger/internal/middleware/ratelimit"
	"famledger/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentApp)

	ctx := context.Background()
	store := cli.InitBackend(ctx, logger, cfg)

	ledgerSvc := services.NewLedgerService(store.Backend, services.LedgerServiceConfig{
		CategoryCacheSize: cfg.CategoryCacheSize,
		CategoryCacheTTL:  cfg.CategoryCacheTTL,
	})

	srv := apphttp.NewServer(apphttp.Options{
		Addr:   ":" + cfg.Port,
		Ledger: ledgerSvc,
		Tokens: auth.NewTokens(cfg.JWTSecret, cfg.JWTIssuer),
		Outbox: store.Backend,
		Logger: logger,
		RateLimit: ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMinute,
		},
	})

	shutdownCtx, done := cli.GracefulShutdown(ctx, logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		// Closing the service also closes the backend store.
		if err := ledgerSvc.Close(); err != nil {
			logger.Error("Ledger service close error", log.FieldError, err)
		}
	})

	logger.Info("Starting famledger server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		log.FieldOperation, log.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
