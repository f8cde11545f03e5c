package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"expensehub/internal/auth"
	"expensehub/internal/backend"
	"expensehub/internal/cache"
	"expensehub/internal/cli"
	"expensehub/internal/config"
	apphttp "expensehub/internal/http"
	"expensehub/internal/log"
	"expensehub/internal/services"
	"expensehub/internal/tracing"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	shutdownTracing, err := tracing.Init(context.Background(), "expensehub")
	if err != nil {
		logger.Error("Failed to initialize tracing", log.FieldError, err)
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	deps, err := backend.Build(context.Background(), backendCfg, logger)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}

	sessions, err := auth.NewSessionManager(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		logger.Error("Failed to initialize sessions", log.FieldError, err)
		os.Exit(1)
	}
	tokens := auth.NewTokenService(deps.Store, auth.DefaultOrganisation{
		Title: cfg.DefaultOrganisation,
		ID:    cfg.DefaultOrganisationID,
	})

	janitor := cache.NewJanitor()
	resolver := services.NewTitleResolver(deps.Store, 256, cfg.TitleCacheTTL)
	resolver.Register(janitor)

	expenseCfg := services.ExpenseServiceConfig{
		Store:         deps.Store,
		Tokens:        tokens,
		Resolver:      resolver,
		Sequencer:     deps.Sequencer,
		SequencerName: deps.SequencerName,
		BatchMode:     services.BatchMode(cfg.MobileBatchMode),
	}
	if deps.AMQP != nil {
		expenseCfg.Publisher = deps.AMQP
	}

	checks := make(map[string]apphttp.Checker, len(deps.Checks))
	for name, c := range deps.Checks {
		checks[name] = c
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Dependencies{
		Expenses: services.NewExpenseService(expenseCfg),
		Sync:     services.NewSyncService(deps.Store, tokens),
		Export:   services.NewExportService(deps.Store),
		Auth:     tokens,
		Sessions: sessions,
		Checks:   checks,
		Logger:   logger,
	}, apphttp.Options{
		RateLimitRPM:   cfg.RateLimitRPM,
		TrustedProxies: cfg.TrustedProxies,
		SecureCookie:   cfg.SecureCookie,
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", log.FieldError, err)
		_ = deps.Cleanup()
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		janitor.Wait()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Tracing shutdown error", log.FieldError, err)
		}
		if err := deps.Cleanup(); err != nil {
			logger.Warn("Backend cleanup error", log.FieldError, err)
		}
	})
	janitor.Start(ctx, 10*time.Minute)

	go func() {
		logger.Info("Starting expensehub server",
			"port", cfg.Port,
			"bill_sequence", deps.SequencerName,
			"mobile_batch_mode", cfg.MobileBatchMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
