package main

import (
	"context"
	"os"
	"time"

	"expensehub/internal/backend"
	"expensehub/internal/cli"
	"expensehub/internal/config"
	"expensehub/internal/log"
	"expensehub/internal/services"
	gsheet "expensehub/internal/sheets/google"
	"expensehub/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting export-worker")

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateExportWorker)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	backendCfg.RequireAMQP = true

	deps, err := backend.Build(context.Background(), backendCfg, logger)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}

	sheet, err := gsheet.New(context.Background(), gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		_ = deps.Cleanup()
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName)

	exportWorker := worker.NewExportWorker(services.NewExportService(deps.Store), sheet, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := deps.Cleanup(); err != nil {
			logger.Warn("Backend cleanup error", log.FieldError, err)
		}
	})

	if err := exportWorker.Run(ctx, deps.AMQP); err != nil {
		logger.Error("Export worker failed", log.FieldError, err)
		_ = deps.Cleanup()
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
}
