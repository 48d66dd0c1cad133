package main

import (
	"context"
	"os"
	"time"

	"bilancio/internal/backend"
	"bilancio/internal/cli"
	"bilancio/internal/log"
	"bilancio/internal/services"
	"bilancio/internal/telegram"
	"bilancio/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentWorker)
	logger.Info("Starting bilancio-worker", log.FieldOperation, log.OpStartup)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	backendCfg.RequireBus = true

	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	}()

	var opts []worker.Option
	if cfg.SheetsEnabled() {
		opts = append(opts, worker.WithMirror(worker.NewMirror(res.Store, res.Sheet)))
	} else {
		logger.Info("Google Sheets mirror disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	if cfg.TelegramEnabled() {
		dashboard := services.NewDashboardService(res.Store, nil, cfg.ProjectionMaxMonths)
		transactions := services.NewTransactionService(res.Store, res.Bus, dashboard)
		telegramService := services.NewTelegramService(res.Store, transactions, dashboard)

		reporter, err := worker.NewReporter(telegramService, res.Sender, cfg.ReportSchedule)
		if err != nil {
			logger.Error("Invalid report schedule", log.FieldError, err)
			os.Exit(1)
		}
		opts = append(opts,
			worker.WithBot(telegram.NewBot(res.Sender, telegramService)),
			worker.WithReporter(reporter))
	} else {
		logger.Info("Telegram disabled - no TELEGRAM_BOT_TOKEN provided")
	}

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, nil)

	w := worker.New(res.Bus, logger, opts...)
	if err := w.Run(ctx); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}

	<-done
	logger.Info("Worker shutdown complete")
}
