package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"bilancio/internal/auth"
	"bilancio/internal/backend"
	"bilancio/internal/cache"
	"bilancio/internal/cli"
	"bilancio/internal/core"
	apphttp "bilancio/internal/http"
	"bilancio/internal/log"
	"bilancio/internal/middleware/ratelimit"
	"bilancio/internal/middleware/security"
	"bilancio/internal/services"
	"bilancio/internal/telegram"
)

const (
	summaryCacheSize = 1000
	summaryCacheTTL  = 5 * time.Minute
	shutdownTimeout  = 30 * time.Second
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentApp)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "driver", cfg.DBDriver)
		os.Exit(1)
	}

	summaries := cache.NewLRUCache[core.MonthSummary](summaryCacheSize, summaryCacheTTL)
	caches := cache.NewManager()
	caches.Register(summaries)
	caches.StartCleanup(summaryCacheTTL)

	// A nil *amqp.Client must not become a non-nil Publisher.
	var publisher services.Publisher
	if res.Bus != nil {
		publisher = res.Bus
	}

	clientIP, err := security.NewClientIP()
	if err != nil {
		logger.Error("Invalid trusted proxy configuration", log.FieldError, err)
		os.Exit(1)
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	dashboard := services.NewDashboardService(res.Store, summaries, cfg.ProjectionMaxMonths)
	transactions := services.NewTransactionService(res.Store, publisher, dashboard)
	telegramService := services.NewTelegramService(res.Store, transactions, dashboard)

	deps := apphttp.Deps{
		Accounts:       services.NewAccountService(res.Store, tokens, 0),
		Catalog:        services.NewCatalogService(res.Store, dashboard),
		Transactions:   transactions,
		Dashboard:      dashboard,
		Goals:          services.NewGoalService(res.Store),
		Telegram:       telegramService,
		Tokens:         tokens,
		DB:             res.Store,
		Publisher:      publisher,
		WebhookSecret:  cfg.TelegramWebhookSecret,
		Logger:         logger,
		ClientIP:       clientIP,
		RateLimit:      ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute},
		AllowedOrigins: cfg.AllowedOrigins,
	}
	if res.Sender != nil {
		deps.Bot = telegram.NewBot(res.Sender, telegramService)
	}

	srv := apphttp.NewServer(":"+cfg.Port, deps)
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		caches.Stop()
		m := srv.Metrics()
		logger.Info("Request totals",
			"requests", m.TotalRequests,
			"server_errors", m.ServerErrors,
			"rate_limited", m.RateLimited)
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	if res.Bus != nil {
		// quick expenses recorded by the worker arrive only through the bus
		go func() {
			err := res.Bus.Subscribe(log.NewContext(ctx, logger), dashboard.HandleEvent)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Summary cache subscription stopped", log.FieldError, err)
			}
		}()
	}

	logger.Info("Starting bilancio server",
		"port", cfg.Port,
		"driver", cfg.DBDriver,
		"events", res.Bus != nil,
		"telegram", cfg.TelegramEnabled(),
		"sheets", cfg.SheetsEnabled(),
		log.FieldOperation, log.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
