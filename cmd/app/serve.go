package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"companion-billing/internal/config"
	"companion-billing/internal/domain/ports/adapter"
	"companion-billing/internal/infra/api"
	"companion-billing/internal/infra/api/apiv1"
	pg "companion-billing/internal/infra/db/postgres"
	"companion-billing/internal/infra/kafka"
	"companion-billing/internal/infra/logging"
	"companion-billing/internal/infra/metrics"
	"companion-billing/internal/infra/payment"
	red "companion-billing/internal/infra/redis"
	"companion-billing/internal/infra/sched"
	"companion-billing/internal/infra/web"
	"companion-billing/internal/infra/worker"
	"companion-billing/internal/usecase"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook, user and admin HTTP servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(cfgPath, devMode)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	if cfg.Database.MigrateOnBoot {
		v, err := pg.NewMigrator(cfg.Database.URL, cfg.Database.MigrationsTable).Up(ctx)
		if err != nil {
			return err
		}
		logger.Info().Int64("version", v).Msg("migrations applied")
	}
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	limiter := red.NewRateLimiter(redisClient, cfg.Checkout.RateLimit, cfg.Checkout.RateWindow)

	// ---- Repositories ----
	txm := pg.NewTxManager(pool)
	userRepo := pg.NewPostgresUserRepo(pool)
	planRepo := pg.NewPlanRepoCacheDecorator(pg.NewPostgresPlanRepo(pool), redisClient, cfg.Redis.TTL, logger)
	subRepo := pg.NewSubscriptionRepo(pool)
	historyRepo := pg.NewSubscriptionHistoryRepo(pool)
	promoRepo := pg.NewPostgresPromoRepo(pool)
	ledgerRepo := pg.NewPostgresCoinTransactionRepo(pool)
	walletRepo := pg.NewPostgresWalletRepo(pool)
	eventRepo := pg.NewPostgresWebhookEventRepo(pool)
	settingRepo := pg.NewPostgresAppSettingRepo(pool)

	// ---- Adapters ----
	gateway, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}
	publisher := kafka.NewAsyncPublisher(context.Background(), kafka.NewPublisher(cfg.Kafka, logger), worker.NewPool("ledger_publish", 2, 256, logger), logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing ledger publisher")
		}
	}()

	// ---- Use cases ----
	settingsUC := usecase.NewSettingsUseCase(settingRepo, logger)
	if _, err := settingsUC.Reload(ctx); err != nil {
		logger.Error().Err(err).Msg("initial settings load failed; checkout stays unavailable until reload")
	}
	reconcileUC := usecase.NewReconcileUseCase(usecase.ReconcileDeps{
		Provider:    gateway.Name(),
		Tx:          txm,
		Locker:      txm,
		Users:       userRepo,
		Subs:        subRepo,
		History:     historyRepo,
		Plans:       planRepo,
		Promos:      promoRepo,
		Redemptions: promoRepo,
		Ledger:      ledgerRepo,
		Wallets:     walletRepo,
		Events:      eventRepo,
		Publisher:   publisher,
	}, logger)
	checkoutUC := usecase.NewCheckoutUseCase(userRepo, planRepo, promoRepo, promoRepo, settingsUC, gateway, limiter, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, historyRepo, logger)
	walletUC := usecase.NewWalletUseCase(txm, userRepo, walletRepo, ledgerRepo, publisher, logger)
	catalogUC := usecase.NewCatalogUseCase(planRepo, promoRepo, logger)

	// ---- Public HTTP: webhook + user API ----
	decoder := payment.NewEventDecoder(cfg.Stripe.WebhookSecret, cfg.Stripe.WebhookTolerance, gateway, logger)
	publicRouter := api.NewRouter(logger, cfg.HTTP.RequestTimeout)
	apiSrv := api.NewServer(decoder, reconcileUC, cfg.HTTP.WebhookPath, logger)
	apiSrv.AddHealthCheck("postgres", pool.Ping)
	apiSrv.AddHealthCheck("redis", redisClient.Ping)
	apiSrv.Register(publicRouter)
	auth := api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, logger)
	apiv1.RegisterAPIV1(publicRouter, apiv1.NewServer(checkoutUC, subUC, walletUC, catalogUC, logger), auth.Middleware)

	// ---- Admin HTTP ----
	adminRouter := api.NewRouter(logger, cfg.HTTP.RequestTimeout)
	web.NewServer(settingsUC, walletUC, subUC, catalogUC, cfg.Admin.APIKey, logger).RegisterRoutes(adminRouter)

	servers := []*http.Server{
		{Addr: fmt.Sprintf(":%d", cfg.HTTP.Port), Handler: publicRouter, ReadHeaderTimeout: 5 * time.Second},
		{Addr: fmt.Sprintf(":%d", cfg.Admin.Port), Handler: adminRouter, ReadHeaderTimeout: 5 * time.Second},
	}
	errc := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info().Str("addr", srv.Addr).Msg("http server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("http server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	// ---- Wallet auditor ----
	auditor := sched.NewWalletAuditor(cfg.Scheduler.WalletAuditInterval, walletUC, logger)
	go func() { _ = auditor.Run(ctx) }()

	// ---- Graceful shutdown ----
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case runErr = <-errc:
		logger.Error().Err(runErr).Msg("server failed; shutting down")
		stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Str("addr", srv.Addr).Msg("http shutdown")
		}
	}
	return runErr
}

// newGateway returns the Stripe gateway, or the in-memory one in dev mode
// when no api key is configured.
func newGateway(cfg *config.Config, logger *zerolog.Logger) (adapter.BillingGateway, error) {
	if cfg.Stripe.APIKey == "" {
		if !cfg.Runtime.Dev {
			return nil, errors.New("stripe.api_key is required outside dev mode")
		}
		logger.Warn().Msg("stripe.api_key not set; using noop billing gateway")
		return payment.NewNoopGateway(), nil
	}
	return payment.NewStripeGateway(cfg.Stripe, logger)
}
