package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/biddart/biddart-backend/internal/checkout"
	"github.com/biddart/biddart-backend/internal/cron"
	"github.com/biddart/biddart-backend/internal/fees"
	"github.com/biddart/biddart-backend/internal/payments"
	"github.com/biddart/biddart-backend/internal/reconciliation"
	"github.com/biddart/biddart-backend/pkg/config"
	"github.com/biddart/biddart-backend/pkg/db"
	"github.com/biddart/biddart-backend/pkg/instance"
	"github.com/biddart/biddart-backend/pkg/logger"
	"github.com/biddart/biddart-backend/pkg/metrics"
	"github.com/biddart/biddart-backend/pkg/migrate"
	"github.com/biddart/biddart-backend/pkg/outbox"
	"github.com/biddart/biddart-backend/pkg/redis"
)

const lockNameFormat = "cron-worker:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	auctionMetrics := metrics.NewAuctionMetrics(prometheus.DefaultRegisterer)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	gateway, err := payments.FromConfig(context.Background(), cfg.Square, logg)
	requireResource(logg, "payment gateway", err)

	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)
	reconciliationRepo := reconciliation.NewRepository(dbClient.DB())

	opener, err := reconciliation.NewOpener(reconciliation.OpenerParams{
		Tx:      dbClient,
		Repo:    reconciliationRepo,
		Outbox:  outboxService,
		Logger:  logg,
		Metrics: auctionMetrics,
	})
	requireResource(logg, "reconciliation opener", err)

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Tx:      dbClient,
		Repo:    checkout.NewRepository(dbClient.DB()),
		Outbox:  outboxService,
		Gateway: gateway,
		Cases:   opener,
		Logger:  logg,
		Metrics: auctionMetrics,
		GatewayFees: fees.GatewayFees{
			Percentage: cfg.Payments.ProcessingFeePercent,
			FixedFee:   decimal.New(cfg.Payments.ProcessingFeeFixedCents, -2),
		},
		Currency:      cfg.Payments.Currency,
		ChargeTimeout: cfg.Payments.ChargeTimeout,
		RefundTimeout: cfg.Payments.RefundTimeout,
	})
	requireResource(logg, "checkout service", err)

	reconciliationService, err := reconciliation.NewService(reconciliation.ServiceParams{
		Tx:       dbClient,
		Repo:     reconciliationRepo,
		Opener:   opener,
		Outbox:   outboxService,
		Checkout: checkoutService,
		Gateway:  gateway,
		Logger:   logg,
		Metrics:  auctionMetrics,
	})
	requireResource(logg, "reconciliation service", err)

	reconciliationJob, err := cron.NewReconciliationJob(cron.ReconciliationJobParams{
		Logger:    logg,
		Sweeper:   reconciliationService,
		BatchSize: cfg.Cron.ReconciliationBatchSize,
	})
	requireResource(logg, "reconciliation job", err)

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
		Retention:  cfg.Cron.OutboxRetention,
		BatchSize:  cfg.Cron.OutboxRetentionBatch,
	})
	requireResource(logg, "outbox retention job", err)

	registry := cron.NewRegistry(reconciliationJob)
	registry.RegisterEvery(retentionJob, cfg.Cron.OutboxRetentionEvery)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
		// leave headroom for the refresh before the next job
		JobTimeout: lock.TTL() * 4 / 5,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	metricsServer := metrics.NewServer(cfg.App.Port)
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockNameFormat, env)
}

func requireResource(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+resource, err)
	os.Exit(1)
}
