package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/biddart/biddart-backend/api/routes"
	"github.com/biddart/biddart-backend/internal/bidders"
	"github.com/biddart/biddart-backend/internal/bids"
	"github.com/biddart/biddart-backend/internal/checkout"
	"github.com/biddart/biddart-backend/internal/events"
	"github.com/biddart/biddart-backend/internal/items"
	"github.com/biddart/biddart-backend/internal/fees"
	"github.com/biddart/biddart-backend/internal/notifications"
	"github.com/biddart/biddart-backend/internal/payments"
	"github.com/biddart/biddart-backend/internal/reconciliation"
	squarewebhook "github.com/biddart/biddart-backend/internal/webhooks/square"
	"github.com/biddart/biddart-backend/pkg/config"
	"github.com/biddart/biddart-backend/pkg/db"
	"github.com/biddart/biddart-backend/pkg/logger"
	"github.com/biddart/biddart-backend/pkg/metrics"
	"github.com/biddart/biddart-backend/pkg/migrate"
	"github.com/biddart/biddart-backend/pkg/outbox"
	"github.com/biddart/biddart-backend/pkg/outbox/idempotency"
	"github.com/biddart/biddart-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	gateway, err := payments.FromConfig(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to configure payment gateway", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	auctionMetrics := metrics.NewAuctionMetrics(registry)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	eventService, err := events.NewService(events.ServiceParams{
		Repo:          events.NewRepository(dbClient.DB()),
		Logger:        logg,
		MaxPercentage: cfg.Fees.MaxPercentage,
	})
	exitOnErr(logg, "event service", err)

	itemService, err := items.NewService(items.ServiceParams{
		Tx:     dbClient,
		Repo:   items.NewRepository(dbClient.DB()),
		Logger: logg,
	})
	exitOnErr(logg, "item service", err)

	bidderService, err := bidders.NewService(bidders.ServiceParams{
		Tx:     dbClient,
		Repo:   bidders.NewRepository(dbClient.DB()),
		Outbox: outboxService,
		Logger: logg,
	})
	exitOnErr(logg, "bidder service", err)

	bidService, err := bids.NewService(bids.ServiceParams{
		Tx:               dbClient,
		Repo:             bids.NewRepository(dbClient.DB()),
		Outbox:           outboxService,
		Logger:           logg,
		Metrics:          auctionMetrics,
		AllowBulkMarkPay: cfg.FeatureFlags.AllowBulkMarkPay,
	})
	exitOnErr(logg, "bid service", err)

	reconciliationRepo := reconciliation.NewRepository(dbClient.DB())
	opener, err := reconciliation.NewOpener(reconciliation.OpenerParams{
		Tx:      dbClient,
		Repo:    reconciliationRepo,
		Outbox:  outboxService,
		Logger:  logg,
		Metrics: auctionMetrics,
	})
	exitOnErr(logg, "reconciliation opener", err)

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
	exitOnErr(logg, "checkout service", err)

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
	exitOnErr(logg, "reconciliation service", err)

	notificationService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	exitOnErr(logg, "notification service", err)

	squareWebhookService, err := squarewebhook.NewService(squarewebhook.ServiceParams{
		Reporter: reconciliationService,
		Logger:   logg,
	})
	exitOnErr(logg, "square webhook service", err)

	squareWebhookClaims, err := idempotency.NewManager(redisClient, cfg.Eventing.WebhookDedupeTTL)
	exitOnErr(logg, "square webhook claims", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("HOSTNAME")
	if id == "" {
		id = "local"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			bidderService,
			eventService,
			itemService,
			bidService,
			checkoutService,
			reconciliationService,
			notificationService,
			squareWebhookService,
			squareWebhookClaims,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}

func exitOnErr(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+resource, err)
	os.Exit(1)
}
