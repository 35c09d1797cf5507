package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/biddart/biddart-backend/api/controllers"
	webhookcontrollers "github.com/biddart/biddart-backend/api/controllers/webhooks"
	"github.com/biddart/biddart-backend/api/middleware"
	"github.com/biddart/biddart-backend/internal/bidders"
	"github.com/biddart/biddart-backend/internal/bids"
	checkoutsvc "github.com/biddart/biddart-backend/internal/checkout"
	"github.com/biddart/biddart-backend/internal/events"
	"github.com/biddart/biddart-backend/internal/items"
	"github.com/biddart/biddart-backend/internal/notifications"
	"github.com/biddart/biddart-backend/internal/reconciliation"
	"github.com/biddart/biddart-backend/pkg/config"
	"github.com/biddart/biddart-backend/pkg/logger"
	"github.com/biddart/biddart-backend/pkg/redis"
)

// redisStore is the slice of the Redis client the HTTP surface relies on.
type redisStore interface {
	redis.IdempotencyStore
	CompareAndSwap(ctx context.Context, key, current, next string, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient redisStore,
	metricsHandler http.Handler,
	bidderService bidders.Service,
	eventService events.Service,
	itemService items.Service,
	bidService bids.Service,
	checkoutService checkoutsvc.Service,
	reconciliationService reconciliation.Service,
	notificationService notifications.Service,
	squareWebhookService webhookcontrollers.SquareWebhookService,
	squareWebhookClaims webhookcontrollers.SquareDeliveryClaims,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.API.CORSOrigins),
	)

	bidPolicy := middleware.NewRateLimitPolicy(
		"bids",
		cfg.API.BidRateLimitWindow,
		cfg.API.BidRateLimitIP,
		cfg.API.BidRateLimitStaff,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": redisClient,
		}))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	if cfg.FeatureFlags.SquareWebhooks {
		signing := webhookcontrollers.SquareSigning{
			SignatureKey:    cfg.Square.WebhookSecret,
			NotificationURL: cfg.Square.WebhookURL,
		}
		r.Post("/webhooks/square", webhookcontrollers.SquareWebhook(squareWebhookService, signing, squareWebhookClaims, logg))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/events/{eventID}", func(r chi.Router) {
			r.Get("/bidders", controllers.BidderList(bidderService, logg))
			r.Post("/bidders", controllers.BidderRegister(bidderService, logg))
			r.Put("/fees", controllers.EventUpdateFees(eventService, logg))
			r.Get("/bids/stats", controllers.BidEventStats(bidService, logg))
			r.Get("/bids/recent", controllers.BidRecent(bidService, logg))
			r.Get("/checkout/sessions", controllers.CheckoutList(checkoutService, logg))

			r.Route("/items", func(r chi.Router) {
				r.Get("/", controllers.ItemList(itemService, logg))
				r.Post("/", controllers.ItemCreate(itemService, logg))
				r.Get("/{itemID}", controllers.ItemGet(itemService, logg))
				r.Put("/{itemID}", controllers.ItemUpdate(itemService, logg))
				r.Post("/{itemID}/toggle-active", controllers.ItemToggleActive(itemService, logg))
			})
		})

		r.Get("/bidders/{bidderID}/checkout/quote", controllers.CheckoutQuote(checkoutService, logg))

		r.Route("/items/{itemID}", func(r chi.Router) {
			r.Get("/next-minimum-bid", controllers.BidNextMinimum(bidService, logg))
			r.Get("/bids", controllers.BidListForItem(bidService, logg))
			r.With(middleware.RateLimit(bidPolicy, redisClient, logg)).Post("/bids", controllers.BidPlace(bidService, logg))
		})

		r.Route("/bids", func(r chi.Router) {
			r.Post("/bulk", controllers.BidBulk(bidService, logg))
			r.Delete("/{bidID}", controllers.BidWithdraw(bidService, logg))
		})

		r.Route("/checkout/sessions", func(r chi.Router) {
			r.Post("/", controllers.CheckoutCreate(checkoutService, logg))
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", controllers.CheckoutGet(checkoutService, logg))
				r.Post("/complete", controllers.CheckoutComplete(checkoutService, logg))
				r.Post("/charge", controllers.CheckoutCharge(checkoutService, logg))
				r.Post("/refund", controllers.CheckoutRefund(checkoutService, logg))
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.NotificationList(notificationService, logg))
			r.Post("/read-all", controllers.NotificationMarkAllRead(notificationService, logg))
			r.Post("/{notificationID}/read", controllers.NotificationMarkRead(notificationService, logg))
		})

		r.Route("/reconciliation/cases", func(r chi.Router) {
			r.Get("/", controllers.ReconciliationList(reconciliationService, logg))
			r.Get("/{caseID}", controllers.ReconciliationGet(reconciliationService, logg))
			r.Post("/{caseID}/resolve", controllers.ReconciliationResolve(reconciliationService, logg))
		})
	})

	return r
}
