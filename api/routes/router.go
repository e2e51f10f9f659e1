package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mateovillega/bytevault-backend/api/controllers"
	webhookcontrollers "github.com/mateovillega/bytevault-backend/api/controllers/webhooks"
	"github.com/mateovillega/bytevault-backend/api/middleware"
	"github.com/mateovillega/bytevault-backend/internal/billing"
	"github.com/mateovillega/bytevault-backend/internal/payments"
	"github.com/mateovillega/bytevault-backend/internal/usage"
	stripewebhook "github.com/mateovillega/bytevault-backend/internal/webhooks/stripe"
	"github.com/mateovillega/bytevault-backend/pkg/config"
	"github.com/mateovillega/bytevault-backend/pkg/db"
	"github.com/mateovillega/bytevault-backend/pkg/logger"
	"github.com/mateovillega/bytevault-backend/pkg/redis"
	"github.com/mateovillega/bytevault-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	usageService usage.Service,
	billingService billing.Service,
	paymentService payments.Service,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg, cfg.Webhook.VerifyTimeout))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/usage", func(r chi.Router) {
			r.Post("/events", controllers.UsageRecordChange(usageService, logg))
			r.Get("/current-storage", controllers.UsageCurrentStorage(usageService, logg))
			r.Get("/latest", controllers.UsageLatestChange(usageService, logg))
			r.Get("/storage-history", controllers.UsageStorageHistory(usageService, logg))
			r.Get("/usage-history", controllers.UsageIntervalHistory(usageService, logg))
		})

		r.Route("/billing", func(r chi.Router) {
			r.Get("/monthly-bill", controllers.BillingMonthlyBill(billingService, logg))
			r.Get("/daily-cost", controllers.BillingDailyCost(billingService, logg))
			r.Get("/statistics", controllers.BillingStatistics(billingService, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/checkout", controllers.PaymentCheckout(paymentService, logg))
			r.Get("/{sessionId}", controllers.PaymentLookup(paymentService, logg))
		})
	})

	return r
}
