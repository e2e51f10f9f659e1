package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mateovillega/bytevault-backend/api/routes"
	"github.com/mateovillega/bytevault-backend/internal/billing"
	"github.com/mateovillega/bytevault-backend/internal/payments"
	"github.com/mateovillega/bytevault-backend/internal/pricing"
	"github.com/mateovillega/bytevault-backend/internal/usage"
	stripewebhook "github.com/mateovillega/bytevault-backend/internal/webhooks/stripe"
	"github.com/mateovillega/bytevault-backend/pkg/config"
	"github.com/mateovillega/bytevault-backend/pkg/db"
	"github.com/mateovillega/bytevault-backend/pkg/logger"
	"github.com/mateovillega/bytevault-backend/pkg/metrics"
	"github.com/mateovillega/bytevault-backend/pkg/migrate"
	"github.com/mateovillega/bytevault-backend/pkg/redis"
	"github.com/mateovillega/bytevault-backend/pkg/stripe"
)

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

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	meter := metrics.NewMeteringMetrics(registry)

	rate, err := cfg.Billing.Rate()
	if err != nil {
		logg.Error(context.Background(), "invalid billing rate", err)
		os.Exit(1)
	}
	costModel, err := pricing.NewModel(rate)
	if err != nil {
		logg.Error(context.Background(), "failed to build cost model", err)
		os.Exit(1)
	}

	usageRepo := usage.NewRepository(dbClient.DB())
	usageService, err := usage.NewService(usageRepo, dbClient, costModel, logg, meter)
	if err != nil {
		logg.Error(context.Background(), "failed to create usage service", err)
		os.Exit(1)
	}

	billingService, err := billing.NewService(usageRepo, costModel, cfg.Billing.Currency)
	if err != nil {
		logg.Error(context.Background(), "failed to create billing service", err)
		os.Exit(1)
	}

	minCharge, err := cfg.Billing.MinimumCharge()
	if err != nil {
		logg.Error(context.Background(), "invalid minimum charge", err)
		os.Exit(1)
	}
	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:          payments.NewRepository(dbClient.DB()),
		Billing:       billingService,
		Stripe:        payments.NewStripeClient(stripeClient),
		Logger:        logg,
		Metrics:       meter,
		MinimumCharge: minCharge,
		Currency:      cfg.Billing.Currency,
		SuccessURL:    cfg.Stripe.SuccessURL,
		CancelURL:     cfg.Stripe.CancelURL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Payments: paymentService,
		Sessions: stripeClient,
		Logger:   logg,
		Metrics:  meter,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL, "stripe")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			usageService,
			billingService,
			paymentService,
			stripeClient,
			webhookService,
			webhookGuard,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
