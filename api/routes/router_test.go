package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/mateovillega/bytevault-backend/internal/billing"
	"github.com/mateovillega/bytevault-backend/internal/payments"
	"github.com/mateovillega/bytevault-backend/internal/usage"
	pkgAuth "github.com/mateovillega/bytevault-backend/pkg/auth"
	"github.com/mateovillega/bytevault-backend/pkg/config"
	"github.com/mateovillega/bytevault-backend/pkg/db/models"
	"github.com/mateovillega/bytevault-backend/pkg/enums"
	"github.com/mateovillega/bytevault-backend/pkg/pagination"
)

type routerUsageStub struct{}

func (routerUsageStub) RecordStorageChange(ctx context.Context, input usage.RecordStorageChangeInput) (*usage.StorageTransition, error) {
	return &usage.StorageTransition{
		Change: &models.StorageChangeRecord{UserID: input.UserID},
		Opened: &models.UsageInterval{UserID: input.UserID, Status: enums.IntervalStatusActive},
	}, nil
}

func (routerUsageStub) CurrentStorage(ctx context.Context, userID string) (*usage.StorageSnapshot, error) {
	return &usage.StorageSnapshot{}, nil
}

func (routerUsageStub) CurrentStorageBytes(ctx context.Context, userID string) (int64, error) {
	return 0, nil
}

func (routerUsageStub) LatestChange(ctx context.Context, userID string) (*models.StorageChangeRecord, error) {
	return &models.StorageChangeRecord{UserID: userID}, nil
}

func (routerUsageStub) ChangeHistory(ctx context.Context, userID string, params pagination.Params) ([]models.StorageChangeRecord, string, error) {
	return nil, "", nil
}

func (routerUsageStub) IntervalHistory(ctx context.Context, userID string, params pagination.Params) ([]models.UsageInterval, string, error) {
	return nil, "", nil
}

type routerBillingStub struct{}

func (routerBillingStub) TotalCostForPeriod(ctx context.Context, userID string, start, end time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (routerBillingStub) MonthlyCost(ctx context.Context, userID string, month, year int) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (routerBillingStub) DailyCost(ctx context.Context, userID string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (routerBillingStub) CurrentStorageBytes(ctx context.Context, userID string) (int64, error) {
	return 0, nil
}

func (routerBillingStub) Statistics(ctx context.Context, userID string, start, end time.Time) (*billing.PeriodStatistics, error) {
	return &billing.PeriodStatistics{UserID: userID}, nil
}

func (routerBillingStub) MonthlyBill(ctx context.Context, userID string, month, year int) (*billing.MonthlyBill, error) {
	return &billing.MonthlyBill{UserID: userID, Month: month, Year: year}, nil
}

type routerPaymentStub struct{}

func (routerPaymentStub) CreateMonthlyCheckout(ctx context.Context, input payments.CheckoutInput) (*payments.CheckoutSession, error) {
	return &payments.CheckoutSession{SessionID: "cs_1"}, nil
}

func (routerPaymentStub) ConfirmPayment(ctx context.Context, sessionID string, status enums.PaymentStatus) (*models.Payment, error) {
	return nil, nil
}

func (routerPaymentStub) Lookup(ctx context.Context, sessionID string) (*models.Payment, error) {
	return &models.Payment{StripeSessionID: sessionID}, nil
}

func newTestRouter(t *testing.T) (http.Handler, *config.Config) {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Env = "dev"
	cfg.JWT = config.JWTConfig{Secret: "secret", Issuer: "bytevault"}

	registry := prometheus.NewRegistry()
	handler := NewRouter(cfg, nil, nil, nil, registry,
		routerUsageStub{}, routerBillingStub{}, routerPaymentStub{}, nil, nil, nil)
	return handler, cfg
}

func TestRouterPublicEndpoints(t *testing.T) {
	handler, _ := newTestRouter(t)

	for _, target := range []string{"/health/live", "/api/public/ping", "/metrics"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d (%s)", target, rec.Code, rec.Body.String())
		}
	}
}

func TestRouterHealthLiveSetsEnvHeader(t *testing.T) {
	handler, cfg := newTestRouter(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if got := rec.Header().Get("X-ByteVault-Env"); got != cfg.App.Env {
		t.Fatalf("expected env header %q, got %q", cfg.App.Env, got)
	}
}

func TestRouterProtectedEndpointsRequireAuth(t *testing.T) {
	handler, _ := newTestRouter(t)

	targets := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/ping"},
		{http.MethodPost, "/api/v1/usage/events"},
		{http.MethodGet, "/api/v1/usage/current-storage"},
		{http.MethodGet, "/api/v1/billing/monthly-bill"},
		{http.MethodPost, "/api/v1/payments/checkout"},
		{http.MethodGet, "/api/v1/payments/cs_1"},
	}
	for _, target := range targets {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(target.method, target.path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %s %s, got %d", target.method, target.path, rec.Code)
		}
	}
}

func TestRouterAcceptsValidToken(t *testing.T) {
	handler, cfg := newTestRouter(t)

	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), uuid.NewString(), 10*time.Minute)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	handler, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
