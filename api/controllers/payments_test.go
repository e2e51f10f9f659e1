package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mateovillega/bytevault-backend/internal/payments"
	"github.com/mateovillega/bytevault-backend/pkg/db/models"
	"github.com/mateovillega/bytevault-backend/pkg/enums"
	pkgerrors "github.com/mateovillega/bytevault-backend/pkg/errors"
)

type stubPaymentService struct {
	lastInput   payments.CheckoutInput
	session     *payments.CheckoutSession
	checkoutErr error
	payment     *models.Payment
	lookupErr   error
}

func (s *stubPaymentService) CreateMonthlyCheckout(ctx context.Context, input payments.CheckoutInput) (*payments.CheckoutSession, error) {
	s.lastInput = input
	if s.checkoutErr != nil {
		return nil, s.checkoutErr
	}
	return s.session, nil
}

func (s *stubPaymentService) ConfirmPayment(ctx context.Context, sessionID string, status enums.PaymentStatus) (*models.Payment, error) {
	return nil, nil
}

func (s *stubPaymentService) Lookup(ctx context.Context, sessionID string) (*models.Payment, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	return s.payment, nil
}

func TestPaymentCheckout(t *testing.T) {
	svc := &stubPaymentService{
		session: &payments.CheckoutSession{
			SessionID: "cs_test_1",
			URL:       "https://checkout.stripe.com/pay/cs_test_1",
			Amount:    decimal.RequireFromString("12.34"),
			Currency:  "usd",
			Month:     3,
			Year:      2026,
		},
	}
	handler := PaymentCheckout(svc, nil)

	body := []byte(`{"month":3,"year":2026}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/payments/checkout", body, "user-1"))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.lastInput.UserID != "user-1" || svc.lastInput.Month != 3 || svc.lastInput.Year != 2026 {
		t.Fatalf("unexpected input %+v", svc.lastInput)
	}

	var envelope struct {
		Data payments.CheckoutSession `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.URL != "https://checkout.stripe.com/pay/cs_test_1" {
		t.Fatalf("unexpected url %q", envelope.Data.URL)
	}
}

func TestPaymentCheckoutRejectsBadMonth(t *testing.T) {
	handler := PaymentCheckout(&stubPaymentService{}, nil)

	body := []byte(`{"month":13,"year":2026}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/payments/checkout", body, "user-1"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPaymentCheckoutMapsDependencyFailure(t *testing.T) {
	svc := &stubPaymentService{checkoutErr: pkgerrors.New(pkgerrors.CodeDependency, "creating checkout session")}
	handler := PaymentCheckout(svc, nil)

	body := []byte(`{"month":3,"year":2026}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/payments/checkout", body, "user-1"))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func lookupRequest(t *testing.T, sessionID, userID string) *http.Request {
	t.Helper()
	req := authedRequest(http.MethodGet, "/api/v1/payments/"+sessionID, nil, userID)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("sessionId", sessionID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestPaymentLookup(t *testing.T) {
	svc := &stubPaymentService{
		payment: &models.Payment{
			ID:              uuid.New(),
			UserID:          "user-1",
			StripeSessionID: "cs_1",
			BillingMonth:    3,
			BillingYear:     2026,
			Amount:          decimal.RequireFromString("12.34"),
			Currency:        "usd",
			Status:          enums.PaymentStatusCompleted,
		},
	}
	handler := PaymentLookup(svc, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, lookupRequest(t, "cs_1", "user-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var envelope struct {
		Data paymentResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.SessionID != "cs_1" || envelope.Data.Status != enums.PaymentStatusCompleted {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestPaymentLookupHidesForeignPayments(t *testing.T) {
	svc := &stubPaymentService{
		payment: &models.Payment{UserID: "someone-else", StripeSessionID: "cs_1"},
	}
	handler := PaymentLookup(svc, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, lookupRequest(t, "cs_1", "user-1"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign payment, got %d", rec.Code)
	}
}

func TestPaymentLookupNotFound(t *testing.T) {
	svc := &stubPaymentService{lookupErr: pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")}
	handler := PaymentLookup(svc, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, lookupRequest(t, "cs_missing", "user-1"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
