package payments

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/mateovillega/bytevault-backend/internal/billing"
	"github.com/mateovillega/bytevault-backend/pkg/db/models"
	"github.com/mateovillega/bytevault-backend/pkg/enums"
	apperrors "github.com/mateovillega/bytevault-backend/pkg/errors"
	"github.com/mateovillega/bytevault-backend/pkg/logger"
	"github.com/mateovillega/bytevault-backend/pkg/metrics"
)

// Service turns a month's metered usage into a checkout session and settles
// the resulting payment record from webhook notifications.
type Service interface {
	CreateMonthlyCheckout(ctx context.Context, input CheckoutInput) (*CheckoutSession, error)
	ConfirmPayment(ctx context.Context, sessionID string, status enums.PaymentStatus) (*models.Payment, error)
	Lookup(ctx context.Context, sessionID string) (*models.Payment, error)
}

// CheckoutInput identifies the user and calendar month to bill.
type CheckoutInput struct {
	UserID string `json:"user_id"`
	Month  int    `json:"month"`
	Year   int    `json:"year"`
}

// CheckoutSession is the created session the caller redirects to.
type CheckoutSession struct {
	SessionID string          `json:"session_id"`
	URL       string          `json:"url"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Month     int             `json:"month"`
	Year      int             `json:"year"`
}

// ServiceParams bundles the payment service dependencies.
type ServiceParams struct {
	Repo          Repository
	Billing       billing.Service
	Stripe        StripeCheckoutClient
	Logger        *logger.Logger
	Metrics       *metrics.MeteringMetrics
	MinimumCharge decimal.Decimal
	Currency      string
	SuccessURL    string
	CancelURL     string
}

type service struct {
	repo       Repository
	billing    billing.Service
	stripe     StripeCheckoutClient
	logg       *logger.Logger
	metrics    *metrics.MeteringMetrics
	minCharge  decimal.Decimal
	currency   string
	successURL string
	cancelURL  string
}

// NewService wires the payment service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.Billing == nil {
		return nil, fmt.Errorf("billing service required")
	}
	if params.Stripe == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.MinimumCharge.IsNegative() {
		return nil, fmt.Errorf("minimum charge must be non-negative")
	}
	currency := params.Currency
	if currency == "" {
		currency = "usd"
	}
	return &service{
		repo:       params.Repo,
		billing:    params.Billing,
		stripe:     params.Stripe,
		logg:       params.Logger,
		metrics:    params.Metrics,
		minCharge:  params.MinimumCharge,
		currency:   currency,
		successURL: params.SuccessURL,
		cancelURL:  params.CancelURL,
	}, nil
}

// CreateMonthlyCheckout prices the requested month, applies the minimum
// charge floor and opens a checkout session. The payment row is written
// PENDING only after the processor accepted the session, so there are no
// orphan rows for failed session requests.
func (s *service) CreateMonthlyCheckout(ctx context.Context, input CheckoutInput) (*CheckoutSession, error) {
	if input.UserID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "user id is required")
	}

	amount, err := s.billing.MonthlyCost(ctx, input.UserID, input.Month, input.Year)
	if err != nil {
		return nil, err
	}
	if amount.LessThan(s.minCharge) {
		amount = s.minCharge
	}
	amount = amount.Round(2)

	cents := amount.Shift(2).Round(0).IntPart()
	if cents <= 0 {
		return nil, apperrors.New(apperrors.CodeValidation,
			fmt.Sprintf("checkout amount %s is below one cent", amount))
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id":       input.UserID,
		"billing_month": input.Month,
		"billing_year":  input.Year,
		"amount":        amount.StringFixed(2),
	})

	stripeSession, err := s.stripe.CreateSession(ctx, s.sessionParams(input, cents))
	if err != nil {
		s.metrics.IncCheckoutSession("failed")
		s.logg.Error(ctx, "checkout session request rejected", err)
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "creating checkout session")
	}

	payment := &models.Payment{
		UserID:          input.UserID,
		StripeSessionID: stripeSession.ID,
		BillingMonth:    input.Month,
		BillingYear:     input.Year,
		Amount:          amount,
		Currency:        s.currency,
		Status:          enums.PaymentStatusPending,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		s.metrics.IncCheckoutSession("failed")
		return nil, fmt.Errorf("persisting payment record: %w", err)
	}

	s.metrics.IncCheckoutSession("created")
	s.logg.Info(s.logg.WithSessionID(ctx, stripeSession.ID), "checkout session created")

	return &CheckoutSession{
		SessionID: stripeSession.ID,
		URL:       stripeSession.URL,
		Amount:    amount,
		Currency:  s.currency,
		Month:     input.Month,
		Year:      input.Year,
	}, nil
}

func (s *service) sessionParams(input CheckoutInput, cents int64) *stripe.CheckoutSessionParams {
	description := fmt.Sprintf("ByteVault storage for %s %d", time.Month(input.Month), input.Year)
	return &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.successURL),
		CancelURL:  stripe.String(s.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(s.currency),
					UnitAmount: stripe.Int64(cents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
				},
			},
		},
		Metadata: map[string]string{
			"user_id":       input.UserID,
			"billing_month": strconv.Itoa(input.Month),
			"billing_year":  strconv.Itoa(input.Year),
		},
	}
}

// ConfirmPayment settles the payment for a checkout session. Unknown sessions
// return (nil, nil) so webhook redeliveries for foreign or purged sessions
// stay harmless. Re-confirming the same terminal status is a no-op; a
// different terminal status is a conflict.
func (s *service) ConfirmPayment(ctx context.Context, sessionID string, status enums.PaymentStatus) (*models.Payment, error) {
	if sessionID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "session id is required")
	}
	if !status.IsTerminal() {
		return nil, apperrors.New(apperrors.CodeValidation,
			fmt.Sprintf("cannot confirm payment into non-terminal status %q", status))
	}

	payment, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, nil
	}
	if payment.Status == status {
		return payment, nil
	}
	if payment.Status.IsTerminal() {
		return nil, apperrors.New(apperrors.CodeConflict,
			fmt.Sprintf("payment already settled as %s", payment.Status))
	}

	moved, err := s.repo.MarkStatus(ctx, payment.ID, enums.PaymentStatusPending, status)
	if err != nil {
		return nil, err
	}
	if !moved {
		// Lost the race to another settlement; re-read and judge the winner.
		current, err := s.repo.FindBySessionID(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if current != nil && current.Status == status {
			return current, nil
		}
		settled := enums.PaymentStatus("unknown")
		if current != nil {
			settled = current.Status
		}
		return nil, apperrors.New(apperrors.CodeConflict,
			fmt.Sprintf("payment already settled as %s", settled))
	}

	payment.Status = status
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"session_id": sessionID,
		"status":     status,
	}), "payment settled")
	return payment, nil
}

func (s *service) Lookup(ctx context.Context, sessionID string) (*models.Payment, error) {
	if sessionID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "session id is required")
	}
	payment, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "payment not found")
	}
	return payment, nil
}
