package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v84"

	"github.com/mateovillega/bytevault-backend/internal/payments"
	"github.com/mateovillega/bytevault-backend/pkg/enums"
	pkgerrors "github.com/mateovillega/bytevault-backend/pkg/errors"
	"github.com/mateovillega/bytevault-backend/pkg/logger"
	"github.com/mateovillega/bytevault-backend/pkg/metrics"
)

// SessionResolver maps a payment intent to the checkout session that opened
// it, so intent-level events can be correlated to a payment record.
type SessionResolver interface {
	SessionIDForPaymentIntent(ctx context.Context, paymentIntentID string) (string, error)
}

type ServiceParams struct {
	Payments payments.Service
	Sessions SessionResolver
	Logger   *logger.Logger
	Metrics  *metrics.MeteringMetrics
}

// Service routes verified Stripe events into payment settlement. Settlement
// conflicts from redelivered or out-of-order events are logged and absorbed;
// only infrastructure failures propagate so the processor retries them.
type Service struct {
	payments payments.Service
	sessions SessionResolver
	logg     *logger.Logger
	metrics  *metrics.MeteringMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		payments: params.Payments,
		sessions: params.Sessions,
		logg:     params.Logger,
		metrics:  params.Metrics,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	s.metrics.IncWebhookEvent(string(event.Type))
	ctx = s.logg.WithField(ctx, "event_id", event.ID)

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return s.settleSession(ctx, event, enums.PaymentStatusCompleted)
	case stripe.EventTypeCheckoutSessionExpired:
		return s.settleSession(ctx, event, enums.PaymentStatusCancelled)
	case stripe.EventTypePaymentIntentSucceeded:
		s.logg.Info(ctx, fmt.Sprintf("payment intent succeeded: %s", event.GetObjectValue("id")))
		return nil
	case stripe.EventTypePaymentIntentPaymentFailed:
		return s.failPaymentIntent(ctx, event)
	default:
		s.logg.Info(ctx, fmt.Sprintf("ignoring unhandled event type %s", event.Type))
		return nil
	}
}

func (s *Service) settleSession(ctx context.Context, event *stripe.Event, status enums.PaymentStatus) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
	}
	if session.ID == "" {
		s.logg.Warn(ctx, "checkout session event without session id")
		return nil
	}

	ctx = s.logg.WithSessionID(ctx, session.ID)

	payment, err := s.payments.ConfirmPayment(ctx, session.ID, status)
	if pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		s.logg.Warn(ctx, fmt.Sprintf("settlement conflict absorbed: %v", err))
		return nil
	}
	if err != nil {
		return err
	}
	if payment == nil {
		s.logg.Warn(ctx, "no payment record for checkout session, ignoring")
		return nil
	}

	s.logg.Info(ctx, fmt.Sprintf("payment settled as %s", status))
	return nil
}

// failPaymentIntent marks the payment FAILED when the failed intent can be
// correlated back to a checkout session. Intents outside any session, and
// deployments without a session resolver, are logged and ignored.
func (s *Service) failPaymentIntent(ctx context.Context, event *stripe.Event) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
	}
	if intent.ID == "" {
		s.logg.Warn(ctx, "payment intent event without intent id")
		return nil
	}

	ctx = s.logg.WithField(ctx, "payment_intent_id", intent.ID)
	if s.sessions == nil {
		s.logg.Warn(ctx, "payment intent failed but no session resolver configured")
		return nil
	}

	sessionID, err := s.sessions.SessionIDForPaymentIntent(ctx, intent.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolving checkout session for payment intent")
	}
	if sessionID == "" {
		s.logg.Info(ctx, "payment intent failed outside any checkout session, ignoring")
		return nil
	}

	ctx = s.logg.WithSessionID(ctx, sessionID)

	payment, err := s.payments.ConfirmPayment(ctx, sessionID, enums.PaymentStatusFailed)
	if pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		s.logg.Warn(ctx, fmt.Sprintf("settlement conflict absorbed: %v", err))
		return nil
	}
	if err != nil {
		return err
	}
	if payment == nil {
		s.logg.Warn(ctx, "no payment record for checkout session, ignoring")
		return nil
	}

	s.logg.Info(ctx, "payment marked failed from payment intent")
	return nil
}
