package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mateovillega/bytevault-backend/api/middleware"
	"github.com/mateovillega/bytevault-backend/api/responses"
	"github.com/mateovillega/bytevault-backend/api/validators"
	"github.com/mateovillega/bytevault-backend/internal/payments"
	"github.com/mateovillega/bytevault-backend/pkg/db/models"
	"github.com/mateovillega/bytevault-backend/pkg/enums"
	pkgerrors "github.com/mateovillega/bytevault-backend/pkg/errors"
	"github.com/mateovillega/bytevault-backend/pkg/logger"
)

type checkoutRequest struct {
	Month int `json:"month" validate:"required,min=1,max=12"`
	Year  int `json:"year" validate:"required,min=2000,max=9999"`
}

type paymentResponse struct {
	ID           uuid.UUID           `json:"id"`
	UserID       string              `json:"user_id"`
	SessionID    string              `json:"session_id"`
	BillingMonth int                 `json:"billing_month"`
	BillingYear  int                 `json:"billing_year"`
	Amount       decimal.Decimal     `json:"amount"`
	Currency     string              `json:"currency"`
	Status       enums.PaymentStatus `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func paymentResponseFromModel(m *models.Payment) paymentResponse {
	return paymentResponse{
		ID:           m.ID,
		UserID:       m.UserID,
		SessionID:    m.StripeSessionID,
		BillingMonth: m.BillingMonth,
		BillingYear:  m.BillingYear,
		Amount:       m.Amount,
		Currency:     m.Currency,
		Status:       m.Status,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// PaymentCheckout opens a checkout session for the requested billing month.
func PaymentCheckout(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.CreateMonthlyCheckout(r.Context(), payments.CheckoutInput{
			UserID: userID,
			Month:  payload.Month,
			Year:   payload.Year,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

// PaymentLookup returns the payment record for a checkout session.
func PaymentLookup(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		sessionID := strings.TrimSpace(chi.URLParam(r, "sessionId"))
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session id is required"))
			return
		}

		payment, err := svc.Lookup(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payment.UserID != userID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found"))
			return
		}

		responses.WriteSuccess(w, paymentResponseFromModel(payment))
	}
}
