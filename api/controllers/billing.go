package controllers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mateovillega/bytevault-backend/api/middleware"
	"github.com/mateovillega/bytevault-backend/api/responses"
	"github.com/mateovillega/bytevault-backend/api/validators"
	"github.com/mateovillega/bytevault-backend/internal/billing"
	pkgerrors "github.com/mateovillega/bytevault-backend/pkg/errors"
	"github.com/mateovillega/bytevault-backend/pkg/logger"
)

type dailyCostResponse struct {
	UserID    string          `json:"user_id"`
	DailyCost decimal.Decimal `json:"daily_cost"`
}

// BillingMonthlyBill returns the invoice view for the requested month. Month
// and year are optional and default to the current UTC calendar month.
func BillingMonthlyBill(svc billing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		month, year, err := validators.ParseQueryMonthYear(r, time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bill, err := svc.MonthlyBill(r.Context(), userID, month, year)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, bill)
	}
}

// BillingDailyCost returns the accrued cost over the trailing 24 hours.
func BillingDailyCost(svc billing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		cost, err := svc.DailyCost(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, dailyCostResponse{
			UserID:    userID,
			DailyCost: cost,
		})
	}
}

// BillingStatistics summarizes usage between the start and end query
// parameters. When both are omitted the current calendar month is used.
func BillingStatistics(svc billing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		start, err := validators.ParseQueryTime(r, "start")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		end, err := validators.ParseQueryTime(r, "end")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if start.IsZero() && end.IsZero() {
			now := time.Now().UTC()
			start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
			end = start.AddDate(0, 1, 0)
		}
		if start.IsZero() || end.IsZero() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "start and end must be provided together"))
			return
		}

		stats, err := svc.Statistics(r.Context(), userID, start, end)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, stats)
	}
}
