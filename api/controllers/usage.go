package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mateovillega/bytevault-backend/api/middleware"
	"github.com/mateovillega/bytevault-backend/api/responses"
	"github.com/mateovillega/bytevault-backend/api/validators"
	"github.com/mateovillega/bytevault-backend/internal/usage"
	"github.com/mateovillega/bytevault-backend/pkg/db/models"
	"github.com/mateovillega/bytevault-backend/pkg/enums"
	pkgerrors "github.com/mateovillega/bytevault-backend/pkg/errors"
	"github.com/mateovillega/bytevault-backend/pkg/logger"
	"github.com/mateovillega/bytevault-backend/pkg/pagination"
)

type recordChangeRequest struct {
	Action    string `json:"action" validate:"required"`
	SizeBytes int64  `json:"size_bytes" validate:"required,min=1"`
	MediaID   string `json:"media_id" validate:"required"`
	FileName  string `json:"file_name"`
}

type changeResponse struct {
	ID              uuid.UUID           `json:"id"`
	UserID          string              `json:"user_id"`
	RecordedAt      time.Time           `json:"recorded_at"`
	Action          enums.StorageAction `json:"action"`
	DeltaBytes      int64               `json:"delta_bytes"`
	TotalBytesAfter int64               `json:"total_bytes_after"`
	MediaID         string              `json:"media_id"`
	FileName        string              `json:"file_name"`
	CreatedAt       time.Time           `json:"created_at"`
}

type intervalResponse struct {
	ID              uuid.UUID            `json:"id"`
	UserID          string               `json:"user_id"`
	BytesHeld       int64                `json:"bytes_held"`
	PeriodStart     time.Time            `json:"period_start"`
	PeriodEnd       *time.Time           `json:"period_end,omitempty"`
	DurationSeconds int64                `json:"duration_seconds"`
	AccruedCost     decimal.Decimal      `json:"accrued_cost"`
	Status          enums.IntervalStatus `json:"status"`
	CreatedAt       time.Time            `json:"created_at"`
}

type transitionResponse struct {
	Change *changeResponse   `json:"change"`
	Closed *intervalResponse `json:"closed_interval,omitempty"`
	Opened *intervalResponse `json:"opened_interval"`
}

const (
	bytesPerMB = 1 << 20
	bytesPerGB = 1 << 30
)

type currentStorageResponse struct {
	UserID      string     `json:"user_id"`
	TotalBytes  int64      `json:"total_bytes"`
	TotalMB     float64    `json:"total_mb"`
	TotalGB     float64    `json:"total_gb"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

type changeHistoryResponse struct {
	Items      []*changeResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type intervalHistoryResponse struct {
	Items      []*intervalResponse `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

func changeResponseFromModel(m *models.StorageChangeRecord) *changeResponse {
	if m == nil {
		return nil
	}
	return &changeResponse{
		ID:              m.ID,
		UserID:          m.UserID,
		RecordedAt:      m.RecordedAt,
		Action:          m.ActionType,
		DeltaBytes:      m.DeltaBytes,
		TotalBytesAfter: m.TotalBytesAfter,
		MediaID:         m.MediaID,
		FileName:        m.FileName,
		CreatedAt:       m.CreatedAt,
	}
}

func intervalResponseFromModel(m *models.UsageInterval) *intervalResponse {
	if m == nil {
		return nil
	}
	return &intervalResponse{
		ID:              m.ID,
		UserID:          m.UserID,
		BytesHeld:       m.BytesHeld,
		PeriodStart:     m.PeriodStart,
		PeriodEnd:       m.PeriodEnd,
		DurationSeconds: m.DurationSeconds,
		AccruedCost:     m.AccruedCost,
		Status:          m.Status,
		CreatedAt:       m.CreatedAt,
	}
}

// UsageRecordChange meters one storage mutation for the authenticated user.
func UsageRecordChange(svc usage.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "usage service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var payload recordChangeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		action, err := enums.ParseStorageAction(strings.ToUpper(strings.TrimSpace(payload.Action)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid storage action"))
			return
		}

		transition, err := svc.RecordStorageChange(r.Context(), usage.RecordStorageChangeInput{
			UserID:    userID,
			Action:    action,
			SizeBytes: payload.SizeBytes,
			MediaID:   strings.TrimSpace(payload.MediaID),
			FileName:  strings.TrimSpace(payload.FileName),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, transitionResponse{
			Change: changeResponseFromModel(transition.Change),
			Closed: intervalResponseFromModel(transition.Closed),
			Opened: intervalResponseFromModel(transition.Opened),
		})
	}
}

// UsageCurrentStorage returns the authenticated user's running total in
// bytes, megabytes and gigabytes plus when it last changed.
func UsageCurrentStorage(svc usage.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "usage service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		snapshot, err := svc.CurrentStorage(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := currentStorageResponse{
			UserID:     userID,
			TotalBytes: snapshot.TotalBytes,
			TotalMB:    float64(snapshot.TotalBytes) / bytesPerMB,
			TotalGB:    float64(snapshot.TotalBytes) / bytesPerGB,
		}
		if !snapshot.UpdatedAt.IsZero() {
			updated := snapshot.UpdatedAt
			resp.LastUpdated = &updated
		}
		responses.WriteSuccess(w, resp)
	}
}

// UsageLatestChange returns the newest audit row for the authenticated user.
func UsageLatestChange(svc usage.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "usage service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		latest, err := svc.LatestChange(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if latest == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no storage activity recorded"))
			return
		}

		responses.WriteSuccess(w, changeResponseFromModel(latest))
	}
}

// UsageStorageHistory pages through the user's audit trail, newest first.
func UsageStorageHistory(svc usage.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "usage service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, next, err := svc.ChangeHistory(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]*changeResponse, 0, len(records))
		for i := range records {
			items = append(items, changeResponseFromModel(&records[i]))
		}
		responses.WriteSuccess(w, changeHistoryResponse{Items: items, NextCursor: next})
	}
}

// UsageIntervalHistory pages through the user's usage intervals, newest first.
func UsageIntervalHistory(svc usage.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "usage service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intervals, next, err := svc.IntervalHistory(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]*intervalResponse, 0, len(intervals))
		for i := range intervals {
			items = append(items, intervalResponseFromModel(&intervals[i]))
		}
		responses.WriteSuccess(w, intervalHistoryResponse{Items: items, NextCursor: next})
	}
}
