package usage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mateovillega/bytevault-backend/pkg/db/models"
	"github.com/mateovillega/bytevault-backend/pkg/enums"
	"github.com/mateovillega/bytevault-backend/pkg/pagination"
)

// Repository manages persistence for the storage audit trail and usage
// intervals.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateChange(ctx context.Context, record *models.StorageChangeRecord) error
	LatestChange(ctx context.Context, userID string) (*models.StorageChangeRecord, error)
	ListChanges(ctx context.Context, userID string, params pagination.Params) ([]models.StorageChangeRecord, error)

	CreateInterval(ctx context.Context, interval *models.UsageInterval) error
	FindActiveInterval(ctx context.Context, userID string) (*models.UsageInterval, error)
	FindIntervalByID(ctx context.Context, id uuid.UUID) (*models.UsageInterval, error)
	// CloseInterval completes an interval with a conditional update keyed on
	// status. It reports whether this call performed the transition; false
	// means another writer got there first (or the row is gone).
	CloseInterval(ctx context.Context, id uuid.UUID, end time.Time, durationSeconds int64, cost decimal.Decimal) (bool, error)
	ListClosedIntervals(ctx context.Context, userID string, start, end time.Time) ([]models.UsageInterval, error)
	ListIntervals(ctx context.Context, userID string, params pagination.Params) ([]models.UsageInterval, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a usage repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateChange(ctx context.Context, record *models.StorageChangeRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) LatestChange(ctx context.Context, userID string) (*models.StorageChangeRecord, error) {
	var record models.StorageChangeRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("recorded_at DESC, created_at DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) ListChanges(ctx context.Context, userID string, params pagination.Params) ([]models.StorageChangeRecord, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var records []models.StorageChangeRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) CreateInterval(ctx context.Context, interval *models.UsageInterval) error {
	return r.db.WithContext(ctx).Create(interval).Error
}

func (r *repository) FindActiveInterval(ctx context.Context, userID string) (*models.UsageInterval, error) {
	var interval models.UsageInterval
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, enums.IntervalStatusActive).
		First(&interval).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &interval, nil
}

func (r *repository) FindIntervalByID(ctx context.Context, id uuid.UUID) (*models.UsageInterval, error) {
	var interval models.UsageInterval
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&interval).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &interval, nil
}

func (r *repository) CloseInterval(ctx context.Context, id uuid.UUID, end time.Time, durationSeconds int64, cost decimal.Decimal) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.UsageInterval{}).
		Where("id = ? AND status = ?", id, enums.IntervalStatusActive).
		Updates(map[string]any{
			"status":           enums.IntervalStatusCompleted,
			"period_end":       end,
			"duration_seconds": durationSeconds,
			"accrued_cost":     cost,
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) ListClosedIntervals(ctx context.Context, userID string, start, end time.Time) ([]models.UsageInterval, error) {
	var intervals []models.UsageInterval
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, enums.IntervalStatusCompleted).
		Where("period_start < ? AND period_end > ?", end, start).
		Order("period_start ASC").
		Find(&intervals).Error
	if err != nil {
		return nil, err
	}
	return intervals, nil
}

func (r *repository) ListIntervals(ctx context.Context, userID string, params pagination.Params) ([]models.UsageInterval, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var intervals []models.UsageInterval
	if err := query.Find(&intervals).Error; err != nil {
		return nil, err
	}
	return intervals, nil
}
