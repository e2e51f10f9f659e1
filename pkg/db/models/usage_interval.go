package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mateovillega/bytevault-backend/pkg/enums"
)

// UsageInterval is one contiguous span of constant total-bytes for a user.
// Consecutive intervals share boundaries (interval[n].period_end ==
// interval[n+1].period_start) and at most one row per user is active, which
// the partial unique index in the schema enforces.
type UsageInterval struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          string               `gorm:"column:user_id;not null;index"`
	BytesHeld       int64                `gorm:"column:bytes_held;not null"`
	PeriodStart     time.Time            `gorm:"column:period_start;not null"`
	PeriodEnd       *time.Time           `gorm:"column:period_end"`
	DurationSeconds int64                `gorm:"column:duration_seconds;not null;default:0"`
	AccruedCost     decimal.Decimal      `gorm:"column:accrued_cost;type:numeric(30,12);not null;default:0"`
	Status          enums.IntervalStatus `gorm:"column:status;type:interval_status;not null;default:'active'"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *UsageInterval) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
