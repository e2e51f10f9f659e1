package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mateovillega/bytevault-backend/pkg/enums"
)

// StorageChangeRecord is one row of the append-only storage audit trail. Rows
// are never mutated or deleted; total_bytes_after chains off the previous row
// for the same user and never goes negative.
type StorageChangeRecord struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          string              `gorm:"column:user_id;not null;index"`
	RecordedAt      time.Time           `gorm:"column:recorded_at;not null"`
	ActionType      enums.StorageAction `gorm:"column:action_type;type:storage_action;not null"`
	DeltaBytes      int64               `gorm:"column:delta_bytes;not null"`
	TotalBytesAfter int64               `gorm:"column:total_bytes_after;not null"`
	MediaID         string              `gorm:"column:media_id;not null"`
	FileName        string              `gorm:"column:file_name;not null"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (r *StorageChangeRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
