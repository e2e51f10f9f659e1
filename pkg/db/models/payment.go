package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mateovillega/bytevault-backend/pkg/enums"
)

// Payment records one checkout session requested from the payment processor.
// Rows are created PENDING and mutated only by webhook settlement.
type Payment struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          string              `gorm:"column:user_id;not null;index"`
	StripeSessionID string              `gorm:"column:stripe_session_id;not null;unique"`
	BillingMonth    int                 `gorm:"column:billing_month;not null"`
	BillingYear     int                 `gorm:"column:billing_year;not null"`
	Amount          decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency        string              `gorm:"column:currency;not null;default:'usd'"`
	Status          enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
