package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Event is a time-boxed auction run by a tenant. It carries the platform fee schedule.
type Event struct {
	ID                       uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TenantID                 uuid.UUID       `gorm:"column:tenant_id;type:uuid;not null;index"`
	Name                     string          `gorm:"column:name;not null"`
	StartsAt                 *time.Time      `gorm:"column:starts_at"`
	EndsAt                   *time.Time      `gorm:"column:ends_at"`
	TransactionFeePercentage decimal.Decimal `gorm:"column:transaction_fee_percentage;type:numeric(5,2);not null;default:0"`
	FixedTransactionFeeCents int64           `gorm:"column:fixed_transaction_fee_cents;not null;default:0"`
	IsActive                 bool            `gorm:"column:is_active;not null"`
	CreatedAt                time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (e *Event) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
