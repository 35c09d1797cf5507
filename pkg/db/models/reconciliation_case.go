package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/pkg/enums"
)

// ReconciliationCase records a checkout whose gateway outcome is not confirmed locally.
type ReconciliationCase struct {
	ID                uuid.UUID                       `gorm:"column:id;type:uuid;primaryKey"`
	TenantID          uuid.UUID                       `gorm:"column:tenant_id;type:uuid;not null;index"`
	SessionID         uuid.UUID                       `gorm:"column:session_id;type:uuid;not null;index"`
	ExternalPaymentID *string                         `gorm:"column:external_payment_id;type:varchar(128)"`
	IdempotencyKey    string                          `gorm:"column:idempotency_key;type:varchar(80);not null"`
	AmountCents       int64                           `gorm:"column:amount_cents;not null"`
	Reason            enums.ReconciliationReason      `gorm:"column:reason;type:varchar(32);not null"`
	Status            enums.ReconciliationStatus      `gorm:"column:status;type:varchar(16);not null;default:'open';index"`
	Resolution        *enums.ReconciliationResolution `gorm:"column:resolution;type:varchar(16)"`
	Detail            *string                         `gorm:"column:detail"`
	Attempts          int                             `gorm:"column:attempts;not null;default:0"`
	LastCheckedAt     *time.Time                      `gorm:"column:last_checked_at"`
	LastError         *string                         `gorm:"column:last_error"`
	ResolvedBy        *uuid.UUID                      `gorm:"column:resolved_by;type:uuid"`
	ResolvedAt        *time.Time                      `gorm:"column:resolved_at"`
	CreatedAt         time.Time                       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                       `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *ReconciliationCase) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
