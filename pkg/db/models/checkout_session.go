package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/pkg/enums"
)

// CheckoutSession settles a bidder's winning bids in one payment.
// Monetary columns are written once at creation and never recomputed.
type CheckoutSession struct {
	ID                 uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	TenantID           uuid.UUID            `gorm:"column:tenant_id;type:uuid;not null;index"`
	EventID            uuid.UUID            `gorm:"column:event_id;type:uuid;not null;index"`
	BidderID           uuid.UUID            `gorm:"column:bidder_id;type:uuid;not null;index"`
	SubtotalCents      int64                `gorm:"column:subtotal_cents;not null"`
	TaxCents           int64                `gorm:"column:tax_cents;not null;default:0"`
	PlatformFeeCents   int64                `gorm:"column:platform_fee_cents;not null;default:0"`
	ProcessingFeeCents int64                `gorm:"column:processing_fee_cents;not null;default:0"`
	TotalCents         int64                `gorm:"column:total_cents;not null"`
	Currency           enums.Currency       `gorm:"column:currency;type:varchar(3);not null;default:'USD'"`
	PaymentMethod      enums.PaymentMethod  `gorm:"column:payment_method;type:varchar(16);not null"`
	Status             enums.CheckoutStatus `gorm:"column:status;type:varchar(16);not null;default:'pending';index"`
	IdempotencyKey     *string              `gorm:"column:idempotency_key;type:varchar(80)"`
	ExternalPaymentID  *string              `gorm:"column:external_payment_id;type:varchar(128);index"`
	ReceiptURL         *string              `gorm:"column:receipt_url"`
	ReceiptNumber      *string              `gorm:"column:receipt_number;type:varchar(64)"`
	FailureReason      *string              `gorm:"column:failure_reason"`
	RefundedCents      int64                `gorm:"column:refunded_cents;not null;default:0"`
	ExternalRefundID   *string              `gorm:"column:external_refund_id;type:varchar(128)"`
	RefundReason       *string              `gorm:"column:refund_reason"`
	CreatedBy          *uuid.UUID           `gorm:"column:created_by;type:uuid"`
	ProcessedBy        *uuid.UUID           `gorm:"column:processed_by;type:uuid"`
	CompletedAt        *time.Time           `gorm:"column:completed_at"`
	FailedAt           *time.Time           `gorm:"column:failed_at"`
	RefundedAt         *time.Time           `gorm:"column:refunded_at"`
	CreatedAt          time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time            `gorm:"column:updated_at;autoUpdateTime"`

	Lines []CheckoutSessionBid `gorm:"foreignKey:SessionID"`
}

func (s *CheckoutSession) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// CheckoutSessionBid snapshots one bid inside a session. A bid is attached to
// at most one session while ReleasedAt is nil.
type CheckoutSessionBid struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	TenantID    uuid.UUID  `gorm:"column:tenant_id;type:uuid;not null;index"`
	SessionID   uuid.UUID  `gorm:"column:session_id;type:uuid;not null;index"`
	BidID       uuid.UUID  `gorm:"column:bid_id;type:uuid;not null;uniqueIndex:ux_checkout_session_bids_active,where:released_at IS NULL"`
	ItemName    string     `gorm:"column:item_name;not null"`
	AmountCents int64      `gorm:"column:amount_cents;not null"`
	ReleasedAt  *time.Time `gorm:"column:released_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (CheckoutSessionBid) TableName() string {
	return "checkout_session_bids"
}

func (l *CheckoutSessionBid) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
