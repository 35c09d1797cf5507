package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/pkg/enums"
)

// Bid is one entry against an auction item.
type Bid struct {
	ID            uuid.UUID     `gorm:"column:id;type:uuid;primaryKey"`
	TenantID      uuid.UUID     `gorm:"column:tenant_id;type:uuid;not null;index"`
	EventID       uuid.UUID     `gorm:"column:event_id;type:uuid;not null;index"`
	AuctionItemID uuid.UUID     `gorm:"column:auction_item_id;type:uuid;not null;index"`
	BidderID      uuid.UUID     `gorm:"column:bidder_id;type:uuid;not null;index"`
	AmountCents   int64         `gorm:"column:amount_cents;not null"`
	Kind          enums.BidKind `gorm:"column:kind;type:varchar(16);not null;default:'standard'"`
	IsWinning     bool          `gorm:"column:is_winning;not null"`
	IsPaid        bool          `gorm:"column:is_paid;not null"`
	CreatedBy     *uuid.UUID    `gorm:"column:created_by;type:uuid"`
	Notes         *string       `gorm:"column:notes"`
	CreatedAt     time.Time     `gorm:"column:created_at"`
	UpdatedAt     time.Time     `gorm:"column:updated_at;autoUpdateTime"`

	AuctionItem *AuctionItem `gorm:"foreignKey:AuctionItemID"`
}

func (b *Bid) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	return nil
}
