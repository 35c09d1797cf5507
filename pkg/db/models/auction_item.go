package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuctionItem is a catalogued lot. CurrentPriceCents is owned by the bid ledger.
type AuctionItem struct {
	ID                 uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	TenantID           uuid.UUID  `gorm:"column:tenant_id;type:uuid;not null;index"`
	EventID            uuid.UUID  `gorm:"column:event_id;type:uuid;not null;index"`
	ItemNumber         string     `gorm:"column:item_number;type:varchar(32)"`
	Name               string     `gorm:"column:name;not null"`
	Description        *string    `gorm:"column:description"`
	StartingPriceCents int64      `gorm:"column:starting_price_cents;not null;default:0"`
	CurrentPriceCents  int64      `gorm:"column:current_price_cents;not null;default:0"`
	BuyNowPriceCents   *int64     `gorm:"column:buy_now_price_cents"`
	BidIncrementCents  int64      `gorm:"column:bid_increment_cents;not null;default:100"`
	BiddingStartsAt    *time.Time `gorm:"column:bidding_starts_at"`
	BiddingEndsAt      *time.Time `gorm:"column:bidding_ends_at"`
	IsActive           bool       `gorm:"column:is_active;not null"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *AuctionItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	if i.CurrentPriceCents == 0 {
		i.CurrentPriceCents = i.StartingPriceCents
	}
	return nil
}
