package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Bidder is a registered participant of one event. BidderNumber is never reassigned.
type Bidder struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	TenantID     uuid.UUID  `gorm:"column:tenant_id;type:uuid;not null;index"`
	EventID      uuid.UUID  `gorm:"column:event_id;type:uuid;not null;uniqueIndex:ux_bidders_event_number,priority:1"`
	BidderNumber string     `gorm:"column:bidder_number;type:varchar(16);not null;uniqueIndex:ux_bidders_event_number,priority:2"`
	FirstName    string     `gorm:"column:first_name;not null"`
	LastName     string     `gorm:"column:last_name;not null"`
	Email        *string    `gorm:"column:email"`
	Phone        *string    `gorm:"column:phone"`
	CreatedBy    *uuid.UUID `gorm:"column:created_by;type:uuid"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (b *Bidder) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

// FullName joins first and last name for display.
func (b Bidder) FullName() string {
	if b.LastName == "" {
		return b.FirstName
	}
	return b.FirstName + " " + b.LastName
}
