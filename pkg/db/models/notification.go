package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/pkg/enums"
)

// Notification is a staff-facing alert scoped to a tenant. SourceEventID ties it
// to the domain event that produced it.
type Notification struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	TenantID      uuid.UUID              `gorm:"column:tenant_id;type:uuid;not null;index"`
	SourceEventID *uuid.UUID             `gorm:"column:source_event_id;type:uuid;uniqueIndex:ux_notifications_source_event,where:source_event_id IS NOT NULL"`
	Type          enums.NotificationType `gorm:"column:type;type:varchar(32);not null"`
	Title         string                 `gorm:"column:title;not null"`
	Message       string                 `gorm:"column:message;not null"`
	Link          *string                `gorm:"column:link"`
	ReadAt        *time.Time             `gorm:"column:read_at"`
	ReadBy        *uuid.UUID             `gorm:"column:read_by;type:uuid"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	ensureID(&n.ID)
	return nil
}
