package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/pagination"
)

// Repository persists staff notifications. Every read and write is filtered by tenant.
type Repository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, query listQuery) (listPage, error)
	CountUnread(ctx context.Context, tenantID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, mark readMark, notificationID uuid.UUID) (markOutcome, error)
	MarkAllRead(ctx context.Context, mark readMark) (int64, error)
}

type listQuery struct {
	TenantID   uuid.UUID
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

type listPage struct {
	Rows []models.Notification
	Next *pagination.Cursor
}

// readMark stamps who acknowledged a notification and when.
type readMark struct {
	TenantID uuid.UUID
	ReaderID *uuid.UUID
	At       time.Time
}

func (m readMark) columns() map[string]any {
	return map[string]any{"read_at": m.At, "read_by": m.ReaderID}
}

type markOutcome int

const (
	markMissing markOutcome = iota
	markAlreadyRead
	markApplied
)

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) tenant(ctx context.Context, tenantID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("tenant_id = ?", tenantID)
}

func (r *gormRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *gormRepository) List(ctx context.Context, query listQuery) (listPage, error) {
	q := r.tenant(ctx, query.TenantID)
	if query.UnreadOnly {
		q = q.Where("read_at IS NULL")
	}

	var rows []models.Notification
	if err := pagination.Keyset(q, query.Cursor, query.Limit).Find(&rows).Error; err != nil {
		return listPage{}, err
	}
	page, next := pagination.Trim(rows, query.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return listPage{Rows: page, Next: next}, nil
}

func (r *gormRepository) CountUnread(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := r.tenant(ctx, tenantID).Where("read_at IS NULL").Count(&count).Error
	return count, err
}

// MarkRead only stamps unread rows, so the first reader is the one recorded.
func (r *gormRepository) MarkRead(ctx context.Context, mark readMark, notificationID uuid.UUID) (markOutcome, error) {
	var outcome markOutcome
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Notification{}).
			Where("tenant_id = ? AND id = ? AND read_at IS NULL", mark.TenantID, notificationID).
			Updates(mark.columns())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			outcome = markApplied
			return nil
		}

		var count int64
		if err := tx.Model(&models.Notification{}).
			Where("tenant_id = ? AND id = ?", mark.TenantID, notificationID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			outcome = markAlreadyRead
		}
		return nil
	})
	return outcome, err
}

func (r *gormRepository) MarkAllRead(ctx context.Context, mark readMark) (int64, error) {
	res := r.tenant(ctx, mark.TenantID).Where("read_at IS NULL").Updates(mark.columns())
	return res.RowsAffected, res.Error
}
