package events

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/biddart/biddart-backend/pkg/db"
	"github.com/biddart/biddart-backend/pkg/db/models"
)

// Repository persists events scoped by tenant.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, tenantID, eventID uuid.UUID) (*models.Event, error)
	Lock(ctx context.Context, tenantID, eventID uuid.UUID) (*models.Event, error)
	UpdateFees(ctx context.Context, tenantID, eventID uuid.UUID, percentage decimal.Decimal, fixedCents int64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to a database handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Find(ctx context.Context, tenantID, eventID uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, eventID).
		First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// Lock loads the event with a row lock held until the surrounding transaction ends.
func (r *repository) Lock(ctx context.Context, tenantID, eventID uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).
		Where("tenant_id = ? AND id = ?", tenantID, eventID).
		First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) UpdateFees(ctx context.Context, tenantID, eventID uuid.UUID, percentage decimal.Decimal, fixedCents int64) error {
	result := r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("tenant_id = ? AND id = ?", tenantID, eventID).
		Updates(map[string]any{
			"transaction_fee_percentage":  percentage,
			"fixed_transaction_fee_cents": fixedCents,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
