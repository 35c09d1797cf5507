package bidders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/biddart/biddart-backend/pkg/db"
	"github.com/biddart/biddart-backend/pkg/db/models"
)

// Repository persists bidders scoped by tenant.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockEvent(ctx context.Context, tenantID, eventID uuid.UUID) (*models.Event, error)
	NumbersForEvent(ctx context.Context, tenantID, eventID uuid.UUID) ([]string, error)
	Create(ctx context.Context, bidder *models.Bidder) error
	Find(ctx context.Context, tenantID, bidderID uuid.UUID) (*models.Bidder, error)
	ListForEvent(ctx context.Context, tenantID, eventID uuid.UUID) ([]models.Bidder, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) LockEvent(ctx context.Context, tenantID, eventID uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).
		Where("tenant_id = ? AND id = ?", tenantID, eventID).
		First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) NumbersForEvent(ctx context.Context, tenantID, eventID uuid.UUID) ([]string, error) {
	var numbers []string
	err := r.db.WithContext(ctx).
		Model(&models.Bidder{}).
		Where("tenant_id = ? AND event_id = ?", tenantID, eventID).
		Pluck("bidder_number", &numbers).Error
	return numbers, err
}

func (r *repository) Create(ctx context.Context, bidder *models.Bidder) error {
	return r.db.WithContext(ctx).Create(bidder).Error
}

func (r *repository) Find(ctx context.Context, tenantID, bidderID uuid.UUID) (*models.Bidder, error) {
	var bidder models.Bidder
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, bidderID).
		First(&bidder).Error; err != nil {
		return nil, err
	}
	return &bidder, nil
}

func (r *repository) ListForEvent(ctx context.Context, tenantID, eventID uuid.UUID) ([]models.Bidder, error) {
	var rows []models.Bidder
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND event_id = ?", tenantID, eventID).
		Order("LENGTH(bidder_number) ASC, bidder_number ASC").
		Find(&rows).Error
	return rows, err
}
