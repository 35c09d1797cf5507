package items

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/biddart/biddart-backend/pkg/db"
	"github.com/biddart/biddart-backend/pkg/db/models"
)

// Repository persists the auction catalogue scoped by tenant.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindEvent(ctx context.Context, tenantID, eventID uuid.UUID) (*models.Event, error)
	Create(ctx context.Context, item *models.AuctionItem) error
	Find(ctx context.Context, tenantID, eventID, itemID uuid.UUID) (*models.AuctionItem, error)
	Lock(ctx context.Context, tenantID, eventID, itemID uuid.UUID) (*models.AuctionItem, error)
	Save(ctx context.Context, item *models.AuctionItem) error
	SetActive(ctx context.Context, tenantID, itemID uuid.UUID, active bool) error
	HasWinner(ctx context.Context, tenantID, itemID uuid.UUID) (bool, error)
	List(ctx context.Context, query listQuery) ([]models.AuctionItem, error)
}

type listQuery struct {
	TenantID   uuid.UUID
	EventID    uuid.UUID
	Search     string
	ActiveOnly bool
	Limit      int
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

func (r *repository) FindEvent(ctx context.Context, tenantID, eventID uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, eventID).
		First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) Create(ctx context.Context, item *models.AuctionItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) Find(ctx context.Context, tenantID, eventID, itemID uuid.UUID) (*models.AuctionItem, error) {
	var item models.AuctionItem
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND event_id = ? AND id = ?", tenantID, eventID, itemID).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// Lock takes the same row lock the bid ledger holds while it moves the price.
func (r *repository) Lock(ctx context.Context, tenantID, eventID, itemID uuid.UUID) (*models.AuctionItem, error) {
	var item models.AuctionItem
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).
		Where("tenant_id = ? AND event_id = ? AND id = ?", tenantID, eventID, itemID).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) Save(ctx context.Context, item *models.AuctionItem) error {
	return r.db.WithContext(ctx).
		Model(&models.AuctionItem{}).
		Where("tenant_id = ? AND id = ?", item.TenantID, item.ID).
		Updates(map[string]any{
			"item_number":          item.ItemNumber,
			"name":                 item.Name,
			"description":          item.Description,
			"starting_price_cents": item.StartingPriceCents,
			"current_price_cents":  item.CurrentPriceCents,
			"buy_now_price_cents":  item.BuyNowPriceCents,
			"bid_increment_cents":  item.BidIncrementCents,
			"bidding_starts_at":    item.BiddingStartsAt,
			"bidding_ends_at":      item.BiddingEndsAt,
		}).Error
}

func (r *repository) SetActive(ctx context.Context, tenantID, itemID uuid.UUID, active bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.AuctionItem{}).
		Where("tenant_id = ? AND id = ?", tenantID, itemID).
		Update("is_active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) HasWinner(ctx context.Context, tenantID, itemID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("tenant_id = ? AND auction_item_id = ? AND is_winning = ?", tenantID, itemID, true).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) List(ctx context.Context, query listQuery) ([]models.AuctionItem, error) {
	q := r.db.WithContext(ctx).
		Where("tenant_id = ? AND event_id = ?", query.TenantID, query.EventID)
	if query.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	if term := strings.TrimSpace(query.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("(LOWER(name) LIKE ? OR LOWER(item_number) LIKE ?)", like, like)
	}
	var rows []models.AuctionItem
	if err := q.Order("item_number ASC").Order("created_at ASC").Limit(query.Limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
