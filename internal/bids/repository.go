package bids

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/biddart/biddart-backend/pkg/db"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
)

// Repository persists bids and the item price they drive. Every call is tenant scoped.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindItem(ctx context.Context, tenantID, itemID uuid.UUID) (*models.AuctionItem, error)
	LockItem(ctx context.Context, tenantID, itemID uuid.UUID) (*models.AuctionItem, error)
	UpdateItemPrice(ctx context.Context, tenantID, itemID uuid.UUID, priceCents int64) error

	FindBidderInEvent(ctx context.Context, tenantID, eventID, bidderID uuid.UUID) (*models.Bidder, error)

	CreateBid(ctx context.Context, bid *models.Bid) error
	FindBid(ctx context.Context, tenantID, bidID uuid.UUID) (*models.Bid, error)
	FindBids(ctx context.Context, tenantID uuid.UUID, bidIDs []uuid.UUID) ([]models.Bid, error)
	DeleteBid(ctx context.Context, tenantID, bidID uuid.UUID) error
	ClearWinners(ctx context.Context, tenantID, itemID uuid.UUID) error
	SetWinning(ctx context.Context, tenantID, bidID uuid.UUID) error
	TopCompetingBid(ctx context.Context, tenantID, itemID uuid.UUID) (*models.Bid, error)
	SetPaid(ctx context.Context, tenantID uuid.UUID, bidIDs []uuid.UUID, paid bool) (int64, error)
	AttachedBidIDs(ctx context.Context, tenantID uuid.UUID, bidIDs []uuid.UUID) (map[uuid.UUID]bool, error)

	ListForItem(ctx context.Context, tenantID, itemID uuid.UUID, limit int) ([]models.Bid, error)
	ListRecent(ctx context.Context, tenantID, eventID uuid.UUID, limit int) ([]models.Bid, error)
	Aggregate(ctx context.Context, tenantID, eventID uuid.UUID) ([]bidAggregateRow, error)
}

type bidAggregateRow struct {
	Kind        enums.BidKind
	IsWinning   bool
	IsPaid      bool
	Count       int64
	AmountCents int64
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the bid repository to a database handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindItem(ctx context.Context, tenantID, itemID uuid.UUID) (*models.AuctionItem, error) {
	var item models.AuctionItem
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, itemID).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// LockItem serializes every ledger mutation on one item.
func (r *repository) LockItem(ctx context.Context, tenantID, itemID uuid.UUID) (*models.AuctionItem, error) {
	var item models.AuctionItem
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).
		Where("tenant_id = ? AND id = ?", tenantID, itemID).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) UpdateItemPrice(ctx context.Context, tenantID, itemID uuid.UUID, priceCents int64) error {
	return r.db.WithContext(ctx).
		Model(&models.AuctionItem{}).
		Where("tenant_id = ? AND id = ?", tenantID, itemID).
		Updates(map[string]any{"current_price_cents": priceCents, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) FindBidderInEvent(ctx context.Context, tenantID, eventID, bidderID uuid.UUID) (*models.Bidder, error) {
	var bidder models.Bidder
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND event_id = ? AND id = ?", tenantID, eventID, bidderID).
		First(&bidder).Error; err != nil {
		return nil, err
	}
	return &bidder, nil
}

func (r *repository) CreateBid(ctx context.Context, bid *models.Bid) error {
	return r.db.WithContext(ctx).Create(bid).Error
}

func (r *repository) FindBid(ctx context.Context, tenantID, bidID uuid.UUID) (*models.Bid, error) {
	var bid models.Bid
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, bidID).
		First(&bid).Error; err != nil {
		return nil, err
	}
	return &bid, nil
}

func (r *repository) FindBids(ctx context.Context, tenantID uuid.UUID, bidIDs []uuid.UUID) ([]models.Bid, error) {
	if len(bidIDs) == 0 {
		return nil, nil
	}
	var rows []models.Bid
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, bidIDs).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) DeleteBid(ctx context.Context, tenantID, bidID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, bidID).
		Delete(&models.Bid{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) ClearWinners(ctx context.Context, tenantID, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("tenant_id = ? AND auction_item_id = ? AND is_winning = ?", tenantID, itemID, true).
		Updates(map[string]any{"is_winning": false, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) SetWinning(ctx context.Context, tenantID, bidID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("tenant_id = ? AND id = ?", tenantID, bidID).
		Updates(map[string]any{"is_winning": true, "updated_at": time.Now().UTC()}).Error
}

// TopCompetingBid returns the highest standard or buy-now bid; ties go to the earliest bid.
func (r *repository) TopCompetingBid(ctx context.Context, tenantID, itemID uuid.UUID) (*models.Bid, error) {
	var bid models.Bid
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND auction_item_id = ?", tenantID, itemID).
		Where("kind IN ?", []enums.BidKind{enums.BidKindStandard, enums.BidKindBuyNow}).
		Order("amount_cents DESC, created_at ASC, id ASC").
		Limit(1).
		Find(&bid).Error
	if err != nil {
		return nil, err
	}
	if bid.ID == uuid.Nil {
		return nil, nil
	}
	return &bid, nil
}

func (r *repository) SetPaid(ctx context.Context, tenantID uuid.UUID, bidIDs []uuid.UUID, paid bool) (int64, error) {
	if len(bidIDs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("tenant_id = ? AND id IN ?", tenantID, bidIDs).
		Updates(map[string]any{"is_paid": paid, "updated_at": time.Now().UTC()})
	return result.RowsAffected, result.Error
}

// AttachedBidIDs reports which of the bids are held by a session that has not released them.
func (r *repository) AttachedBidIDs(ctx context.Context, tenantID uuid.UUID, bidIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	attached := map[uuid.UUID]bool{}
	if len(bidIDs) == 0 {
		return attached, nil
	}
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.CheckoutSessionBid{}).
		Where("tenant_id = ? AND bid_id IN ? AND released_at IS NULL", tenantID, bidIDs).
		Pluck("bid_id", &ids).Error; err != nil {
		return nil, err
	}
	for _, id := range ids {
		attached[id] = true
	}
	return attached, nil
}

func (r *repository) ListForItem(ctx context.Context, tenantID, itemID uuid.UUID, limit int) ([]models.Bid, error) {
	var rows []models.Bid
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND auction_item_id = ?", tenantID, itemID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListRecent(ctx context.Context, tenantID, eventID uuid.UUID, limit int) ([]models.Bid, error) {
	var rows []models.Bid
	err := r.db.WithContext(ctx).
		Preload("AuctionItem").
		Where("tenant_id = ? AND event_id = ?", tenantID, eventID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) Aggregate(ctx context.Context, tenantID, eventID uuid.UUID) ([]bidAggregateRow, error) {
	var rows []bidAggregateRow
	err := r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Select("kind, is_winning, is_paid, COUNT(*) AS count, COALESCE(SUM(amount_cents), 0) AS amount_cents").
		Where("tenant_id = ? AND event_id = ?", tenantID, eventID).
		Group("kind, is_winning, is_paid").
		Scan(&rows).Error
	return rows, err
}
