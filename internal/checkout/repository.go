package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/biddart/biddart-backend/pkg/db"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
	"github.com/biddart/biddart-backend/pkg/pagination"
)

// Repository persists checkout sessions and their bid snapshots.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockBidder(ctx context.Context, tenantID, bidderID uuid.UUID) (*models.Bidder, error)
	FindEvent(ctx context.Context, tenantID, eventID uuid.UUID) (*models.Event, error)
	FindBids(ctx context.Context, tenantID uuid.UUID, bidIDs []uuid.UUID) ([]models.Bid, error)
	AttachedBidIDs(ctx context.Context, tenantID uuid.UUID, bidIDs []uuid.UUID) (map[uuid.UUID]bool, error)
	CreateSession(ctx context.Context, session *models.CheckoutSession) error
	CreateLines(ctx context.Context, lines []models.CheckoutSessionBid) error
	FindSession(ctx context.Context, tenantID, sessionID uuid.UUID) (*models.CheckoutSession, error)
	Transition(ctx context.Context, tenantID, sessionID uuid.UUID, from, to enums.CheckoutStatus, updates map[string]any) (bool, error)
	SessionBidIDs(ctx context.Context, tenantID, sessionID uuid.UUID) ([]uuid.UUID, error)
	SetBidsPaid(ctx context.Context, tenantID uuid.UUID, bidIDs []uuid.UUID, paid bool) error
	ReleaseLines(ctx context.Context, tenantID, sessionID uuid.UUID, at time.Time) error
	ReattachLines(ctx context.Context, tenantID, sessionID uuid.UUID) error
	FindBidder(ctx context.Context, tenantID, bidderID uuid.UUID) (*models.Bidder, error)
	CheckoutableBids(ctx context.Context, tenantID, bidderID uuid.UUID) ([]models.Bid, error)
	ListSessions(ctx context.Context, query sessionQuery) ([]models.CheckoutSession, *pagination.Cursor, error)
}

type sessionQuery struct {
	TenantID uuid.UUID
	EventID  uuid.UUID
	BidderID uuid.UUID
	Status   enums.CheckoutStatus
	Limit    int
	Cursor   *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a checkout repository backed by the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) LockBidder(ctx context.Context, tenantID, bidderID uuid.UUID) (*models.Bidder, error) {
	var bidder models.Bidder
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).
		Where("tenant_id = ? AND id = ?", tenantID, bidderID).
		First(&bidder).Error; err != nil {
		return nil, err
	}
	return &bidder, nil
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

func (r *repository) FindBids(ctx context.Context, tenantID uuid.UUID, bidIDs []uuid.UUID) ([]models.Bid, error) {
	var rows []models.Bid
	if len(bidIDs) == 0 {
		return rows, nil
	}
	err := r.db.WithContext(ctx).
		Preload("AuctionItem").
		Where("tenant_id = ? AND id IN ?", tenantID, bidIDs).
		Find(&rows).Error
	return rows, err
}

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

func (r *repository) CreateSession(ctx context.Context, session *models.CheckoutSession) error {
	return r.db.WithContext(ctx).Omit("Lines").Create(session).Error
}

func (r *repository) CreateLines(ctx context.Context, lines []models.CheckoutSessionBid) error {
	if len(lines) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&lines).Error
}

func (r *repository) FindSession(ctx context.Context, tenantID, sessionID uuid.UUID) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	if err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("tenant_id = ? AND id = ?", tenantID, sessionID).
		First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// Transition moves a session from one status to another. It reports false
// when the session was no longer in the expected status.
func (r *repository) Transition(ctx context.Context, tenantID, sessionID uuid.UUID, from, to enums.CheckoutStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	result := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, sessionID, from).
		Updates(values)
	return result.RowsAffected > 0, result.Error
}

func (r *repository) SessionBidIDs(ctx context.Context, tenantID, sessionID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.CheckoutSessionBid{}).
		Where("tenant_id = ? AND session_id = ?", tenantID, sessionID).
		Order("created_at ASC, id ASC").
		Pluck("bid_id", &ids).Error
	return ids, err
}

func (r *repository) SetBidsPaid(ctx context.Context, tenantID uuid.UUID, bidIDs []uuid.UUID, paid bool) error {
	if len(bidIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("tenant_id = ? AND id IN ?", tenantID, bidIDs).
		Updates(map[string]any{"is_paid": paid, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) ReleaseLines(ctx context.Context, tenantID, sessionID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.CheckoutSessionBid{}).
		Where("tenant_id = ? AND session_id = ? AND released_at IS NULL", tenantID, sessionID).
		Update("released_at", at).Error
}

func (r *repository) ReattachLines(ctx context.Context, tenantID, sessionID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.CheckoutSessionBid{}).
		Where("tenant_id = ? AND session_id = ?", tenantID, sessionID).
		Update("released_at", nil).Error
}

func (r *repository) FindBidder(ctx context.Context, tenantID, bidderID uuid.UUID) (*models.Bidder, error) {
	var bidder models.Bidder
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, bidderID).
		First(&bidder).Error; err != nil {
		return nil, err
	}
	return &bidder, nil
}

// CheckoutableBids returns the bidder's winning, unpaid bids that no active
// session holds, oldest first.
func (r *repository) CheckoutableBids(ctx context.Context, tenantID, bidderID uuid.UUID) ([]models.Bid, error) {
	held := r.db.Model(&models.CheckoutSessionBid{}).
		Select("bid_id").
		Where("tenant_id = ? AND released_at IS NULL", tenantID)

	var rows []models.Bid
	err := r.db.WithContext(ctx).
		Preload("AuctionItem").
		Where("tenant_id = ? AND bidder_id = ? AND is_winning = ? AND is_paid = ?", tenantID, bidderID, true, false).
		Where("id NOT IN (?)", held).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListSessions(ctx context.Context, query sessionQuery) ([]models.CheckoutSession, *pagination.Cursor, error) {
	q := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("tenant_id = ? AND event_id = ?", query.TenantID, query.EventID)
	if query.BidderID != uuid.Nil {
		q = q.Where("bidder_id = ?", query.BidderID)
	}
	if query.Status != "" {
		q = q.Where("status = ?", query.Status)
	}

	var rows []models.CheckoutSession
	if err := pagination.Keyset(q, query.Cursor, query.Limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, query.Limit, func(s models.CheckoutSession) pagination.Cursor {
		return pagination.Cursor{CreatedAt: s.CreatedAt, ID: s.ID}
	})
	return page, next, nil
}

const activeLineIndex = "ux_checkout_session_bids_active"

func isActiveLineViolation(err error) bool {
	return dbpkg.IsUniqueViolation(err, activeLineIndex)
}
