package bids

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/internal/tenancy"
	"github.com/biddart/biddart-backend/pkg/db/models"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/logger"
	"github.com/biddart/biddart-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type bidMetrics interface {
	BidPlaced(kind, outcome string)
}

// Service is the bid ledger: it decides which bid wins an item and keeps the
// item's current price in step.
type Service interface {
	PlaceBid(ctx context.Context, scope tenancy.Scope, input PlaceBidInput) (*models.Bid, error)
	WithdrawBid(ctx context.Context, scope tenancy.Scope, bidID uuid.UUID) error
	NextMinimumBidForItem(ctx context.Context, scope tenancy.Scope, itemID uuid.UUID) (int64, error)
	BulkAction(ctx context.Context, scope tenancy.Scope, input BulkActionInput) (*BulkActionResult, error)
	EventStats(ctx context.Context, tenantID, eventID uuid.UUID) (*EventStats, error)
	ListRecent(ctx context.Context, tenantID, eventID uuid.UUID, limit int) ([]models.Bid, error)
	ListForItem(ctx context.Context, tenantID, itemID uuid.UUID, limit int) ([]models.Bid, error)
}

type ServiceParams struct {
	Tx               txRunner
	Repo             Repository
	Outbox           outboxPublisher
	Logger           *logger.Logger
	Metrics          bidMetrics
	AllowBulkMarkPay bool
	Now              func() time.Time
}

type service struct {
	tx               txRunner
	repo             Repository
	outbox           outboxPublisher
	logg             *logger.Logger
	metrics          bidMetrics
	allowBulkMarkPay bool
	now              func() time.Time
}

// NewService wires the bid ledger.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tx runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bids repository required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		tx:               params.Tx,
		repo:             params.Repo,
		outbox:           params.Outbox,
		logg:             params.Logger,
		metrics:          params.Metrics,
		allowBulkMarkPay: params.AllowBulkMarkPay,
		now:              now,
	}, nil
}

func (s *service) logInfo(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}

func (s *service) recordBid(kind, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.BidPlaced(kind, outcome)
}
