package bidders

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/internal/tenancy"
	dbpkg "github.com/biddart/biddart-backend/pkg/db"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/logger"
	"github.com/biddart/biddart-backend/pkg/outbox"
	"github.com/biddart/biddart-backend/pkg/outbox/payloads"
)

const bidderNumberIndex = "ux_bidders_event_number"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// RegisterInput is the staff-entered bidder registration.
type RegisterInput struct {
	EventID   uuid.UUID
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// Service registers bidders and hands out their numbers.
type Service interface {
	Register(ctx context.Context, scope tenancy.Scope, input RegisterInput) (*models.Bidder, error)
	Get(ctx context.Context, tenantID, bidderID uuid.UUID) (*models.Bidder, error)
	ListForEvent(ctx context.Context, tenantID, eventID uuid.UUID) ([]models.Bidder, error)
}

type ServiceParams struct {
	Tx     txRunner
	Repo   Repository
	Outbox outboxPublisher
	Logger *logger.Logger
}

type service struct {
	tx     txRunner
	repo   Repository
	outbox outboxPublisher
	logg   *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tx runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bidders repository required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	return &service{tx: params.Tx, repo: params.Repo, outbox: params.Outbox, logg: params.Logger}, nil
}

func (s *service) Register(ctx context.Context, scope tenancy.Scope, input RegisterInput) (*models.Bidder, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	firstName := strings.TrimSpace(input.FirstName)
	if firstName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "first name is required")
	}
	if input.EventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}

	bidder := &models.Bidder{
		TenantID:  scope.TenantID,
		EventID:   input.EventID,
		FirstName: firstName,
		LastName:  strings.TrimSpace(input.LastName),
		Email:     optional(strings.ToLower(input.Email)),
		Phone:     optional(input.Phone),
		CreatedBy: scope.Actor(),
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		number, err := nextNumber(ctx, repo, scope.TenantID, input.EventID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign bidder number")
		}
		bidder.BidderNumber = number
		if err := repo.Create(ctx, bidder); err != nil {
			if dbpkg.IsUniqueViolation(err, bidderNumberIndex) {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "bidder number already taken, retry the registration")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert bidder")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			TenantID:      scope.TenantID,
			EventType:     enums.EventBidderRegistered,
			AggregateType: enums.AggregateBidder,
			AggregateID:   bidder.ID,
			ActorID:       scope.ActorID,
			Data: payloads.BidderRegisteredEvent{
				BidderID:     bidder.ID,
				EventID:      bidder.EventID,
				BidderNumber: bidder.BidderNumber,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"tenant_id":     scope.TenantID.String(),
			"event_id":      bidder.EventID.String(),
			"bidder_id":     bidder.ID.String(),
			"bidder_number": bidder.BidderNumber,
		}), "bidder.registered")
	}
	return bidder, nil
}

func (s *service) Get(ctx context.Context, tenantID, bidderID uuid.UUID) (*models.Bidder, error) {
	bidder, err := s.repo.Find(ctx, tenantID, bidderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bidder not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bidder")
	}
	return bidder, nil
}

func (s *service) ListForEvent(ctx context.Context, tenantID, eventID uuid.UUID) ([]models.Bidder, error) {
	rows, err := s.repo.ListForEvent(ctx, tenantID, eventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bidders")
	}
	return rows, nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
