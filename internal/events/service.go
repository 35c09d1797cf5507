package events

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/internal/fees"
	"github.com/biddart/biddart-backend/internal/tenancy"
	"github.com/biddart/biddart-backend/pkg/db/models"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/logger"
)

// Service exposes event settings that other domains depend on.
type Service interface {
	Get(ctx context.Context, tenantID, eventID uuid.UUID) (*models.Event, error)
	FeeConfig(ctx context.Context, tenantID, eventID uuid.UUID) (fees.FeeConfig, error)
	UpdateFees(ctx context.Context, scope tenancy.Scope, eventID uuid.UUID, cfg fees.FeeConfig) (*models.Event, error)
}

type ServiceParams struct {
	Repo          Repository
	Logger        *logger.Logger
	MaxPercentage decimal.Decimal
}

type service struct {
	repo          Repository
	logg          *logger.Logger
	maxPercentage decimal.Decimal
}

// NewService wires the events service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "events repository required")
	}
	maxPct := params.MaxPercentage
	if !maxPct.IsPositive() {
		maxPct = decimal.NewFromInt(10)
	}
	return &service{repo: params.Repo, logg: params.Logger, maxPercentage: maxPct}, nil
}

func (s *service) Get(ctx context.Context, tenantID, eventID uuid.UUID) (*models.Event, error) {
	event, err := s.repo.Find(ctx, tenantID, eventID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return event, nil
}

// FeeConfig returns the event's current platform fee schedule.
func (s *service) FeeConfig(ctx context.Context, tenantID, eventID uuid.UUID) (fees.FeeConfig, error) {
	event, err := s.Get(ctx, tenantID, eventID)
	if err != nil {
		return fees.FeeConfig{}, err
	}
	return FeeConfigOf(event), nil
}

// UpdateFees validates and stores a new schedule. Sessions already created keep their totals.
func (s *service) UpdateFees(ctx context.Context, scope tenancy.Scope, eventID uuid.UUID, cfg fees.FeeConfig) (*models.Event, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(s.maxPercentage); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateFees(ctx, scope.TenantID, eventID, cfg.Percentage.Round(2), fees.ToCents(cfg.FixedFee)); err != nil {
		return nil, mapLookupError(err)
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"tenant_id":  scope.TenantID.String(),
			"actor_id":   scope.ActorID.String(),
			"event_id":   eventID.String(),
			"percentage": cfg.Percentage.String(),
			"fixed_fee":  cfg.FixedFee.StringFixed(2),
		})
		s.logg.Info(logCtx, "event.fees.updated")
	}
	return s.Get(ctx, scope.TenantID, eventID)
}

// FeeConfigOf converts the stored columns into a fee schedule.
func FeeConfigOf(event *models.Event) fees.FeeConfig {
	if event == nil {
		return fees.FeeConfig{}
	}
	return fees.FeeConfig{
		Percentage: event.TransactionFeePercentage,
		FixedFee:   fees.FromCents(event.FixedTransactionFeeCents),
	}
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load event")
}
