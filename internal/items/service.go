package items

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/internal/tenancy"
	"github.com/biddart/biddart-backend/pkg/db/models"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/logger"
)

const (
	maxPriceCents     = 100_000_000
	maxNameLength     = 255
	maxItemNumberLen  = 32
	maxDescriptionLen = 5000
	defaultListLimit  = 100
	maxListLimit      = 500
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages the auction catalogue. The current price stays with the bid
// ledger; edits here only reset it while nobody is winning.
type Service interface {
	Create(ctx context.Context, scope tenancy.Scope, eventID uuid.UUID, input ItemInput) (*models.AuctionItem, error)
	Get(ctx context.Context, scope tenancy.Scope, eventID, itemID uuid.UUID) (*models.AuctionItem, error)
	List(ctx context.Context, scope tenancy.Scope, params ListParams) ([]models.AuctionItem, error)
	Update(ctx context.Context, scope tenancy.Scope, eventID, itemID uuid.UUID, input ItemInput) (*models.AuctionItem, error)
	ToggleActive(ctx context.Context, scope tenancy.Scope, eventID, itemID uuid.UUID) (*models.AuctionItem, error)
}

type ServiceParams struct {
	Tx     txRunner
	Repo   Repository
	Logger *logger.Logger
}

type service struct {
	tx   txRunner
	repo Repository
	logg *logger.Logger
}

// NewService wires the catalogue service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tx runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "items repository required")
	}
	return &service{tx: params.Tx, repo: params.Repo, logg: params.Logger}, nil
}

func (s *service) Create(ctx context.Context, scope tenancy.Scope, eventID uuid.UUID, input ItemInput) (*models.AuctionItem, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	input = normalize(input)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindEvent(ctx, scope.TenantID, eventID); err != nil {
		return nil, lookupError(err, "event")
	}

	item := &models.AuctionItem{
		TenantID: scope.TenantID,
		EventID:  eventID,
		IsActive: true,
	}
	apply(item, input)
	item.CurrentPriceCents = item.StartingPriceCents
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create item")
	}
	s.logInfo(ctx, "item.created", map[string]any{
		"tenant_id": scope.TenantID.String(),
		"actor_id":  scope.ActorID.String(),
		"event_id":  eventID.String(),
		"item_id":   item.ID.String(),
	})
	return item, nil
}

func (s *service) Get(ctx context.Context, scope tenancy.Scope, eventID, itemID uuid.UUID) (*models.AuctionItem, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	item, err := s.repo.Find(ctx, scope.TenantID, eventID, itemID)
	if err != nil {
		return nil, lookupError(err, "item")
	}
	return item, nil
}

// List returns the event's catalogue ordered by item number. Search matches
// name or item number, case-insensitively.
func (s *service) List(ctx context.Context, scope tenancy.Scope, params ListParams) ([]models.AuctionItem, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if params.EventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := s.repo.List(ctx, listQuery{
		TenantID:   scope.TenantID,
		EventID:    params.EventID,
		Search:     params.Search,
		ActiveOnly: params.ActiveOnly,
		Limit:      limit,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list items")
	}
	return rows, nil
}

// Update replaces the item's catalogue fields under the ledger's item lock.
func (s *service) Update(ctx context.Context, scope tenancy.Scope, eventID, itemID uuid.UUID, input ItemInput) (*models.AuctionItem, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	input = normalize(input)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var updated *models.AuctionItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := repo.Lock(ctx, scope.TenantID, eventID, itemID)
		if err != nil {
			return lookupError(err, "item")
		}
		hasWinner, err := repo.HasWinner(ctx, scope.TenantID, item.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check winning bid")
		}
		apply(item, input)
		if !hasWinner {
			item.CurrentPriceCents = item.StartingPriceCents
		}
		if err := repo.Save(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update item")
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logInfo(ctx, "item.updated", map[string]any{
		"tenant_id":     scope.TenantID.String(),
		"actor_id":      scope.ActorID.String(),
		"event_id":      eventID.String(),
		"item_id":       itemID.String(),
		"current_price": updated.CurrentPriceCents,
	})
	return updated, nil
}

// ToggleActive flips whether the item accepts bids.
func (s *service) ToggleActive(ctx context.Context, scope tenancy.Scope, eventID, itemID uuid.UUID) (*models.AuctionItem, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	var item *models.AuctionItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.Lock(ctx, scope.TenantID, eventID, itemID)
		if err != nil {
			return lookupError(err, "item")
		}
		if err := repo.SetActive(ctx, scope.TenantID, locked.ID, !locked.IsActive); err != nil {
			return lookupError(err, "item")
		}
		locked.IsActive = !locked.IsActive
		item = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logInfo(ctx, "item.active_toggled", map[string]any{
		"tenant_id": scope.TenantID.String(),
		"actor_id":  scope.ActorID.String(),
		"item_id":   itemID.String(),
		"active":    item.IsActive,
	})
	return item, nil
}

func (s *service) logInfo(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}

func normalize(input ItemInput) ItemInput {
	input.Name = strings.TrimSpace(input.Name)
	input.ItemNumber = strings.TrimSpace(input.ItemNumber)
	if input.Description != nil {
		desc := strings.TrimSpace(*input.Description)
		if desc == "" {
			input.Description = nil
		} else {
			input.Description = &desc
		}
	}
	return input
}

func validateInput(input ItemInput) error {
	switch {
	case input.Name == "":
		return fieldError("name", "name is required")
	case len(input.Name) > maxNameLength:
		return fieldError("name", "name is too long")
	case len(input.ItemNumber) > maxItemNumberLen:
		return fieldError("item_number", "item number is too long")
	case input.Description != nil && len(*input.Description) > maxDescriptionLen:
		return fieldError("description", "description is too long")
	case input.StartingPriceCents < 0 || input.StartingPriceCents > maxPriceCents:
		return fieldError("starting_price_cents", "starting price must be between 0 and 1000000.00")
	case input.BidIncrementCents <= 0 || input.BidIncrementCents > maxPriceCents:
		return fieldError("bid_increment_cents", "bid increment must be positive")
	case input.BuyNowPriceCents != nil && (*input.BuyNowPriceCents < 0 || *input.BuyNowPriceCents > maxPriceCents):
		return fieldError("buy_now_price_cents", "buy-now price must be between 0 and 1000000.00")
	case input.BiddingStartsAt != nil && input.BiddingEndsAt != nil && !input.BiddingStartsAt.Before(*input.BiddingEndsAt):
		return fieldError("bidding_ends_at", "bidding must end after it starts")
	}
	return nil
}

func apply(item *models.AuctionItem, input ItemInput) {
	item.ItemNumber = input.ItemNumber
	item.Name = input.Name
	item.Description = input.Description
	item.StartingPriceCents = input.StartingPriceCents
	item.BuyNowPriceCents = input.BuyNowPriceCents
	item.BidIncrementCents = input.BidIncrementCents
	item.BiddingStartsAt = input.BiddingStartsAt
	item.BiddingEndsAt = input.BiddingEndsAt
}

func fieldError(field, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"field": field})
}

func lookupError(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+what)
}
