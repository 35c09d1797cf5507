package bids

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/internal/fees"
	"github.com/biddart/biddart-backend/internal/tenancy"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/outbox"
	"github.com/biddart/biddart-backend/pkg/outbox/payloads"
)

// NextMinimumBid is the lowest acceptable standard bid for the item.
// An item without a winning bid starts from its starting price.
func NextMinimumBid(item *models.AuctionItem) int64 {
	current := item.CurrentPriceCents
	if current <= 0 {
		current = item.StartingPriceCents
	}
	return current + item.BidIncrementCents
}

// BiddingOpen reports whether the item accepts bids at now.
func BiddingOpen(item *models.AuctionItem, now time.Time) bool {
	if !item.IsActive {
		return false
	}
	if item.BiddingStartsAt != nil && now.Before(*item.BiddingStartsAt) {
		return false
	}
	if item.BiddingEndsAt != nil && now.After(*item.BiddingEndsAt) {
		return false
	}
	return true
}

func (s *service) NextMinimumBidForItem(ctx context.Context, scope tenancy.Scope, itemID uuid.UUID) (int64, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	item, err := s.repo.FindItem(ctx, scope.TenantID, itemID)
	if err != nil {
		return 0, lookupError(err, "auction item")
	}
	return NextMinimumBid(item), nil
}

func (s *service) PlaceBid(ctx context.Context, scope tenancy.Scope, input PlaceBidInput) (*models.Bid, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if input.Kind == "" {
		input.Kind = enums.BidKindStandard
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown bid kind").
			WithDetails(map[string]any{"kind": input.Kind})
	}
	if input.ItemID == uuid.Nil || input.BidderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id and bidder id are required")
	}

	var placed *models.Bid
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		item, err := repo.LockItem(ctx, scope.TenantID, input.ItemID)
		if err != nil {
			return lookupError(err, "auction item")
		}
		if err := s.checkBid(item, input); err != nil {
			return err
		}
		if _, err := repo.FindBidderInEvent(ctx, scope.TenantID, item.EventID, input.BidderID); err != nil {
			return lookupError(err, "bidder")
		}

		bid := &models.Bid{
			TenantID:      scope.TenantID,
			EventID:       item.EventID,
			AuctionItemID: item.ID,
			BidderID:      input.BidderID,
			AmountCents:   input.AmountCents,
			Kind:          input.Kind,
			IsWinning:     input.Kind.Competes(),
			CreatedBy:     scope.Actor(),
			CreatedAt:     s.now(),
		}
		if notes := strings.TrimSpace(input.Notes); notes != "" {
			bid.Notes = &notes
		}

		currentPrice := item.CurrentPriceCents
		if bid.IsWinning {
			if err := repo.ClearWinners(ctx, scope.TenantID, item.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear winning bids")
			}
		}
		if err := repo.CreateBid(ctx, bid); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert bid")
		}
		if bid.IsWinning {
			currentPrice = bid.AmountCents
			if err := repo.UpdateItemPrice(ctx, scope.TenantID, item.ID, currentPrice); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update current price")
			}
		}

		placed = bid
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			TenantID:      scope.TenantID,
			EventType:     enums.EventBidPlaced,
			AggregateType: enums.AggregateBid,
			AggregateID:   bid.ID,
			ActorID:       scope.ActorID,
			Data: payloads.BidPlacedEvent{
				BidID:             bid.ID,
				EventID:           bid.EventID,
				AuctionItemID:     bid.AuctionItemID,
				BidderID:          bid.BidderID,
				Kind:              bid.Kind,
				AmountCents:       bid.AmountCents,
				IsWinning:         bid.IsWinning,
				CurrentPriceCents: currentPrice,
			},
		})
	})
	if err != nil {
		s.recordBid(input.Kind.String(), outcomeOf(err))
		return nil, err
	}

	s.recordBid(input.Kind.String(), "accepted")
	s.logInfo(ctx, "bid.placed", map[string]any{
		"tenant_id":    scope.TenantID.String(),
		"actor_id":     scope.ActorID.String(),
		"bid_id":       placed.ID.String(),
		"item_id":      placed.AuctionItemID.String(),
		"kind":         placed.Kind,
		"amount_cents": placed.AmountCents,
	})
	return placed, nil
}

// checkBid applies the acceptance rules in order; the first failure wins.
func (s *service) checkBid(item *models.AuctionItem, input PlaceBidInput) error {
	if !BiddingOpen(item, s.now()) {
		return pkgerrors.New(pkgerrors.CodeBiddingClosed, "bidding is closed for this item").
			WithDetails(map[string]any{"item_id": item.ID})
	}
	switch input.Kind {
	case enums.BidKindStandard:
		minimum := NextMinimumBid(item)
		if input.AmountCents < minimum {
			return pkgerrors.New(pkgerrors.CodeBidTooLow, "bid must be at least $"+fees.FormatCents(minimum)).
				WithDetails(map[string]any{"minimum_cents": minimum, "amount_cents": input.AmountCents})
		}
	case enums.BidKindBuyNow:
		if item.BuyNowPriceCents == nil || *item.BuyNowPriceCents <= 0 {
			return pkgerrors.New(pkgerrors.CodeBuyNowUnavailable, "buy now is not available for this item")
		}
		if input.AmountCents != *item.BuyNowPriceCents {
			return pkgerrors.New(pkgerrors.CodeBuyNowUnavailable, "buy now amount must equal $"+fees.FormatCents(*item.BuyNowPriceCents)).
				WithDetails(map[string]any{"buy_now_cents": *item.BuyNowPriceCents, "amount_cents": input.AmountCents})
		}
	default:
		if input.AmountCents < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
		}
	}
	return nil
}

func (s *service) WithdrawBid(ctx context.Context, scope tenancy.Scope, bidID uuid.UUID) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	existing, err := s.repo.FindBid(ctx, scope.TenantID, bidID)
	if err != nil {
		return lookupError(err, "bid")
	}

	var event payloads.BidWithdrawnEvent
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		item, err := repo.LockItem(ctx, scope.TenantID, existing.AuctionItemID)
		if err != nil {
			return lookupError(err, "auction item")
		}
		bid, err := repo.FindBid(ctx, scope.TenantID, bidID)
		if err != nil {
			return lookupError(err, "bid")
		}
		if bid.IsPaid {
			return pkgerrors.New(pkgerrors.CodeCannotModifyPaidBid, "paid bids cannot be withdrawn")
		}
		attached, err := repo.AttachedBidIDs(ctx, scope.TenantID, []uuid.UUID{bid.ID})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check checkout attachment")
		}
		if attached[bid.ID] {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "bid is part of an active checkout session")
		}
		if err := repo.DeleteBid(ctx, scope.TenantID, bid.ID); err != nil {
			return lookupError(err, "bid")
		}

		winner, price, err := recomputeWinner(ctx, repo, scope.TenantID, item)
		if err != nil {
			return err
		}
		event = payloads.BidWithdrawnEvent{
			BidID:             bid.ID,
			AuctionItemID:     item.ID,
			BidderID:          bid.BidderID,
			CurrentPriceCents: price,
		}
		if winner != nil {
			event.WinningBidID = &winner.ID
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			TenantID:      scope.TenantID,
			EventType:     enums.EventBidWithdrawn,
			AggregateType: enums.AggregateBid,
			AggregateID:   bid.ID,
			ActorID:       scope.ActorID,
			Data:          event,
		})
	})
	if err != nil {
		return err
	}

	s.logInfo(ctx, "bid.withdrawn", map[string]any{
		"tenant_id":           scope.TenantID.String(),
		"actor_id":            scope.ActorID.String(),
		"bid_id":              bidID.String(),
		"item_id":             event.AuctionItemID.String(),
		"current_price_cents": event.CurrentPriceCents,
	})
	return nil
}

// recomputeWinner re-derives the winning bid and current price of a locked item.
func recomputeWinner(ctx context.Context, repo Repository, tenantID uuid.UUID, item *models.AuctionItem) (*models.Bid, int64, error) {
	top, err := repo.TopCompetingBid(ctx, tenantID, item.ID)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find top bid")
	}
	if err := repo.ClearWinners(ctx, tenantID, item.ID); err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear winning bids")
	}
	price := item.StartingPriceCents
	if top != nil {
		if err := repo.SetWinning(ctx, tenantID, top.ID); err != nil {
			return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark winning bid")
		}
		price = top.AmountCents
	}
	if err := repo.UpdateItemPrice(ctx, tenantID, item.ID, price); err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update current price")
	}
	return top, price, nil
}

func lookupError(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+what)
}

func outcomeOf(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return string(typed.Code())
	}
	return "error"
}
