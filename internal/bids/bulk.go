package bids

import (
	"bytes"
	"context"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/internal/tenancy"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/outbox"
	"github.com/biddart/biddart-backend/pkg/outbox/payloads"
)

// BulkAction applies a staff operation to a selection of bids. Bids that cannot
// be changed are reported in Skipped instead of failing the whole request.
func (s *service) BulkAction(ctx context.Context, scope tenancy.Scope, input BulkActionInput) (*BulkActionResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if !input.Action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown bulk action").
			WithDetails(map[string]any{"action": input.Action})
	}
	ids := dedupe(input.BidIDs)
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "select at least one bid")
	}
	if input.Action == enums.BidBulkActionMarkPaid && !s.allowBulkMarkPay {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "marking bids paid outside checkout is disabled")
	}

	result := &BulkActionResult{Action: input.Action, Skipped: []SkippedBid{}}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		result.Affected = 0
		result.Skipped = result.Skipped[:0]

		rows, err := repo.FindBids(ctx, scope.TenantID, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bids")
		}
		found := make(map[uuid.UUID]models.Bid, len(rows))
		for _, bid := range rows {
			if input.ItemID != nil && bid.AuctionItemID != *input.ItemID {
				continue
			}
			found[bid.ID] = bid
		}

		items, err := lockItems(ctx, repo, scope.TenantID, found)
		if err != nil {
			return err
		}
		attached, err := repo.AttachedBidIDs(ctx, scope.TenantID, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check checkout attachment")
		}

		var selected []models.Bid
		for _, id := range ids {
			bid, ok := found[id]
			switch {
			case !ok:
				result.Skipped = append(result.Skipped, SkippedBid{BidID: id, Reason: skipReasonMissing})
			case attached[id]:
				result.Skipped = append(result.Skipped, SkippedBid{BidID: id, Reason: skipReasonAttached})
			case input.Action == enums.BidBulkActionDelete && bid.IsPaid:
				result.Skipped = append(result.Skipped, SkippedBid{BidID: id, Reason: skipReasonPaid})
			case input.Action == enums.BidBulkActionMarkPaid && bid.IsPaid,
				input.Action == enums.BidBulkActionMarkUnpaid && !bid.IsPaid:
				result.Skipped = append(result.Skipped, SkippedBid{BidID: id, Reason: skipReasonNoChange})
			default:
				selected = append(selected, bid)
			}
		}
		if len(selected) == 0 {
			return nil
		}

		switch input.Action {
		case enums.BidBulkActionDelete:
			return s.bulkDelete(ctx, tx, repo, scope, selected, items, result)
		default:
			paid := input.Action == enums.BidBulkActionMarkPaid
			affected, err := repo.SetPaid(ctx, scope.TenantID, bidIDsOf(selected), paid)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update bid payment flags")
			}
			result.Affected = int(affected)
			return nil
		}
	})
	if err != nil {
		return nil, err
	}

	s.logInfo(ctx, "bids.bulk_action", map[string]any{
		"tenant_id": scope.TenantID.String(),
		"actor_id":  scope.ActorID.String(),
		"action":    input.Action,
		"affected":  result.Affected,
		"skipped":   len(result.Skipped),
	})
	return result, nil
}

func (s *service) bulkDelete(ctx context.Context, tx *gorm.DB, repo Repository, scope tenancy.Scope, selected []models.Bid, items map[uuid.UUID]*models.AuctionItem, result *BulkActionResult) error {
	touched := map[uuid.UUID]bool{}
	for _, bid := range selected {
		if err := repo.DeleteBid(ctx, scope.TenantID, bid.ID); err != nil {
			return lookupError(err, "bid")
		}
		touched[bid.AuctionItemID] = true
		result.Affected++
	}

	prices := map[uuid.UUID]int64{}
	winners := map[uuid.UUID]*models.Bid{}
	for _, itemID := range sortedIDs(touched) {
		winner, price, err := recomputeWinner(ctx, repo, scope.TenantID, items[itemID])
		if err != nil {
			return err
		}
		prices[itemID] = price
		winners[itemID] = winner
	}

	for _, bid := range selected {
		event := payloads.BidWithdrawnEvent{
			BidID:             bid.ID,
			AuctionItemID:     bid.AuctionItemID,
			BidderID:          bid.BidderID,
			CurrentPriceCents: prices[bid.AuctionItemID],
		}
		if winner := winners[bid.AuctionItemID]; winner != nil {
			event.WinningBidID = &winner.ID
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			TenantID:      scope.TenantID,
			EventType:     enums.EventBidWithdrawn,
			AggregateType: enums.AggregateBid,
			AggregateID:   bid.ID,
			ActorID:       scope.ActorID,
			Data:          event,
		}); err != nil {
			return err
		}
	}
	return nil
}

// lockItems locks every item referenced by the bids in a stable order.
func lockItems(ctx context.Context, repo Repository, tenantID uuid.UUID, bids map[uuid.UUID]models.Bid) (map[uuid.UUID]*models.AuctionItem, error) {
	itemIDs := map[uuid.UUID]bool{}
	for _, bid := range bids {
		itemIDs[bid.AuctionItemID] = true
	}
	items := make(map[uuid.UUID]*models.AuctionItem, len(itemIDs))
	for _, id := range sortedIDs(itemIDs) {
		item, err := repo.LockItem(ctx, tenantID, id)
		if err != nil {
			return nil, lookupError(err, "auction item")
		}
		items[id] = item
	}
	return items, nil
}

func sortedIDs(set map[uuid.UUID]bool) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func bidIDsOf(bids []models.Bid) []uuid.UUID {
	ids := make([]uuid.UUID, len(bids))
	for i, bid := range bids {
		ids[i] = bid.ID
	}
	return ids
}
