package bids

import (
	"context"

	"github.com/google/uuid"

	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/pagination"
)

func (s *service) EventStats(ctx context.Context, tenantID, eventID uuid.UUID) (*EventStats, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant scope required")
	}
	rows, err := s.repo.Aggregate(ctx, tenantID, eventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate bids")
	}
	stats := &EventStats{CountByKind: map[enums.BidKind]int64{}}
	for _, row := range rows {
		stats.TotalBids += row.Count
		stats.TotalAmountCents += row.AmountCents
		stats.CountByKind[row.Kind] += row.Count
		if row.IsPaid {
			stats.PaidAmountCents += row.AmountCents
		}
		if row.IsWinning {
			stats.WinningAmountCents += row.AmountCents
			if !row.IsPaid {
				stats.UnpaidWinningCents += row.AmountCents
			}
		}
	}
	return stats, nil
}

func (s *service) ListRecent(ctx context.Context, tenantID, eventID uuid.UUID, limit int) ([]models.Bid, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant scope required")
	}
	rows, err := s.repo.ListRecent(ctx, tenantID, eventID, pagination.NormalizeLimit(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list recent bids")
	}
	return rows, nil
}

func (s *service) ListForItem(ctx context.Context, tenantID, itemID uuid.UUID, limit int) ([]models.Bid, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant scope required")
	}
	if _, err := s.repo.FindItem(ctx, tenantID, itemID); err != nil {
		return nil, lookupError(err, "auction item")
	}
	rows, err := s.repo.ListForItem(ctx, tenantID, itemID, pagination.NormalizeLimit(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list item bids")
	}
	return rows, nil
}
