package checkout

import (
	"context"

	"github.com/google/uuid"

	"github.com/biddart/biddart-backend/internal/events"
	"github.com/biddart/biddart-backend/internal/fees"
	"github.com/biddart/biddart-backend/internal/tenancy"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/pagination"
)

// Quote prices what the bidder owes right now, using the same fee schedule
// CreateSession would apply.
func (s *service) Quote(ctx context.Context, scope tenancy.Scope, input QuoteInput) (*Quote, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if input.BidderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bidder id is required")
	}
	if input.TaxCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tax must not be negative")
	}

	bidder, err := s.repo.FindBidder(ctx, scope.TenantID, input.BidderID)
	if err != nil {
		return nil, lookupError(err, "bidder")
	}
	event, err := s.repo.FindEvent(ctx, scope.TenantID, bidder.EventID)
	if err != nil {
		return nil, lookupError(err, "event")
	}
	bids, err := s.repo.CheckoutableBids(ctx, scope.TenantID, bidder.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkoutable bids")
	}

	var subtotal int64
	for _, bid := range bids {
		subtotal += bid.AmountCents
	}
	quote := &Quote{
		EventID:  bidder.EventID,
		BidderID: bidder.ID,
		Bids:     bids,
		Currency: s.currency,
	}
	// An empty quote owes nothing, not the fixed fee.
	if len(bids) > 0 {
		quote.Breakdown = fees.ComputeCents(subtotal, input.TaxCents, events.FeeConfigOf(event), s.gatewayFees)
	}
	return quote, nil
}

func (s *service) ListSessions(ctx context.Context, scope tenancy.Scope, params SessionListParams) (*SessionPage, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if params.EventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	if params.Status != "" && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown checkout status").
			WithDetails(map[string]any{"status": params.Status})
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, next, err := s.repo.ListSessions(ctx, sessionQuery{
		TenantID: scope.TenantID,
		EventID:  params.EventID,
		BidderID: params.BidderID,
		Status:   params.Status,
		Limit:    params.Limit,
		Cursor:   cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list checkout sessions")
	}
	page := &SessionPage{Sessions: rows}
	if next != nil {
		page.Cursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}
