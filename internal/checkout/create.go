package checkout

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/internal/events"
	"github.com/biddart/biddart-backend/internal/fees"
	"github.com/biddart/biddart-backend/internal/tenancy"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/outbox"
	"github.com/biddart/biddart-backend/pkg/outbox/payloads"
)

func (s *service) CreateSession(ctx context.Context, scope tenancy.Scope, input CreateSessionInput) (*models.CheckoutSession, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method must be card, cash or check").
			WithDetails(map[string]any{"payment_method": input.PaymentMethod})
	}
	if input.TaxCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tax must not be negative")
	}
	if input.BidderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bidder id is required")
	}
	bidIDs := dedupe(input.BidIDs)
	if len(bidIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "select at least one bid")
	}

	var session *models.CheckoutSession
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		bidder, err := repo.LockBidder(ctx, scope.TenantID, input.BidderID)
		if err != nil {
			return lookupError(err, "bidder")
		}
		event, err := repo.FindEvent(ctx, scope.TenantID, bidder.EventID)
		if err != nil {
			return lookupError(err, "event")
		}
		bids, err := repo.FindBids(ctx, scope.TenantID, bidIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bids")
		}
		attached, err := repo.AttachedBidIDs(ctx, scope.TenantID, bidIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check checkout attachment")
		}

		selected, err := selectBids(bidder, bidIDs, bids, attached)
		if err != nil {
			return err
		}

		var subtotal int64
		for _, bid := range selected {
			subtotal += bid.AmountCents
		}
		breakdown := fees.ComputeCents(subtotal, input.TaxCents, events.FeeConfigOf(event), s.gatewayFees)

		session = &models.CheckoutSession{
			TenantID:           scope.TenantID,
			EventID:            bidder.EventID,
			BidderID:           bidder.ID,
			SubtotalCents:      breakdown.SubtotalCents,
			TaxCents:           breakdown.TaxCents,
			PlatformFeeCents:   breakdown.PlatformFeeCents,
			ProcessingFeeCents: breakdown.ProcessingFeeCents,
			TotalCents:         breakdown.TotalCents,
			Currency:           s.currency,
			PaymentMethod:      input.PaymentMethod,
			Status:             enums.CheckoutStatusPending,
			CreatedBy:          scope.Actor(),
			CreatedAt:          s.now(),
		}
		if err := repo.CreateSession(ctx, session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert checkout session")
		}

		lines := make([]models.CheckoutSessionBid, len(selected))
		for i, bid := range selected {
			name := ""
			if bid.AuctionItem != nil {
				name = bid.AuctionItem.Name
			}
			lines[i] = models.CheckoutSessionBid{
				TenantID:    scope.TenantID,
				SessionID:   session.ID,
				BidID:       bid.ID,
				ItemName:    name,
				AmountCents: bid.AmountCents,
				CreatedAt:   session.CreatedAt,
			}
		}
		if err := repo.CreateLines(ctx, lines); err != nil {
			if isActiveLineViolation(err) {
				return pkgerrors.Wrap(pkgerrors.CodeInvalidBidSelection, err, "a selected bid was attached to another checkout session")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert checkout lines")
		}
		session.Lines = lines

		return s.emit(ctx, tx, scope, enums.EventCheckoutCreated, session, bidIDsOf(selected), nil)
	})
	if err != nil {
		return nil, err
	}

	fields := sessionFields(scope, session)
	fields["bid_count"] = len(session.Lines)
	s.logInfo(ctx, "checkout.session.created", fields)
	return session, nil
}

// selectBids checks every requested bid and keeps the request order.
func selectBids(bidder *models.Bidder, bidIDs []uuid.UUID, bids []models.Bid, attached map[uuid.UUID]bool) ([]models.Bid, error) {
	byID := make(map[uuid.UUID]models.Bid, len(bids))
	for _, bid := range bids {
		byID[bid.ID] = bid
	}

	var invalid []InvalidBid
	selected := make([]models.Bid, 0, len(bidIDs))
	for _, id := range bidIDs {
		bid, ok := byID[id]
		switch {
		case !ok:
			invalid = append(invalid, InvalidBid{BidID: id, Reason: reasonNotFound})
		case bid.BidderID != bidder.ID:
			invalid = append(invalid, InvalidBid{BidID: id, Reason: reasonOtherBidder})
		case !bid.IsWinning:
			invalid = append(invalid, InvalidBid{BidID: id, Reason: reasonNotWinning})
		case bid.IsPaid:
			invalid = append(invalid, InvalidBid{BidID: id, Reason: reasonAlreadyPaid})
		case attached[id]:
			invalid = append(invalid, InvalidBid{BidID: id, Reason: reasonInAnotherRun})
		default:
			selected = append(selected, bid)
		}
	}
	if len(invalid) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidBidSelection, "some selected bids cannot be checked out").
			WithDetails(map[string]any{"bids": invalid})
	}
	return selected, nil
}

// emit writes a checkout.* event for the session inside tx.
func (s *service) emit(ctx context.Context, tx *gorm.DB, scope tenancy.Scope, eventType enums.OutboxEventType, session *models.CheckoutSession, bidIDs []uuid.UUID, mutate func(*payloads.CheckoutEvent)) error {
	data := payloads.CheckoutEvent{
		SessionID:     session.ID,
		EventID:       session.EventID,
		BidderID:      session.BidderID,
		Status:        session.Status,
		PaymentMethod: session.PaymentMethod,
		TotalCents:    session.TotalCents,
		BidIDs:        bidIDs,
		OccurredAt:    s.now(),
	}
	if session.ExternalPaymentID != nil {
		data.ExternalPaymentID = *session.ExternalPaymentID
	}
	if mutate != nil {
		mutate(&data)
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		TenantID:      scope.TenantID,
		EventType:     eventType,
		AggregateType: enums.AggregateCheckoutSession,
		AggregateID:   session.ID,
		ActorID:       scope.ActorID,
		Data:          data,
		OccurredAt:    data.OccurredAt,
	})
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
