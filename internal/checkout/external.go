package checkout

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/internal/payments"
	"github.com/biddart/biddart-backend/internal/tenancy"
	"github.com/biddart/biddart-backend/pkg/enums"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/outbox/payloads"
)

// SettlePaid applies a payment confirmed outside the charge call to a session
// left processing (commit failed) or failed (outcome unknown). A failed
// session only recovers when none of its bids moved on in the meantime.
func (s *service) SettlePaid(ctx context.Context, tx *gorm.DB, scope tenancy.Scope, sessionID uuid.UUID, payment payments.PaymentStatus) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	session, err := repo.FindSession(ctx, scope.TenantID, sessionID)
	if err != nil {
		return lookupError(err, "checkout session")
	}

	switch session.Status {
	case enums.CheckoutStatusCompleted:
		if session.ExternalPaymentID == nil || *session.ExternalPaymentID == payment.ID {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session was completed with a different payment").
			WithDetails(map[string]any{"external_payment_id": *session.ExternalPaymentID})
	case enums.CheckoutStatusProcessing:
		return s.applyCharged(ctx, tx, scope, session, enums.CheckoutStatusProcessing, payment)
	case enums.CheckoutStatusFailed:
		if err := s.reclaimBids(ctx, tx, scope, sessionID); err != nil {
			return err
		}
		return s.applyCharged(ctx, tx, scope, session, enums.CheckoutStatusFailed, payment)
	default:
		return statusConflict(session.Status, enums.CheckoutStatusProcessing)
	}
}

// reclaimBids re-attaches a failed session's bids if they are still free.
func (s *service) reclaimBids(ctx context.Context, tx *gorm.DB, scope tenancy.Scope, sessionID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	bidIDs, err := repo.SessionBidIDs(ctx, scope.TenantID, sessionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session bids")
	}
	bids, err := repo.FindBids(ctx, scope.TenantID, bidIDs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bids")
	}
	attached, err := repo.AttachedBidIDs(ctx, scope.TenantID, bidIDs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check checkout attachment")
	}

	present := make(map[uuid.UUID]bool, len(bids))
	var conflicts []InvalidBid
	for _, bid := range bids {
		present[bid.ID] = true
		switch {
		case attached[bid.ID]:
			conflicts = append(conflicts, InvalidBid{BidID: bid.ID, Reason: reasonInAnotherRun})
		case bid.IsPaid:
			conflicts = append(conflicts, InvalidBid{BidID: bid.ID, Reason: reasonAlreadyPaid})
		}
	}
	for _, id := range bidIDs {
		if !present[id] {
			conflicts = append(conflicts, InvalidBid{BidID: id, Reason: reasonNotFound})
		}
	}
	if len(conflicts) > 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "bids of this session were settled elsewhere; refund the payment instead").
			WithDetails(map[string]any{"bids": conflicts})
	}
	if err := repo.ReattachLines(ctx, scope.TenantID, sessionID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reattach session bids")
	}
	return nil
}

// SettleNotCharged records that the gateway never captured the payment.
func (s *service) SettleNotCharged(ctx context.Context, tx *gorm.DB, scope tenancy.Scope, sessionID uuid.UUID, reason string) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	session, err := s.repo.WithTx(tx).FindSession(ctx, scope.TenantID, sessionID)
	if err != nil {
		return lookupError(err, "checkout session")
	}

	switch session.Status {
	case enums.CheckoutStatusFailed, enums.CheckoutStatusPending:
		return nil
	case enums.CheckoutStatusProcessing:
		if reason == "" {
			reason = "payment not charged"
		}
		bidIDs, err := s.failSession(ctx, tx, scope, session, reason)
		if err != nil {
			return err
		}
		return s.emit(ctx, tx, scope, enums.EventCheckoutFailed, session, bidIDs, func(e *payloads.CheckoutEvent) {
			e.FailureReason = reason
		})
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session is "+session.Status.String()+"; refund it instead")
	}
}
