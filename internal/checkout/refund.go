package checkout

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/internal/fees"
	"github.com/biddart/biddart-backend/internal/payments"
	"github.com/biddart/biddart-backend/internal/tenancy"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/outbox/payloads"
)

// Refund returns money for a completed session. Card refunds go through the
// gateway first; the session only changes once the gateway has accepted.
// Bids become unpaid again only when the full total is refunded.
func (s *service) Refund(ctx context.Context, scope tenancy.Scope, sessionID uuid.UUID, input RefundInput) (*models.CheckoutSession, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	session, err := s.repo.FindSession(ctx, scope.TenantID, sessionID)
	if err != nil {
		return nil, lookupError(err, "checkout session")
	}
	if session.Status != enums.CheckoutStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeRefundNotAllowed, "only completed checkout sessions can be refunded").
			WithDetails(map[string]any{"status": session.Status})
	}

	amount := session.TotalCents
	if input.AmountCents != nil {
		amount = *input.AmountCents
	}
	if amount <= 0 || amount > session.TotalCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be greater than $0.00 and at most $"+fees.FormatCents(session.TotalCents)).
			WithDetails(map[string]any{"amount_cents": amount, "total_cents": session.TotalCents})
	}
	full := amount == session.TotalCents
	reason := strings.TrimSpace(input.Reason)

	fields := sessionFields(scope, session)
	fields["refund_cents"] = amount
	fields["full_refund"] = full

	var refundID string
	if session.PaymentMethod == enums.PaymentMethodCard {
		// A refund sent to the gateway is recorded even if the caller leaves.
		detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refundTimeout+settleTimeout)
		defer cancel()
		ctx = detached
		refundID, err = s.refundAtGateway(ctx, session, amount, reason, fields)
		if err != nil {
			return nil, err
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now()
		updates := map[string]any{
			"refunded_cents": amount,
			"refunded_at":    now,
			"processed_by":   scope.Actor(),
		}
		if refundID != "" {
			updates["external_refund_id"] = refundID
		}
		if reason != "" {
			updates["refund_reason"] = reason
		}
		ok, err := repo.Transition(ctx, scope.TenantID, session.ID, enums.CheckoutStatusCompleted, enums.CheckoutStatusRefunded, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund checkout session")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeRefundNotAllowed, "checkout session was refunded concurrently")
		}
		bidIDs, err := repo.SessionBidIDs(ctx, scope.TenantID, session.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session bids")
		}
		if err := repo.ReleaseLines(ctx, scope.TenantID, session.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release session bids")
		}
		if full {
			if err := repo.SetBidsPaid(ctx, scope.TenantID, bidIDs, false); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark bids unpaid")
			}
		}

		session.Status = enums.CheckoutStatusRefunded
		session.RefundedCents = amount
		session.RefundedAt = &now
		if refundID != "" {
			session.ExternalRefundID = &refundID
		}
		if reason != "" {
			session.RefundReason = &reason
		}
		return s.emit(ctx, tx, scope, enums.EventCheckoutRefunded, session, bidIDs, func(e *payloads.CheckoutEvent) {
			e.RefundedCents = amount
			e.FullRefund = full
		})
	})
	if err != nil {
		if refundID != "" {
			fields["external_refund_id"] = refundID
			s.logError(ctx, "checkout.refund.not_recorded", err, fields)
		}
		return nil, err
	}

	s.record(session.PaymentMethod.String(), "refunded")
	s.logInfo(ctx, "checkout.session.refunded", fields)
	return session, nil
}

func (s *service) refundAtGateway(ctx context.Context, session *models.CheckoutSession, amount int64, reason string, fields map[string]any) (string, error) {
	if session.ExternalPaymentID == nil || *session.ExternalPaymentID == "" {
		return "", pkgerrors.New(pkgerrors.CodeRefundNotAllowed, "card session has no gateway payment to refund")
	}
	refundCtx, cancel := context.WithTimeout(ctx, s.refundTimeout)
	defer cancel()

	started := time.Now()
	result, err := s.gateway.Refund(refundCtx, payments.RefundRequest{
		ExternalPaymentID: *session.ExternalPaymentID,
		AmountCents:       amount,
		Currency:          string(session.Currency),
		Reason:            reason,
		IdempotencyKey:    refundIdempotencyKey(session.ID),
	})
	if err != nil {
		gwErr := payments.AsGatewayError(err)
		s.observeGateway("refund", string(gwErr.Kind), started)
		fields["detail"] = gwErr.Detail
		s.logWarn(ctx, "checkout.refund.gateway_failed", fields)
		if gwErr.Kind == payments.ErrorKindDeclined {
			detail := gwErr.Detail
			if detail == "" {
				detail = "refund declined"
			}
			return "", pkgerrors.New(pkgerrors.CodePaymentDeclined, detail)
		}
		return "", pkgerrors.Wrap(pkgerrors.CodePaymentGatewayUnavailable, gwErr, "payment gateway could not process the refund, try again")
	}
	s.observeGateway("refund", "success", started)
	return result.ExternalRefundID, nil
}
