package checkout

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/internal/payments"
	"github.com/biddart/biddart-backend/internal/reconciliation"
	"github.com/biddart/biddart-backend/internal/tenancy"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/outbox/payloads"
)

// CompleteCashOrCheck settles an offline payment. The status change and the
// paid flags commit together or not at all.
func (s *service) CompleteCashOrCheck(ctx context.Context, scope tenancy.Scope, sessionID uuid.UUID) (*models.CheckoutSession, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	var session *models.CheckoutSession
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		session, err = repo.FindSession(ctx, scope.TenantID, sessionID)
		if err != nil {
			return lookupError(err, "checkout session")
		}
		if !session.PaymentMethod.IsOffline() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only cash or check sessions can be completed without a charge")
		}
		if session.Status != enums.CheckoutStatusPending {
			return statusConflict(session.Status, enums.CheckoutStatusPending)
		}

		now := s.now()
		ok, err := repo.Transition(ctx, scope.TenantID, session.ID, enums.CheckoutStatusPending, enums.CheckoutStatusCompleted, map[string]any{
			"completed_at": now,
			"processed_by": scope.Actor(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete checkout session")
		}
		if !ok {
			return statusConflict(session.Status, enums.CheckoutStatusPending)
		}
		bidIDs := lineBidIDs(session)
		if err := repo.SetBidsPaid(ctx, scope.TenantID, bidIDs, true); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark bids paid")
		}

		session.Status = enums.CheckoutStatusCompleted
		session.CompletedAt = &now
		session.ProcessedBy = scope.Actor()
		return s.emit(ctx, tx, scope, enums.EventCheckoutCompleted, session, bidIDs, nil)
	})
	if err != nil {
		return nil, err
	}

	s.record(session.PaymentMethod.String(), "completed")
	s.logInfo(ctx, "checkout.session.completed", sessionFields(scope, session))
	return session, nil
}

// ChargeCard charges a pending card session through the gateway.
//
// The session is moved to processing before the call so a concurrent charge
// for the same session fails fast. No database lock is held while the gateway
// is working.
func (s *service) ChargeCard(ctx context.Context, scope tenancy.Scope, sessionID uuid.UUID, paymentToken string) (*Receipt, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	paymentToken = strings.TrimSpace(paymentToken)
	if paymentToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment token is required")
	}

	session, err := s.repo.FindSession(ctx, scope.TenantID, sessionID)
	if err != nil {
		return nil, lookupError(err, "checkout session")
	}
	if session.PaymentMethod != enums.PaymentMethodCard {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only card sessions can be charged")
	}
	if session.Status != enums.CheckoutStatusPending {
		return nil, statusConflict(session.Status, enums.CheckoutStatusPending)
	}

	key := IdempotencyKey(session.ID)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Transition(ctx, scope.TenantID, session.ID, enums.CheckoutStatusPending, enums.CheckoutStatusProcessing, map[string]any{
			"idempotency_key": key,
			"processed_by":    scope.Actor(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "start card charge")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session is already being charged")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	session.Status = enums.CheckoutStatusProcessing
	session.IdempotencyKey = &key

	fields := sessionFields(scope, session)
	fields["idempotency_key"] = key

	// From here on the caller going away must not abandon the charge or its
	// record: both run detached from ctx cancellation.
	detached := context.WithoutCancel(ctx)
	chargeCtx, cancel := context.WithTimeout(detached, s.chargeTimeout)
	started := time.Now()
	result, chargeErr := s.gateway.Charge(chargeCtx, payments.ChargeRequest{
		AmountCents:    session.TotalCents,
		Currency:       string(session.Currency),
		SourceToken:    paymentToken,
		ReferenceID:    session.ID.String(),
		IdempotencyKey: key,
		Note:           "Auction checkout " + session.ID.String(),
	})
	cancel()

	persistCtx, cancelPersist := context.WithTimeout(detached, settleTimeout)
	defer cancelPersist()

	if chargeErr != nil {
		gwErr := payments.AsGatewayError(chargeErr)
		s.observeGateway("charge", string(gwErr.Kind), started)
		switch gwErr.Kind {
		case payments.ErrorKindDeclined:
			return nil, s.chargeDeclined(persistCtx, scope, session, gwErr, fields)
		case payments.ErrorKindUnavailable:
			return nil, s.chargeUnavailable(persistCtx, scope, session, gwErr, fields)
		default:
			return nil, s.chargeOutcomeUnknown(persistCtx, scope, session, gwErr, fields)
		}
	}
	s.observeGateway("charge", "success", started)
	fields["external_payment_id"] = result.ExternalPaymentID

	completeErr := s.tx.WithTx(persistCtx, func(tx *gorm.DB) error {
		return s.applyCharged(persistCtx, tx, scope, session, enums.CheckoutStatusProcessing, payments.PaymentStatus{
			ID:            result.ExternalPaymentID,
			Status:        result.Status,
			ReceiptURL:    result.ReceiptURL,
			ReceiptNumber: result.ReceiptNumber,
			AmountCents:   session.TotalCents,
		})
	})
	if completeErr != nil {
		return nil, s.chargeCommitFailed(persistCtx, scope, session, result, completeErr, fields)
	}

	s.record(session.PaymentMethod.String(), "completed")
	s.logInfo(ctx, "checkout.charge.succeeded", fields)
	return &Receipt{
		SessionID:         session.ID,
		Status:            enums.CheckoutStatusCompleted,
		TotalCents:        session.TotalCents,
		ExternalPaymentID: result.ExternalPaymentID,
		ReceiptURL:        result.ReceiptURL,
		ReceiptNumber:     result.ReceiptNumber,
	}, nil
}

// applyCharged completes a session from status from with a captured payment.
func (s *service) applyCharged(ctx context.Context, tx *gorm.DB, scope tenancy.Scope, session *models.CheckoutSession, from enums.CheckoutStatus, payment payments.PaymentStatus) error {
	repo := s.repo.WithTx(tx)
	now := s.now()
	updates := map[string]any{
		"external_payment_id": payment.ID,
		"completed_at":        now,
		"failure_reason":      nil,
	}
	if payment.ReceiptURL != "" {
		updates["receipt_url"] = payment.ReceiptURL
	}
	if payment.ReceiptNumber != "" {
		updates["receipt_number"] = payment.ReceiptNumber
	}
	ok, err := repo.Transition(ctx, scope.TenantID, session.ID, from, enums.CheckoutStatusCompleted, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete checkout session")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session changed while charging")
	}

	bidIDs, err := repo.SessionBidIDs(ctx, scope.TenantID, session.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session bids")
	}
	if err := repo.SetBidsPaid(ctx, scope.TenantID, bidIDs, true); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark bids paid")
	}

	session.Status = enums.CheckoutStatusCompleted
	session.CompletedAt = &now
	session.ExternalPaymentID = ptr(payment.ID)
	session.FailureReason = nil
	return s.emit(ctx, tx, scope, enums.EventCheckoutCompleted, session, bidIDs, nil)
}

// failSession marks a processing session failed and frees its bids for a new session.
func (s *service) failSession(ctx context.Context, tx *gorm.DB, scope tenancy.Scope, session *models.CheckoutSession, reason string) ([]uuid.UUID, error) {
	repo := s.repo.WithTx(tx)
	now := s.now()
	ok, err := repo.Transition(ctx, scope.TenantID, session.ID, enums.CheckoutStatusProcessing, enums.CheckoutStatusFailed, map[string]any{
		"failure_reason": reason,
		"failed_at":      now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail checkout session")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session changed while charging")
	}
	if err := repo.ReleaseLines(ctx, scope.TenantID, session.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release session bids")
	}
	bidIDs, err := repo.SessionBidIDs(ctx, scope.TenantID, session.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session bids")
	}
	session.Status = enums.CheckoutStatusFailed
	session.FailureReason = &reason
	session.FailedAt = &now
	return bidIDs, nil
}

func (s *service) chargeDeclined(ctx context.Context, scope tenancy.Scope, session *models.CheckoutSession, gwErr *payments.GatewayError, fields map[string]any) error {
	detail := strings.TrimSpace(gwErr.Detail)
	if detail == "" {
		detail = "payment declined"
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		bidIDs, err := s.failSession(ctx, tx, scope, session, detail)
		if err != nil {
			return err
		}
		return s.emit(ctx, tx, scope, enums.EventCheckoutFailed, session, bidIDs, func(e *payloads.CheckoutEvent) {
			e.FailureReason = detail
		})
	})
	fields["detail"] = detail
	if err != nil {
		// Still processing: a staff resolution as not charged fails it.
		s.logError(ctx, "checkout.charge.decline_not_recorded", err, fields)
		if _, openErr := s.cases.Open(ctx, nil, reconciliation.OpenInput{
			TenantID:       scope.TenantID,
			SessionID:      session.ID,
			Reason:         enums.ReconciliationReasonOutcomeUnknown,
			IdempotencyKey: IdempotencyKey(session.ID),
			AmountCents:    session.TotalCents,
			Detail:         "declined, not recorded: " + detail,
		}); openErr != nil {
			s.logError(ctx, "checkout.reconciliation_case_not_recorded", openErr, fields)
		}
	}

	s.record(session.PaymentMethod.String(), "declined")
	s.logWarn(ctx, "checkout.charge.declined", fields)
	return pkgerrors.New(pkgerrors.CodePaymentDeclined, detail)
}

func (s *service) chargeUnavailable(ctx context.Context, scope tenancy.Scope, session *models.CheckoutSession, gwErr *payments.GatewayError, fields map[string]any) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Transition(ctx, scope.TenantID, session.ID, enums.CheckoutStatusProcessing, enums.CheckoutStatusPending, nil)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session changed while charging")
		}
		return nil
	})
	if err != nil {
		s.logError(ctx, "checkout.charge.revert_failed", err, fields)
	} else {
		session.Status = enums.CheckoutStatusPending
	}

	s.record(session.PaymentMethod.String(), "unavailable")
	fields["detail"] = gwErr.Detail
	s.logWarn(ctx, "checkout.charge.gateway_unavailable", fields)
	return pkgerrors.Wrap(pkgerrors.CodePaymentGatewayUnavailable, gwErr, "payment gateway is unavailable, try again")
}

// chargeOutcomeUnknown fails the session and opens a case: the gateway may
// have captured the money, so staff or the sweeper must confirm it.
func (s *service) chargeOutcomeUnknown(ctx context.Context, scope tenancy.Scope, session *models.CheckoutSession, gwErr *payments.GatewayError, fields map[string]any) error {
	reason := "payment outcome unknown"
	if gwErr.Detail != "" {
		reason += ": " + gwErr.Detail
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.failSession(ctx, tx, scope, session, reason); err != nil {
			return err
		}
		_, err := s.cases.Open(ctx, tx, reconciliation.OpenInput{
			TenantID:       scope.TenantID,
			SessionID:      session.ID,
			Reason:         enums.ReconciliationReasonOutcomeUnknown,
			IdempotencyKey: IdempotencyKey(session.ID),
			AmountCents:    session.TotalCents,
			Detail:         reason,
			Notify:         true,
		})
		return err
	})

	s.record(session.PaymentMethod.String(), "reconciliation")
	fields["detail"] = gwErr.Detail
	if err != nil {
		s.logError(ctx, "reconciliation required", err, fields)
	} else {
		s.logError(ctx, "reconciliation required", gwErr, fields)
	}
	return pkgerrors.Wrap(pkgerrors.CodeReconciliationRequired, gwErr, "payment outcome is unknown; the session needs reconciliation").
		WithDetails(map[string]any{"session_id": session.ID, "idempotency_key": IdempotencyKey(session.ID)})
}

// chargeCommitFailed handles a captured payment whose local completion did not
// commit. The session stays processing and is never charged again automatically.
func (s *service) chargeCommitFailed(ctx context.Context, scope tenancy.Scope, session *models.CheckoutSession, result *payments.ChargeResult, commitErr error, fields map[string]any) error {
	s.logError(ctx, "reconciliation required", commitErr, fields)
	if _, err := s.cases.Open(ctx, nil, reconciliation.OpenInput{
		TenantID:          scope.TenantID,
		SessionID:         session.ID,
		Reason:            enums.ReconciliationReasonCommitFailed,
		ExternalPaymentID: result.ExternalPaymentID,
		IdempotencyKey:    IdempotencyKey(session.ID),
		AmountCents:       session.TotalCents,
		Detail:            commitErr.Error(),
	}); err != nil {
		s.logError(ctx, "checkout.reconciliation_case_not_recorded", err, fields)
	}

	s.record(session.PaymentMethod.String(), "reconciliation")
	return pkgerrors.Wrap(pkgerrors.CodeReconciliationRequired, commitErr, "payment was captured but could not be recorded; the session needs reconciliation").
		WithDetails(map[string]any{
			"session_id":          session.ID,
			"external_payment_id": result.ExternalPaymentID,
			"idempotency_key":     IdempotencyKey(session.ID),
		})
}

func statusConflict(current, expected enums.CheckoutStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session is "+current.String()+", expected "+expected.String()).
		WithDetails(map[string]any{"status": current, "expected": expected})
}

func lineBidIDs(session *models.CheckoutSession) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(session.Lines))
	for _, line := range session.Lines {
		if line.ReleasedAt == nil {
			ids = append(ids, line.BidID)
		}
	}
	return ids
}
