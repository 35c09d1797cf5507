package reconciliation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/internal/payments"
	"github.com/biddart/biddart-backend/internal/tenancy"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/logger"
	"github.com/biddart/biddart-backend/pkg/outbox"
	"github.com/biddart/biddart-backend/pkg/outbox/payloads"
)

const (
	defaultListLimit  = 50
	maxListLimit      = 200
	defaultSweepLimit = 25
)

// settler applies a verdict to the checkout session behind a case.
type settler interface {
	SettlePaid(ctx context.Context, tx *gorm.DB, scope tenancy.Scope, sessionID uuid.UUID, payment payments.PaymentStatus) error
	SettleNotCharged(ctx context.Context, tx *gorm.DB, scope tenancy.Scope, sessionID uuid.UUID, reason string) error
}

// ResolveInput is a staff verdict on an open case.
type ResolveInput struct {
	Resolution        enums.ReconciliationResolution
	ExternalPaymentID string
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Checked  int
	Resolved int
	Waiting  int
	Errors   int
}

// Service owns the reconciliation case lifecycle.
type Service interface {
	Open(ctx context.Context, tx *gorm.DB, input OpenInput) (*models.ReconciliationCase, error)
	ListOpen(ctx context.Context, scope tenancy.Scope, limit int) ([]models.ReconciliationCase, error)
	Get(ctx context.Context, scope tenancy.Scope, caseID uuid.UUID) (*models.ReconciliationCase, error)
	Resolve(ctx context.Context, scope tenancy.Scope, caseID uuid.UUID, input ResolveInput) (*models.ReconciliationCase, error)
	Sweep(ctx context.Context, limit int) (SweepResult, error)
	// PaymentReported handles a gateway notification about a payment whose
	// reference id is a checkout session. It reports whether a case was resolved.
	PaymentReported(ctx context.Context, externalPaymentID, referenceID string) (bool, error)
}

type ServiceParams struct {
	Tx       txRunner
	Repo     Repository
	Opener   *Opener
	Outbox   outboxPublisher
	Checkout settler
	Gateway  payments.Gateway
	Logger   *logger.Logger
	Metrics  caseMetrics
	Now      func() time.Time
}

type service struct {
	tx       txRunner
	repo     Repository
	opener   *Opener
	outbox   outboxPublisher
	checkout settler
	gateway  payments.Gateway
	logg     *logger.Logger
	metrics  caseMetrics
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tx runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation repository required")
	}
	if params.Opener == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation opener required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	if params.Checkout == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout settler required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		tx:       params.Tx,
		repo:     params.Repo,
		opener:   params.Opener,
		outbox:   params.Outbox,
		checkout: params.Checkout,
		gateway:  params.Gateway,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      now,
	}, nil
}

func (s *service) Open(ctx context.Context, tx *gorm.DB, input OpenInput) (*models.ReconciliationCase, error) {
	return s.opener.Open(ctx, tx, input)
}

func (s *service) ListOpen(ctx context.Context, scope tenancy.Scope, limit int) ([]models.ReconciliationCase, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := s.repo.ListOpen(ctx, scope.TenantID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reconciliation cases")
	}
	return rows, nil
}

func (s *service) Get(ctx context.Context, scope tenancy.Scope, caseID uuid.UUID) (*models.ReconciliationCase, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	c, err := s.repo.Find(ctx, scope.TenantID, caseID)
	if err != nil {
		return nil, lookupError(err)
	}
	return c, nil
}

// Resolve applies a staff verdict. Paid completes the session and marks its
// bids paid unless they were settled elsewhere since; not_charged fails the
// session and frees its bids.
func (s *service) Resolve(ctx context.Context, scope tenancy.Scope, caseID uuid.UUID, input ResolveInput) (*models.ReconciliationCase, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if !input.Resolution.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "resolution must be paid or not_charged").
			WithDetails(map[string]any{"resolution": input.Resolution})
	}

	var resolved *models.ReconciliationCase
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		c, err := s.repo.WithTx(tx).Lock(ctx, scope.TenantID, caseID)
		if err != nil {
			return lookupError(err)
		}
		if c.Status != enums.ReconciliationStatusOpen {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reconciliation case is already resolved")
		}

		paymentID := strings.TrimSpace(input.ExternalPaymentID)
		if paymentID == "" && c.ExternalPaymentID != nil {
			paymentID = *c.ExternalPaymentID
		}
		switch input.Resolution {
		case enums.ReconciliationResolutionPaid:
			if paymentID == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "external payment id is required to resolve as paid")
			}
			if err := s.checkout.SettlePaid(ctx, tx, scope, c.SessionID, payments.PaymentStatus{ID: paymentID, Status: payments.StatusCompleted, AmountCents: c.AmountCents}); err != nil {
				return err
			}
		case enums.ReconciliationResolutionNotCharged:
			if err := s.checkout.SettleNotCharged(ctx, tx, scope, c.SessionID, "payment not charged (confirmed by staff)"); err != nil {
				return err
			}
		}

		resolved, err = s.resolve(ctx, tx, scope, c, input.Resolution, paymentID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logCase(ctx, "reconciliation.case.resolved", resolved, map[string]any{"actor_id": scope.ActorID.String()})
	return resolved, nil
}

// resolve closes c inside tx and emits reconciliation.resolved.
func (s *service) resolve(ctx context.Context, tx *gorm.DB, scope tenancy.Scope, c *models.ReconciliationCase, resolution enums.ReconciliationResolution, paymentID string) (*models.ReconciliationCase, error) {
	repo := s.repo.WithTx(tx)
	now := s.now()
	if paymentID != "" && (c.ExternalPaymentID == nil || *c.ExternalPaymentID != paymentID) {
		if err := repo.SetPaymentID(ctx, c.TenantID, c.ID, paymentID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment id")
		}
		c.ExternalPaymentID = &paymentID
	}
	ok, err := repo.Resolve(ctx, c.TenantID, c.ID, resolution, scope.Actor(), now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve reconciliation case")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "reconciliation case is already resolved")
	}
	c.Status = enums.ReconciliationStatusResolved
	c.Resolution = &resolution
	c.ResolvedBy = scope.Actor()
	c.ResolvedAt = &now

	data := payloads.ReconciliationEvent{
		CaseID:      c.ID,
		SessionID:   c.SessionID,
		Reason:      c.Reason,
		Resolution:  &resolution,
		AmountCents: c.AmountCents,
	}
	if c.ExternalPaymentID != nil {
		data.ExternalPaymentID = *c.ExternalPaymentID
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		TenantID:      c.TenantID,
		EventType:     enums.EventReconciliationResolved,
		AggregateType: enums.AggregateReconciliation,
		AggregateID:   c.ID,
		ActorID:       scope.ActorID,
		Data:          data,
		OccurredAt:    now,
	}); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Reconciliation(c.Reason.String(), "resolved_"+resolution.String())
	}
	return c, nil
}

// Sweep asks the gateway about open cases that carry a payment id. Cases
// without one wait for a webhook or for staff.
func (s *service) Sweep(ctx context.Context, limit int) (SweepResult, error) {
	var result SweepResult
	if limit <= 0 {
		limit = defaultSweepLimit
	}

	var claimed []models.ReconciliationCase
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		claimed, err = s.repo.WithTx(tx).ClaimSweepable(ctx, limit)
		return err
	}); err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim reconciliation cases")
	}

	var errs error
	for i := range claimed {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		result.Checked++
		done, err := s.check(ctx, &claimed[i])
		switch {
		case err != nil:
			result.Errors++
			errs = multierr.Append(errs, err)
		case done:
			result.Resolved++
		default:
			result.Waiting++
		}
	}
	return result, errs
}

func (s *service) PaymentReported(ctx context.Context, externalPaymentID, referenceID string) (bool, error) {
	externalPaymentID = strings.TrimSpace(externalPaymentID)
	sessionID, err := uuid.Parse(strings.TrimSpace(referenceID))
	if err != nil || externalPaymentID == "" {
		return false, nil
	}

	c, err := s.repo.FindOpenBySessionID(ctx, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reconciliation case")
	}
	if c.ExternalPaymentID == nil || *c.ExternalPaymentID != externalPaymentID {
		if err := s.repo.SetPaymentID(ctx, c.TenantID, c.ID, externalPaymentID); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment id")
		}
		c.ExternalPaymentID = &externalPaymentID
	}
	return s.check(ctx, c)
}

// check looks the case's payment up and resolves the case when the gateway
// has a final answer. It reports whether the case was resolved.
func (s *service) check(ctx context.Context, c *models.ReconciliationCase) (bool, error) {
	if c.ExternalPaymentID == nil || *c.ExternalPaymentID == "" {
		return false, nil
	}
	paymentID := *c.ExternalPaymentID
	scope := tenancy.System(c.TenantID)

	payment, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		detail := payments.AsGatewayError(err).Error()
		if recErr := s.repo.RecordAttempt(ctx, c.TenantID, c.ID, &detail, s.now()); recErr != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, recErr, "record reconciliation attempt")
		}
		s.logCase(ctx, "reconciliation.case.lookup_failed", c, map[string]any{"detail": detail})
		return false, nil
	}

	if !payment.Succeeded() && !payment.Failed() {
		if err := s.repo.RecordAttempt(ctx, c.TenantID, c.ID, nil, s.now()); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record reconciliation attempt")
		}
		return false, nil
	}

	var resolved *models.ReconciliationCase
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.repo.WithTx(tx).Lock(ctx, c.TenantID, c.ID)
		if err != nil {
			return lookupError(err)
		}
		if locked.Status != enums.ReconciliationStatusOpen {
			return nil
		}
		resolution := enums.ReconciliationResolutionNotCharged
		if payment.Succeeded() {
			resolution = enums.ReconciliationResolutionPaid
			payment.ID = paymentID
			if err := s.checkout.SettlePaid(ctx, tx, scope, locked.SessionID, *payment); err != nil {
				return err
			}
		} else if err := s.checkout.SettleNotCharged(ctx, tx, scope, locked.SessionID, "payment "+strings.ToLower(payment.Status)+" at gateway"); err != nil {
			return err
		}
		resolved, err = s.resolve(ctx, tx, scope, locked, resolution, paymentID)
		return err
	})
	if err != nil {
		// a conflicting session needs a human; keep the case open and say why
		detail := err.Error()
		if recErr := s.repo.RecordAttempt(ctx, c.TenantID, c.ID, &detail, s.now()); recErr != nil {
			s.logError(ctx, "reconciliation.case.attempt_not_recorded", c, recErr)
		}
		s.logError(ctx, "reconciliation.case.settle_failed", c, err)
		return false, err
	}
	if resolved == nil {
		return false, nil
	}
	s.logCase(ctx, "reconciliation.case.resolved", resolved, map[string]any{"gateway_status": payment.Status})
	return true, nil
}

func lookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "reconciliation case not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reconciliation case")
}

func caseFields(c *models.ReconciliationCase) map[string]any {
	fields := map[string]any{
		"tenant_id":  c.TenantID.String(),
		"case_id":    c.ID.String(),
		"session_id": c.SessionID.String(),
		"reason":     c.Reason,
	}
	if c.ExternalPaymentID != nil {
		fields["external_payment_id"] = *c.ExternalPaymentID
	}
	if c.Resolution != nil {
		fields["resolution"] = *c.Resolution
	}
	return fields
}

func (s *service) logCase(ctx context.Context, msg string, c *models.ReconciliationCase, extra map[string]any) {
	if s.logg == nil {
		return
	}
	fields := caseFields(c)
	for k, v := range extra {
		fields[k] = v
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}

func (s *service) logError(ctx context.Context, msg string, c *models.ReconciliationCase, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(s.logg.WithFields(ctx, caseFields(c)), msg, err)
}
