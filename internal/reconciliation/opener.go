package reconciliation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/logger"
	"github.com/biddart/biddart-backend/pkg/outbox"
	"github.com/biddart/biddart-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type caseMetrics interface {
	Reconciliation(reason, state string)
}

// OpenInput describes a checkout whose gateway outcome needs confirming.
type OpenInput struct {
	TenantID          uuid.UUID
	SessionID         uuid.UUID
	Reason            enums.ReconciliationReason
	ExternalPaymentID string
	IdempotencyKey    string
	AmountCents       int64
	Detail            string
	// Notify emits reconciliation.required with the case.
	Notify bool
}

// Opener records reconciliation cases. Checkout holds one; it has no
// dependency on the checkout package so the two can be wired in either order.
type Opener struct {
	tx      txRunner
	repo    Repository
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics caseMetrics
	now     func() time.Time
}

type OpenerParams struct {
	Tx      txRunner
	Repo    Repository
	Outbox  outboxPublisher
	Logger  *logger.Logger
	Metrics caseMetrics
	Now     func() time.Time
}

func NewOpener(params OpenerParams) (*Opener, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tx runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation repository required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Opener{
		tx:      params.Tx,
		repo:    params.Repo,
		outbox:  params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

// Open records a case inside tx, or in its own transaction when tx is nil.
// A session has at most one open case; a second Open returns the existing one.
func (o *Opener) Open(ctx context.Context, tx *gorm.DB, input OpenInput) (*models.ReconciliationCase, error) {
	if input.TenantID == uuid.Nil || input.SessionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant and session are required")
	}
	if tx != nil {
		return o.open(ctx, tx, input)
	}
	var opened *models.ReconciliationCase
	err := o.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		opened, err = o.open(ctx, tx, input)
		return err
	})
	return opened, err
}

func (o *Opener) open(ctx context.Context, tx *gorm.DB, input OpenInput) (*models.ReconciliationCase, error) {
	repo := o.repo.WithTx(tx)

	existing, err := repo.FindOpenForSession(ctx, input.TenantID, input.SessionID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reconciliation case")
	}

	c := &models.ReconciliationCase{
		TenantID:       input.TenantID,
		SessionID:      input.SessionID,
		IdempotencyKey: input.IdempotencyKey,
		AmountCents:    input.AmountCents,
		Reason:         input.Reason,
		Status:         enums.ReconciliationStatusOpen,
		CreatedAt:      o.now(),
	}
	if id := strings.TrimSpace(input.ExternalPaymentID); id != "" {
		c.ExternalPaymentID = &id
	}
	if detail := strings.TrimSpace(input.Detail); detail != "" {
		c.Detail = &detail
	}
	if err := repo.Create(ctx, c); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert reconciliation case")
	}

	if input.Notify {
		if err := o.outbox.Emit(ctx, tx, outbox.DomainEvent{
			TenantID:      c.TenantID,
			EventType:     enums.EventReconciliationRequired,
			AggregateType: enums.AggregateReconciliation,
			AggregateID:   c.ID,
			Data: payloads.ReconciliationEvent{
				CaseID:            c.ID,
				SessionID:         c.SessionID,
				Reason:            c.Reason,
				ExternalPaymentID: input.ExternalPaymentID,
				AmountCents:       c.AmountCents,
			},
		}); err != nil {
			return nil, err
		}
	}

	if o.metrics != nil {
		o.metrics.Reconciliation(c.Reason.String(), enums.ReconciliationStatusOpen.String())
	}
	if o.logg != nil {
		o.logg.Warn(o.logg.WithFields(ctx, map[string]any{
			"tenant_id":           c.TenantID.String(),
			"session_id":          c.SessionID.String(),
			"case_id":             c.ID.String(),
			"reason":              c.Reason,
			"idempotency_key":     c.IdempotencyKey,
			"external_payment_id": input.ExternalPaymentID,
		}), "reconciliation.case.opened")
	}
	return c, nil
}
