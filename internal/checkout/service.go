package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/internal/fees"
	"github.com/biddart/biddart-backend/internal/payments"
	"github.com/biddart/biddart-backend/internal/reconciliation"
	"github.com/biddart/biddart-backend/internal/tenancy"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/logger"
	"github.com/biddart/biddart-backend/pkg/outbox"
)

const (
	defaultChargeTimeout = 30 * time.Second
	defaultCurrency      = "USD"

	// settleTimeout bounds the local writes that record a gateway outcome.
	settleTimeout = 15 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type caseOpener interface {
	Open(ctx context.Context, tx *gorm.DB, input reconciliation.OpenInput) (*models.ReconciliationCase, error)
}

type checkoutMetrics interface {
	CheckoutOutcome(method, outcome string)
	ObserveGateway(operation, result string, duration time.Duration)
}

// Service runs the checkout session state machine.
type Service interface {
	CreateSession(ctx context.Context, scope tenancy.Scope, input CreateSessionInput) (*models.CheckoutSession, error)
	CompleteCashOrCheck(ctx context.Context, scope tenancy.Scope, sessionID uuid.UUID) (*models.CheckoutSession, error)
	ChargeCard(ctx context.Context, scope tenancy.Scope, sessionID uuid.UUID, paymentToken string) (*Receipt, error)
	Refund(ctx context.Context, scope tenancy.Scope, sessionID uuid.UUID, input RefundInput) (*models.CheckoutSession, error)
	GetSession(ctx context.Context, scope tenancy.Scope, sessionID uuid.UUID) (*models.CheckoutSession, error)
	Quote(ctx context.Context, scope tenancy.Scope, input QuoteInput) (*Quote, error)
	ListSessions(ctx context.Context, scope tenancy.Scope, params SessionListParams) (*SessionPage, error)

	// SettlePaid and SettleNotCharged apply a reconciliation verdict inside tx.
	SettlePaid(ctx context.Context, tx *gorm.DB, scope tenancy.Scope, sessionID uuid.UUID, payment payments.PaymentStatus) error
	SettleNotCharged(ctx context.Context, tx *gorm.DB, scope tenancy.Scope, sessionID uuid.UUID, reason string) error
}

type ServiceParams struct {
	Tx            txRunner
	Repo          Repository
	Outbox        outboxPublisher
	Gateway       payments.Gateway
	Cases         caseOpener
	Logger        *logger.Logger
	Metrics       checkoutMetrics
	GatewayFees   fees.GatewayFees
	Currency      string
	ChargeTimeout time.Duration
	RefundTimeout time.Duration
	Now           func() time.Time
}

type service struct {
	tx            txRunner
	repo          Repository
	outbox        outboxPublisher
	gateway       payments.Gateway
	cases         caseOpener
	logg          *logger.Logger
	metrics       checkoutMetrics
	gatewayFees   fees.GatewayFees
	currency      enums.Currency
	chargeTimeout time.Duration
	refundTimeout time.Duration
	now           func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tx runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout repository required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.Cases == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation opener required")
	}
	svc := &service{
		tx:            params.Tx,
		repo:          params.Repo,
		outbox:        params.Outbox,
		gateway:       params.Gateway,
		cases:         params.Cases,
		logg:          params.Logger,
		metrics:       params.Metrics,
		gatewayFees:   params.GatewayFees,
		chargeTimeout: params.ChargeTimeout,
		refundTimeout: params.RefundTimeout,
		now:           params.Now,
	}
	currency := params.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	parsed, err := enums.ParseCurrency(currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checkout currency")
	}
	svc.currency = parsed
	if svc.chargeTimeout <= 0 {
		svc.chargeTimeout = defaultChargeTimeout
	}
	if svc.refundTimeout <= 0 {
		svc.refundTimeout = svc.chargeTimeout
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc, nil
}

func (s *service) GetSession(ctx context.Context, scope tenancy.Scope, sessionID uuid.UUID) (*models.CheckoutSession, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	session, err := s.repo.FindSession(ctx, scope.TenantID, sessionID)
	if err != nil {
		return nil, lookupError(err, "checkout session")
	}
	return session, nil
}

func lookupError(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+what)
}

// IdempotencyKey is the gateway key for charging a session. It is stable so a
// retried charge can never create a second payment.
func IdempotencyKey(sessionID uuid.UUID) string {
	return "checkout-" + sessionID.String()
}

func refundIdempotencyKey(sessionID uuid.UUID) string {
	return "refund-" + sessionID.String()
}

func (s *service) record(method, outcome string) {
	if s.metrics != nil {
		s.metrics.CheckoutOutcome(method, outcome)
	}
}

func (s *service) observeGateway(operation, result string, started time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveGateway(operation, result, time.Since(started))
	}
}

func (s *service) logInfo(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}

func (s *service) logWarn(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), msg)
}

func (s *service) logError(ctx context.Context, msg string, err error, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Error(s.logg.WithFields(ctx, fields), msg, err)
}

func sessionFields(scope tenancy.Scope, session *models.CheckoutSession) map[string]any {
	fields := map[string]any{
		"tenant_id":      scope.TenantID.String(),
		"actor_id":       scope.ActorID.String(),
		"session_id":     session.ID.String(),
		"bidder_id":      session.BidderID.String(),
		"payment_method": session.PaymentMethod,
		"total_cents":    session.TotalCents,
	}
	return fields
}

func ptr[T any](v T) *T {
	return &v
}
