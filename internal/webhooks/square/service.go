package squarewebhook

import (
	"context"
	"strings"

	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/logger"
)

type paymentReporter interface {
	PaymentReported(ctx context.Context, externalPaymentID, referenceID string) (bool, error)
}

type ServiceParams struct {
	Reporter paymentReporter
	Logger   *logger.Logger
}

// Service routes Square notifications to the domain.
type Service struct {
	reporter paymentReporter
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Reporter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment reporter required")
	}
	return &Service{reporter: params.Reporter, logg: params.Logger}, nil
}

type SquareWebhookEvent struct {
	MerchantID string            `json:"merchant_id"`
	EventID    string            `json:"event_id"`
	Type       string            `json:"type"`
	CreatedAt  string            `json:"created_at"`
	Data       SquareWebhookData `json:"data"`
}

type SquareWebhookData struct {
	Type   string              `json:"type"`
	ID     string              `json:"id"`
	Object SquareWebhookObject `json:"object"`
}

type SquareWebhookObject struct {
	Payment *SquarePayment `json:"payment"`
}

// SquarePayment is the subset of a Square payment the webhook relies on.
// Status is informational; the gateway is asked for the authoritative state.
type SquarePayment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ReferenceID string `json:"reference_id"`
}

// HandleEvent processes payment notifications and ignores everything else.
func (s *Service) HandleEvent(ctx context.Context, event *SquareWebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}

	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
		payment := event.Data.Object.Payment
		if payment == nil || payment.ID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
		}
		if payment.ReferenceID == "" {
			return nil
		}
		resolved, err := s.reporter.PaymentReported(ctx, payment.ID, payment.ReferenceID)
		if err != nil {
			return err
		}
		if resolved && s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"event_id":            event.EventID,
				"external_payment_id": payment.ID,
				"session_id":          payment.ReferenceID,
			})
			s.logg.Info(logCtx, "square.webhook.case_resolved")
		}
		return nil
	default:
		return nil
	}
}
