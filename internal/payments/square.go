package payments

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	sq "github.com/square/square-go-sdk"

	"github.com/biddart/biddart-backend/pkg/config"
	"github.com/biddart/biddart-backend/pkg/logger"
	"github.com/biddart/biddart-backend/pkg/square"
)

type squareClient interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	RefundPayment(ctx context.Context, params square.RefundParams) (*sq.PaymentRefund, error)
}

// SquareGateway adapts the Square client to the Gateway contract.
type SquareGateway struct {
	client squareClient
}

// NewSquareGateway wraps a configured Square client.
func NewSquareGateway(client squareClient) (*SquareGateway, error) {
	if client == nil {
		return nil, errors.New("square client required")
	}
	return &SquareGateway{client: client}, nil
}

// FromConfig wires Square when an access token is configured. Without one,
// card calls fail as unavailable so cash and check checkouts keep working.
func FromConfig(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (Gateway, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		if logg != nil {
			logg.Warn(ctx, "square access token not set, card payments disabled")
		}
		return Disabled{}, nil
	}
	client, err := square.NewClient(ctx, cfg, logg)
	if err != nil {
		return nil, err
	}
	return NewSquareGateway(client)
}

func (g *SquareGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	payment, err := g.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		SourceID:       req.SourceToken,
		IdempotencyKey: req.IdempotencyKey,
		Note:           req.Note,
		ReferenceID:    req.ReferenceID,
		BuyerEmail:     req.BuyerEmail,
	})
	if err != nil {
		return nil, classify(ctx, err)
	}
	if payment == nil {
		return nil, &GatewayError{Kind: ErrorKindUnknown, Detail: "empty payment response"}
	}
	status := toPaymentStatus(payment)
	if status.Failed() {
		return nil, &GatewayError{Kind: ErrorKindDeclined, Detail: "payment " + strings.ToLower(status.Status)}
	}
	return &ChargeResult{
		ExternalPaymentID: status.ID,
		ReceiptURL:        status.ReceiptURL,
		ReceiptNumber:     status.ReceiptNumber,
		Status:            status.Status,
	}, nil
}

func (g *SquareGateway) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	refund, err := g.client.RefundPayment(ctx, square.RefundParams{
		PaymentID:      req.ExternalPaymentID,
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, classify(ctx, err)
	}
	if refund == nil {
		return nil, &GatewayError{Kind: ErrorKindUnknown, Detail: "empty refund response"}
	}
	return &RefundResult{
		ExternalRefundID: refund.GetID(),
		Status:           deref(refund.GetStatus()),
	}, nil
}

func (g *SquareGateway) GetPayment(ctx context.Context, externalPaymentID string) (*PaymentStatus, error) {
	payment, err := g.client.GetPayment(ctx, externalPaymentID)
	if err != nil {
		return nil, classify(ctx, err)
	}
	if payment == nil {
		return nil, &GatewayError{Kind: ErrorKindUnknown, Detail: "empty payment response"}
	}
	status := toPaymentStatus(payment)
	return &status, nil
}

func toPaymentStatus(payment *sq.Payment) PaymentStatus {
	status := PaymentStatus{
		ID:            deref(payment.GetID()),
		Status:        strings.ToUpper(deref(payment.GetStatus())),
		ReferenceID:   deref(payment.GetReferenceID()),
		ReceiptURL:    deref(payment.GetReceiptURL()),
		ReceiptNumber: deref(payment.GetReceiptNumber()),
	}
	if money := payment.GetAmountMoney(); money != nil && money.Amount != nil {
		status.AmountCents = *money.Amount
	}
	return status
}

// classify maps a Square client failure onto what is known about the charge.
func classify(ctx context.Context, err error) *GatewayError {
	if detail, ok := square.DeclineDetail(err); ok {
		return &GatewayError{Kind: ErrorKindDeclined, Detail: detail, Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &GatewayError{Kind: ErrorKindUnknown, Detail: "gateway timed out", Cause: err}
	}
	if isDialFailure(err) {
		return &GatewayError{Kind: ErrorKindUnavailable, Detail: "gateway unreachable", Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &GatewayError{Kind: ErrorKindUnknown, Detail: "gateway timed out", Cause: err}
	}

	status := square.StatusCode(err)
	switch {
	case status == 0 || status >= http.StatusInternalServerError:
		return &GatewayError{Kind: ErrorKindUnknown, Detail: "gateway outcome unknown", Cause: err}
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusTooManyRequests:
		return &GatewayError{Kind: ErrorKindUnavailable, Detail: http.StatusText(status), Cause: err}
	default:
		detail := square.ErrorDetail(err)
		if detail == "" {
			detail = http.StatusText(status)
		}
		return &GatewayError{Kind: ErrorKindDeclined, Detail: detail, Cause: err}
	}
}

func isDialFailure(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
