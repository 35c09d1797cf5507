package payments

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a failed gateway call by what is known about the money.
type ErrorKind string

const (
	// ErrorKindDeclined means the gateway definitively refused the charge.
	ErrorKindDeclined ErrorKind = "declined"
	// ErrorKindUnavailable means the request never reached the gateway.
	ErrorKindUnavailable ErrorKind = "unavailable"
	// ErrorKindUnknown means the request may or may not have been applied.
	ErrorKindUnknown ErrorKind = "unknown"
)

// GatewayError is returned by every Gateway method on failure.
type GatewayError struct {
	Kind   ErrorKind
	Detail string
	Cause  error
}

func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("gateway %s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("gateway %s: %s", e.Kind, e.Detail)
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// ChargeRequest describes a single card charge.
type ChargeRequest struct {
	AmountCents    int64
	Currency       string
	SourceToken    string
	ReferenceID    string
	IdempotencyKey string
	Note           string
	BuyerEmail     string
}

// ChargeResult carries the gateway identifiers of a successful charge.
type ChargeResult struct {
	ExternalPaymentID string
	ReceiptURL        string
	ReceiptNumber     string
	Status            string
}

// RefundRequest describes a refund against a previous charge.
type RefundRequest struct {
	ExternalPaymentID string
	AmountCents       int64
	Currency          string
	Reason            string
	IdempotencyKey    string
}

// RefundResult carries the gateway refund identifier.
type RefundResult struct {
	ExternalRefundID string
	Status           string
}

// PaymentStatus is the gateway's current view of a payment.
type PaymentStatus struct {
	ID            string
	Status        string
	ReferenceID   string
	ReceiptURL    string
	ReceiptNumber string
	AmountCents   int64
}

// Succeeded reports whether the payment captured funds.
func (p PaymentStatus) Succeeded() bool {
	return p.Status == StatusCompleted || p.Status == StatusApproved
}

// Failed reports whether the payment ended without capturing funds.
func (p PaymentStatus) Failed() bool {
	return p.Status == StatusFailed || p.Status == StatusCanceled
}

// Gateway status strings as reported by Square.
const (
	StatusApproved  = "APPROVED"
	StatusCompleted = "COMPLETED"
	StatusPending   = "PENDING"
	StatusFailed    = "FAILED"
	StatusCanceled  = "CANCELED"
)

// Gateway is the card processor used by checkout and reconciliation.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	GetPayment(ctx context.Context, externalPaymentID string) (*PaymentStatus, error)
}

// AsGatewayError unwraps err into a GatewayError, classifying anything else as unknown.
func AsGatewayError(err error) *GatewayError {
	if err == nil {
		return nil
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return &GatewayError{Kind: ErrorKindUnknown, Detail: "gateway call failed", Cause: err}
}
