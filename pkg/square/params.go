package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"

	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
)

const defaultCurrency = "USD"

// PaymentCreateParams describes one card charge. Payments always autocomplete.
type PaymentCreateParams struct {
	AmountCents    int64
	Currency       string
	LocationID     string
	SourceID       string
	IdempotencyKey string
	Note           string
	ReferenceID    string
	BuyerEmail     string
}

func (p PaymentCreateParams) validate() error {
	switch {
	case p.AmountCents <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	case strings.TrimSpace(p.SourceID) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "payment source is required")
	}
	return nil
}

func (p PaymentCreateParams) toSquareRequest(idempotencyKey string) *sq.CreatePaymentRequest {
	return &sq.CreatePaymentRequest{
		IdempotencyKey:    idempotencyKey,
		SourceID:          p.SourceID,
		AmountMoney:       money(p.AmountCents, p.Currency),
		Autocomplete:      ptr(true),
		LocationID:        optional(p.LocationID),
		Note:              optional(p.Note),
		ReferenceID:       optional(p.ReferenceID),
		BuyerEmailAddress: optional(p.BuyerEmail),
	}
}

// RefundParams returns all or part of a completed payment to the card.
type RefundParams struct {
	PaymentID      string
	AmountCents    int64
	Currency       string
	Reason         string
	IdempotencyKey string
}

func (p RefundParams) validate() error {
	switch {
	case strings.TrimSpace(p.PaymentID) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id is required for a refund")
	case p.AmountCents <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	return nil
}

func (p RefundParams) toSquareRequest(idempotencyKey string) *sq.RefundPaymentRequest {
	return &sq.RefundPaymentRequest{
		IdempotencyKey: idempotencyKey,
		PaymentID:      optional(p.PaymentID),
		AmountMoney:    money(p.AmountCents, p.Currency),
		Reason:         optional(p.Reason),
	}
}

func ptr[T any](v T) *T {
	return &v
}

// optional trims value and maps blanks to nil, which the SDK omits.
func optional(value string) *string {
	if value = strings.TrimSpace(value); value == "" {
		return nil
	}
	return &value
}

func money(amountCents int64, currency string) *sq.Money {
	if amountCents <= 0 {
		return nil
	}
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = defaultCurrency
	}
	return &sq.Money{Amount: ptr(amountCents), Currency: ptr(sq.Currency(code))}
}
