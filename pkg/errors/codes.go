package errors

import "net/http"

// Code is the stable, client-facing identifier of an error class.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInProgress    Code = "REQUEST_IN_PROGRESS"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeBiddingClosed             Code = "BIDDING_CLOSED"
	CodeBidTooLow                 Code = "BID_TOO_LOW"
	CodeBuyNowUnavailable         Code = "BUY_NOW_UNAVAILABLE"
	CodeCannotModifyPaidBid       Code = "CANNOT_MODIFY_PAID_BID"
	CodeInvalidBidSelection       Code = "INVALID_BID_SELECTION"
	CodePaymentDeclined           Code = "PAYMENT_DECLINED"
	CodePaymentGatewayUnavailable Code = "PAYMENT_GATEWAY_UNAVAILABLE"
	CodeReconciliationRequired    Code = "RECONCILIATION_REQUIRED"
	CodeRefundNotAllowed          Code = "REFUND_NOT_ALLOWED"
)

// Metadata is what the HTTP layer needs to render an error of a given code.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	// ExposeMessage lets the error's own message replace PublicMessage in responses.
	ExposeMessage bool
}

type trait uint8

const (
	retryable trait = 1 << iota
	details
	expose
)

func meta(status int, public string, traits trait) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      traits&retryable != 0,
		DetailsAllowed: traits&details != 0,
		ExposeMessage:  traits&expose != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, "validation failed", details|expose),
	CodeUnauthorized:  meta(http.StatusUnauthorized, "authentication required", expose),
	CodeForbidden:     meta(http.StatusForbidden, "access denied", expose),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found", expose),
	CodeConflict:      meta(http.StatusConflict, "conflict detected", expose),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, "state transition disallowed", details|expose),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused", details|expose),
	CodeInProgress:    meta(http.StatusConflict, "a request with this idempotency key is still in progress", retryable),
	CodeRateLimit:     meta(http.StatusTooManyRequests, "rate limit exceeded", expose),
	CodeInternal:      meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|details),

	CodeBiddingClosed:             meta(http.StatusUnprocessableEntity, "bidding is closed for this item", details|expose),
	CodeBidTooLow:                 meta(http.StatusUnprocessableEntity, "bid amount is below the minimum", details|expose),
	CodeBuyNowUnavailable:         meta(http.StatusUnprocessableEntity, "buy now is not available for this item", details|expose),
	CodeCannotModifyPaidBid:       meta(http.StatusConflict, "paid bids cannot be modified", details|expose),
	CodeInvalidBidSelection:       meta(http.StatusUnprocessableEntity, "invalid bid selection", details|expose),
	CodePaymentDeclined:           meta(http.StatusPaymentRequired, "payment declined", details|expose),
	CodePaymentGatewayUnavailable: meta(http.StatusServiceUnavailable, "payment gateway unavailable", retryable|details|expose),
	CodeReconciliationRequired:    meta(http.StatusConflict, "payment outcome requires reconciliation", details|expose),
	CodeRefundNotAllowed:          meta(http.StatusConflict, "refund not allowed", details|expose),
}

// MetadataFor falls back to INTERNAL_ERROR for codes it does not know.
func MetadataFor(code Code) Metadata {
	m, known := metadataByCode[code]
	if !known {
		m = metadataByCode[CodeInternal]
	}
	return m
}
