// Package payloads defines the JSON bodies carried inside outbox envelopes.
package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/biddart/biddart-backend/pkg/enums"
)

// BidPlacedEvent is emitted for every accepted bid.
type BidPlacedEvent struct {
	BidID             uuid.UUID     `json:"bid_id"`
	EventID           uuid.UUID     `json:"event_id"`
	AuctionItemID     uuid.UUID     `json:"auction_item_id"`
	BidderID          uuid.UUID     `json:"bidder_id"`
	Kind              enums.BidKind `json:"kind"`
	AmountCents       int64         `json:"amount_cents"`
	IsWinning         bool          `json:"is_winning"`
	CurrentPriceCents int64         `json:"current_price_cents"`
}

// BidWithdrawnEvent reports a removed bid and the recomputed winner.
type BidWithdrawnEvent struct {
	BidID             uuid.UUID  `json:"bid_id"`
	AuctionItemID     uuid.UUID  `json:"auction_item_id"`
	BidderID          uuid.UUID  `json:"bidder_id"`
	WinningBidID      *uuid.UUID `json:"winning_bid_id,omitempty"`
	CurrentPriceCents int64      `json:"current_price_cents"`
}

// BidderRegisteredEvent is emitted when a bidder receives a number.
type BidderRegisteredEvent struct {
	BidderID     uuid.UUID `json:"bidder_id"`
	EventID      uuid.UUID `json:"event_id"`
	BidderNumber string    `json:"bidder_number"`
}

// CheckoutEvent covers the checkout.* lifecycle events.
type CheckoutEvent struct {
	SessionID         uuid.UUID            `json:"session_id"`
	EventID           uuid.UUID            `json:"event_id"`
	BidderID          uuid.UUID            `json:"bidder_id"`
	Status            enums.CheckoutStatus `json:"status"`
	PaymentMethod     enums.PaymentMethod  `json:"payment_method"`
	TotalCents        int64                `json:"total_cents"`
	BidIDs            []uuid.UUID          `json:"bid_ids"`
	ExternalPaymentID string               `json:"external_payment_id,omitempty"`
	RefundedCents     int64                `json:"refunded_cents,omitempty"`
	FullRefund        bool                 `json:"full_refund,omitempty"`
	FailureReason     string               `json:"failure_reason,omitempty"`
	OccurredAt        time.Time            `json:"occurred_at"`
}

// ReconciliationEvent covers reconciliation.required and reconciliation.resolved.
type ReconciliationEvent struct {
	CaseID            uuid.UUID                       `json:"case_id"`
	SessionID         uuid.UUID                       `json:"session_id"`
	Reason            enums.ReconciliationReason      `json:"reason"`
	Resolution        *enums.ReconciliationResolution `json:"resolution,omitempty"`
	ExternalPaymentID string                          `json:"external_payment_id,omitempty"`
	AmountCents       int64                           `json:"amount_cents"`
}
