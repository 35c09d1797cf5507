package checkout

import (
	"github.com/google/uuid"

	"github.com/biddart/biddart-backend/internal/fees"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
)

// CreateSessionInput selects a bidder's winning bids for settlement.
type CreateSessionInput struct {
	BidderID      uuid.UUID
	BidIDs        []uuid.UUID
	PaymentMethod enums.PaymentMethod
	TaxCents      int64
}

// RefundInput refunds a completed session. A nil amount refunds the full total.
type RefundInput struct {
	AmountCents *int64
	Reason      string
}

// QuoteInput asks what a bidder would owe if checked out now.
type QuoteInput struct {
	BidderID uuid.UUID
	TaxCents int64
}

// Quote lists the bids a new session would settle and what it would cost.
// Nothing is reserved: another session may still claim the bids first.
type Quote struct {
	EventID   uuid.UUID
	BidderID  uuid.UUID
	Bids      []models.Bid
	Breakdown fees.BreakdownCents
	Currency  enums.Currency
}

// SessionListParams filters an event's sessions; a zero Status or BidderID matches all.
type SessionListParams struct {
	EventID  uuid.UUID
	BidderID uuid.UUID
	Status   enums.CheckoutStatus
	Limit    int
	Cursor   string
}

type SessionPage struct {
	Sessions []models.CheckoutSession
	Cursor   string
}

// InvalidBid explains why a bid cannot join a checkout session.
type InvalidBid struct {
	BidID  uuid.UUID `json:"bid_id"`
	Reason string    `json:"reason"`
}

// Receipt is returned after a successful card charge.
type Receipt struct {
	SessionID         uuid.UUID            `json:"session_id"`
	Status            enums.CheckoutStatus `json:"status"`
	TotalCents        int64                `json:"total_cents"`
	ExternalPaymentID string               `json:"external_payment_id"`
	ReceiptURL        string               `json:"receipt_url,omitempty"`
	ReceiptNumber     string               `json:"receipt_number,omitempty"`
}

const (
	reasonNotFound     = "bid not found"
	reasonOtherBidder  = "bid belongs to another bidder"
	reasonNotWinning   = "bid is not winning"
	reasonAlreadyPaid  = "bid is already paid"
	reasonInAnotherRun = "bid is attached to another active checkout session"
)
