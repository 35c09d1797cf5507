package bids

import (
	"github.com/google/uuid"

	"github.com/biddart/biddart-backend/pkg/enums"
)

// PlaceBidInput is a staff-entered bid against an item.
type PlaceBidInput struct {
	ItemID      uuid.UUID
	BidderID    uuid.UUID
	AmountCents int64
	Kind        enums.BidKind
	Notes       string
}

// BulkActionInput selects bids for a staff bulk operation. ItemID optionally
// restricts the selection to one item.
type BulkActionInput struct {
	ItemID *uuid.UUID
	BidIDs []uuid.UUID
	Action enums.BidBulkAction
}

// SkippedBid explains why a selected bid was left untouched.
type SkippedBid struct {
	BidID  uuid.UUID `json:"bid_id"`
	Reason string    `json:"reason"`
}

// BulkActionResult reports what a bulk operation changed.
type BulkActionResult struct {
	Action   enums.BidBulkAction `json:"action"`
	Affected int                 `json:"affected"`
	Skipped  []SkippedBid        `json:"skipped"`
}

// EventStats aggregates bidding activity for an event dashboard.
type EventStats struct {
	TotalBids          int64                   `json:"total_bids"`
	TotalAmountCents   int64                   `json:"total_amount_cents"`
	WinningAmountCents int64                   `json:"winning_amount_cents"`
	PaidAmountCents    int64                   `json:"paid_amount_cents"`
	UnpaidWinningCents int64                   `json:"unpaid_winning_cents"`
	CountByKind        map[enums.BidKind]int64 `json:"count_by_kind"`
}

const (
	skipReasonPaid     = "bid is paid"
	skipReasonAttached = "bid is attached to an active checkout session"
	skipReasonMissing  = "bid not found"
	skipReasonNoChange = "bid already in requested state"
)
