package items

import (
	"time"

	"github.com/google/uuid"
)

// ItemInput is the full editable state of a catalogue entry. Update replaces
// every field, so a nil BuyNowPriceCents clears buy-now.
type ItemInput struct {
	ItemNumber         string
	Name               string
	Description        *string
	StartingPriceCents int64
	BuyNowPriceCents   *int64
	BidIncrementCents  int64
	BiddingStartsAt    *time.Time
	BiddingEndsAt      *time.Time
}

type ListParams struct {
	EventID    uuid.UUID
	Search     string
	ActiveOnly bool
	Limit      int
}
