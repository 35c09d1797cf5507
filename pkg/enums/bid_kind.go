package enums

import "slices"

// BidKind tags what a bid buys: a competing bid, an instant purchase, a raffle entry or a donation.
type BidKind string

const (
	BidKindStandard BidKind = "standard"
	BidKindBuyNow   BidKind = "buy_now"
	BidKindRaffle   BidKind = "raffle"
	BidKindDonation BidKind = "donation"
)

var validBidKinds = []BidKind{
	BidKindStandard,
	BidKindBuyNow,
	BidKindRaffle,
	BidKindDonation,
}

// String implements fmt.Stringer.
func (k BidKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known BidKind.
func (k BidKind) IsValid() bool {
	return slices.Contains(validBidKinds, k)
}

// Competes reports whether bids of this kind take part in the winning-bid race.
func (k BidKind) Competes() bool {
	return k == BidKindStandard || k == BidKindBuyNow
}

// ParseBidKind converts raw input into a BidKind. Empty input means a standard bid.
func ParseBidKind(value string) (BidKind, error) {
	if value == "" {
		return BidKindStandard, nil
	}
	return parse("bid kind", value, validBidKinds)
}
