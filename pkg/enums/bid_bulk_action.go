package enums

import "slices"

// BidBulkAction is a staff operation applied to a selection of bids.
type BidBulkAction string

const (
	BidBulkActionDelete     BidBulkAction = "delete"
	BidBulkActionMarkPaid   BidBulkAction = "mark_paid"
	BidBulkActionMarkUnpaid BidBulkAction = "mark_unpaid"
)

var validBidBulkActions = []BidBulkAction{
	BidBulkActionDelete,
	BidBulkActionMarkPaid,
	BidBulkActionMarkUnpaid,
}

func (a BidBulkAction) String() string {
	return string(a)
}

func (a BidBulkAction) IsValid() bool {
	return slices.Contains(validBidBulkActions, a)
}

// ParseBidBulkAction converts raw input into a BidBulkAction.
func ParseBidBulkAction(value string) (BidBulkAction, error) {
	return parse("bulk action", value, validBidBulkActions)
}
