package enums

import "slices"

// CheckoutStatus tracks a checkout session through payment.
type CheckoutStatus string

const (
	CheckoutStatusPending    CheckoutStatus = "pending"
	CheckoutStatusProcessing CheckoutStatus = "processing"
	CheckoutStatusCompleted  CheckoutStatus = "completed"
	CheckoutStatusFailed     CheckoutStatus = "failed"
	CheckoutStatusRefunded   CheckoutStatus = "refunded"
)

var validCheckoutStatuses = []CheckoutStatus{
	CheckoutStatusPending,
	CheckoutStatusProcessing,
	CheckoutStatusCompleted,
	CheckoutStatusFailed,
	CheckoutStatusRefunded,
}

// String implements fmt.Stringer.
func (s CheckoutStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CheckoutStatus.
func (s CheckoutStatus) IsValid() bool {
	return slices.Contains(validCheckoutStatuses, s)
}

// IsActive reports whether a session in this status still holds its bids.
func (s CheckoutStatus) IsActive() bool {
	return s != CheckoutStatusFailed && s != CheckoutStatusRefunded
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s CheckoutStatus) CanTransitionTo(next CheckoutStatus) bool {
	switch s {
	case CheckoutStatusPending:
		return next == CheckoutStatusProcessing || next == CheckoutStatusCompleted || next == CheckoutStatusFailed
	case CheckoutStatusProcessing:
		return next == CheckoutStatusCompleted || next == CheckoutStatusFailed || next == CheckoutStatusPending
	case CheckoutStatusCompleted:
		return next == CheckoutStatusRefunded
	default:
		return false
	}
}

// ParseCheckoutStatus converts raw input into a CheckoutStatus.
func ParseCheckoutStatus(value string) (CheckoutStatus, error) {
	return parse("checkout status", value, validCheckoutStatuses)
}
