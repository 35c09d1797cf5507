package enums

import "slices"

// PaymentMethod describes how a bidder settles a checkout session.
type PaymentMethod string

const (
	PaymentMethodCard  PaymentMethod = "card"
	PaymentMethodCash  PaymentMethod = "cash"
	PaymentMethodCheck PaymentMethod = "check"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCard,
	PaymentMethodCash,
	PaymentMethodCheck,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	return slices.Contains(validPaymentMethods, p)
}

// IsOffline reports whether the method settles without the card gateway.
func (p PaymentMethod) IsOffline() bool {
	return p == PaymentMethodCash || p == PaymentMethodCheck
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return parse("payment method", value, validPaymentMethods)
}
