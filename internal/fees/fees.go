// Package fees computes platform and processing fees for checkout sessions.
package fees

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// FeeConfig is an event's platform fee schedule: a percentage of the subtotal plus a fixed fee.
type FeeConfig struct {
	Percentage decimal.Decimal
	FixedFee   decimal.Decimal
}

// Validate checks the schedule against the administrative percentage cap.
func (c FeeConfig) Validate(maxPercentage decimal.Decimal) error {
	if c.Percentage.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "fee percentage must be non-negative").
			WithDetails(map[string]any{"percentage": c.Percentage.String()})
	}
	if c.FixedFee.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "fixed fee must be non-negative").
			WithDetails(map[string]any{"fixed_fee": c.FixedFee.StringFixed(2)})
	}
	if maxPercentage.IsPositive() && c.Percentage.GreaterThan(maxPercentage) {
		return pkgerrors.New(pkgerrors.CodeValidation, "fee percentage exceeds the allowed maximum of "+maxPercentage.String()+"%").
			WithDetails(map[string]any{"percentage": c.Percentage.String(), "max_percentage": maxPercentage.String()})
	}
	if !c.FixedFee.Equal(c.FixedFee.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "fixed fee must have at most two decimal places")
	}
	return nil
}

// GatewayFees is the card processor's cut, taken on the post-platform-fee total.
type GatewayFees struct {
	Percentage decimal.Decimal
	FixedFee   decimal.Decimal
}

// Breakdown is the immutable set of amounts stored on a checkout session.
type Breakdown struct {
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	PlatformFee   decimal.Decimal
	ProcessingFee decimal.Decimal
	Total         decimal.Decimal
}

// Compute returns the fee breakdown for a subtotal and tax amount.
//
// Each component is rounded to cents (half away from zero) before it feeds the
// next step, and the total is the exact sum of the rounded components. Stored
// components therefore always add up to the stored total.
func Compute(subtotal, tax decimal.Decimal, event FeeConfig, gateway GatewayFees) Breakdown {
	subtotal = subtotal.Round(2)
	tax = tax.Round(2)

	platform := subtotal.Mul(event.Percentage).Div(hundred).Add(event.FixedFee).Round(2)

	base := subtotal.Add(tax).Add(platform)
	processing := base.Mul(gateway.Percentage).Div(hundred).Add(gateway.FixedFee).Round(2)

	return Breakdown{
		Subtotal:      subtotal,
		Tax:           tax,
		PlatformFee:   platform,
		ProcessingFee: processing,
		Total:         base.Add(processing),
	}
}

// ComputeCents is Compute over integer cents, the unit persisted on sessions.
func ComputeCents(subtotalCents, taxCents int64, event FeeConfig, gateway GatewayFees) BreakdownCents {
	b := Compute(FromCents(subtotalCents), FromCents(taxCents), event, gateway)
	return BreakdownCents{
		SubtotalCents:      ToCents(b.Subtotal),
		TaxCents:           ToCents(b.Tax),
		PlatformFeeCents:   ToCents(b.PlatformFee),
		ProcessingFeeCents: ToCents(b.ProcessingFee),
		TotalCents:         ToCents(b.Total),
	}
}

// BreakdownCents mirrors Breakdown in minor units.
type BreakdownCents struct {
	SubtotalCents      int64
	TaxCents           int64
	PlatformFeeCents   int64
	ProcessingFeeCents int64
	TotalCents         int64
}

// FromCents converts minor units to a decimal currency amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Shift(-2)
}

// ToCents converts a decimal currency amount to minor units, rounding half away from zero.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FormatCents renders minor units as a plain two-decimal amount, e.g. "110.00".
func FormatCents(cents int64) string {
	return FromCents(cents).StringFixed(2)
}
