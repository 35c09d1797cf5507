package enums

import (
	"fmt"
	"slices"
	"strings"
)

// Currency is an ISO 4217 code the payment gateway can settle in. Only two-decimal
// currencies are listed since every amount is stored in cents.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyCAD Currency = "CAD"
)

var validCurrencies = []Currency{
	CurrencyUSD,
	CurrencyCAD,
}

func (c Currency) String() string {
	return string(c)
}

func (c Currency) IsValid() bool {
	return slices.Contains(validCurrencies, c)
}

// ParseCurrency accepts codes in any case and surrounding whitespace.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", fmt.Errorf("unsupported currency %q", value)
	}
	return c, nil
}
