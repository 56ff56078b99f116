package validation

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/vpnda/sparebank-sync/pkg/models"
)

// SupportedCurrencies lists the currencies a transfer may be made in, in
// the order they are offered to users.
var SupportedCurrencies = []string{"NOK", "EUR", "USD", "SEK", "DKK", "GBP"}

// currencyRates are fixed rates relative to NOK: one NOK buys rate units.
var currencyRates = map[string]decimal.Decimal{
	"NOK": decimal.RequireFromString("1.0"),
	"SEK": decimal.RequireFromString("1.0"),
	"DKK": decimal.RequireFromString("1.0"),
	"USD": decimal.RequireFromString("0.1"),
	"EUR": decimal.RequireFromString("0.083"),
	"GBP": decimal.RequireFromString("0.071"),
}

// IsSupportedCurrency reports whether code can be used for transfers.
func IsSupportedCurrency(code string) bool {
	return lo.Contains(SupportedCurrencies, strings.ToUpper(code))
}

// ConvertCurrency converts amount between two supported currencies through
// NOK. Only the final result is rounded; identity conversions return the
// amount untouched.
func ConvertCurrency(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)

	fromRate, ok := currencyRates[from]
	if !ok {
		return decimal.Zero, &models.ValidationError{
			Kind:    models.UnsupportedCurrency,
			Message: fmt.Sprintf("Unsupported source currency: %s", from),
		}
	}
	toRate, ok := currencyRates[to]
	if !ok {
		return decimal.Zero, &models.ValidationError{
			Kind:    models.UnsupportedCurrency,
			Message: fmt.Sprintf("Unsupported target currency: %s", to),
		}
	}

	if from == to {
		return amount, nil
	}

	nok := amount.Div(fromRate)
	return nok.Mul(toRate).Round(amountPlaces), nil
}
